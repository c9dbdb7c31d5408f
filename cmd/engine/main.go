// Command engine runs the job board backend: the HTTP API, the job page
// pipeline and the optional mailbox importer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	DataDir string
	EnvFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "engine",
		Short:         "Job board engine",
		Long:          "Fetches job postings, extracts their fields with an LLM, checks every field against the page text, and keeps them on boards.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default $JOBBOARD_DATA_DIR or .)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "optional .env file loaded before reading the environment")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newParseCommand(opts))
	cmd.AddCommand(newMailImportCommand(opts))
	cmd.AddCommand(newSecretsCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
