package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jobboard-engine/internal/pipeline"
	"jobboard-engine/internal/store"
)

type parseOptions struct {
	*rootOptions
	Board string
}

func newParseCommand(root *rootOptions) *cobra.Command {
	opts := &parseOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "parse <url>",
		Short: "Fetch one job posting and print the verified fields as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.rootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := buildPipeline(a.cfg())
			if err != nil {
				return err
			}

			res, err := p.Parse(cmd.Context(), args[0])
			var fe *pipeline.FetchError
			if errors.As(err, &fe) {
				_ = printJSON(cmd.OutOrStdout(), map[string]any{
					"errorKind":   fe.Kind,
					"message":     fe.Message,
					"finalUrl":    fe.FinalURL,
					"fetchedAt":   fe.FetchedAt,
					"manualEntry": fe.ManualEntry(),
				})
				return err
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}

			if opts.Board == "" {
				return nil
			}
			job, err := store.AddJob(cmd.Context(), a.db.Pool, opts.Board, store.JobFromValidated(res.Job))
			if err != nil {
				return fmt.Errorf("add to board %q: %w", opts.Board, err)
			}
			fmt.Fprintf(os.Stderr, "added %s to %s at position %d\n", job.ID, opts.Board, job.Position)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Board, "board", "", "also add the job to this board")
	return cmd
}
