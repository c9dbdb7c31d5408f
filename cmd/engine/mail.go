package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errMailDisabled = errors.New("email import is disabled (set email.enabled in the config)")

func newMailImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mail-import",
		Short: "Run one pass of the mailbox importer and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg()
			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			im, err := a.buildImporter(cfg, p)
			if err != nil {
				return err
			}
			if im == nil {
				return errMailDisabled
			}

			sum, err := im.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
}
