package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"jobboard-engine/internal/secrets"
)

func newSecretsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Store credentials in the OS keychain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-openai-key [key]",
		Short: "Save the OpenAI API key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if err := secrets.SetOpenAIKey(key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OpenAI API key saved")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-imap-password [password]",
		Short: "Save the IMAP password for the configured mailbox (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg()
			if strings.TrimSpace(cfg.Email.Username) == "" || strings.TrimSpace(cfg.Email.IMAPHost) == "" {
				return errors.New("set email.username and email.imap_host in the config first")
			}
			account := secrets.IMAPKeyringAccount(cfg)
			pass, err := secretArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if err := secrets.SetIMAPPassword(account, pass); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "IMAP password saved for %s\n", account)
			return nil
		},
	})

	return cmd
}

// secretArg returns args[0], or the first line of in.
func secretArg(in io.Reader, args []string) (string, error) {
	var v string
	if len(args) > 0 {
		v = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		v = line
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("secret is empty")
	}
	return v, nil
}
