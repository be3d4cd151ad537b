package cmd

import (
	"fmt"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/spf13/cobra"
)

func newSwitchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "switch <account-id>",
		Aliases: []string{"use", "activate"},
		Short:   "Make an account's credential the live one",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(args[0])
			if err := app.service.Activate(cmd.Context(), id); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched to account %s\n", id)
			return nil
		},
	}
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Aliases: []string{"deactivate"},
		Short:   "Clear the active account and remove the live credential file",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.service.Deactivate(cmd.Context()); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out; no account is active")
			return nil
		},
	}
}
