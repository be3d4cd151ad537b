package cmd

import (
	"fmt"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage stored accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountRenameCmd(app),
		newAccountRemoveCmd(app),
	)

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := app.service.GetStatusAll(cmd.Context())
			if err != nil {
				return err
			}

			for _, status := range statuses {
				marker := " "
				if status.Active {
					marker = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\t%s\n", marker, status.Account.ID, status.Account.Name, status.Account.Auth.Method)
			}

			return nil
		},
	}
}

func newAccountRenameCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <account-id> <name>",
		Short: "Change an account's display label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.service.RenameAccount(cmd.Context(), domain.AccountID(args[0]), args[1])
		},
	}
}

func newAccountRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Remove an account and its stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(args[0])
			if err := app.service.RemoveAccount(cmd.Context(), id); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", id)
			return nil
		},
	}
}
