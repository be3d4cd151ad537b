package cmd

import (
	"errors"
	"fmt"

	authadapter "github.com/bnema/codex-switch/internal/adapters/auth"
	"github.com/bnema/codex-switch/internal/domain"
	"github.com/spf13/cobra"
)

func newImportCmd(app *app) *cobra.Command {
	var name string
	var overwrite bool
	var activate bool

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Add an account from an existing auth.json file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp, err := authadapter.NewImportFromFile(args[0], name)
			if err != nil {
				return err
			}

			account, credential, err := imp.Acquire(cmd.Context())
			if err != nil {
				return err
			}

			if err := app.service.AddAccount(cmd.Context(), account, credential, overwrite); err != nil {
				if errors.Is(err, domain.ErrDuplicateAccount) {
					return fmt.Errorf("%w (pass --overwrite to replace it)", err)
				}
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported account %s (%s)\n", account.Name, account.ID)

			if activate {
				if err := app.service.Activate(cmd.Context(), account.ID); err != nil {
					return fmt.Errorf("activate account: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Activated account %s\n", account.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display label for the account (default: derived from the credential)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the stored credential when the account already exists")
	cmd.Flags().BoolVar(&activate, "activate", false, "Make this account the active one after import")

	return cmd
}
