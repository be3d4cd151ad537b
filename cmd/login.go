package cmd

import (
	"fmt"

	authadapter "github.com/bnema/codex-switch/internal/adapters/auth"
	"github.com/bnema/codex-switch/internal/domain"
	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	var name string
	var activate bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Add an account through the browser login flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flow := authadapter.NewBrowserFlow(authadapter.BrowserConfig{
				Issuer:     app.browserLogin.Issuer,
				ClientID:   app.browserLogin.ClientID,
				ListenAddr: app.browserLogin.ListenAddr,
				Timeout:    app.browserLogin.Timeout,
				HTTPClient: app.httpClient,
				OnAuthURL: func(authURL string) {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authenticate:\n%s\n", authURL)
				},
			})

			account, credential, err := flow.Acquire(cmd.Context())
			if err != nil {
				return err
			}

			if name != "" {
				account.Name = name
			}

			// Re-authenticating a known principal replaces its credential.
			if err := app.service.AddAccount(cmd.Context(), account, credential, true); err != nil {
				return fmt.Errorf("save account: %w", err)
			}

			if plan := domain.ParseTokenClaims(credential.IDToken).PlanType(); plan != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Authenticated account %s (%s, %s plan)\n", account.Name, account.ID, plan)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Authenticated account %s (%s)\n", account.Name, account.ID)
			}

			if activate {
				if err := app.service.Activate(cmd.Context(), account.ID); err != nil {
					return fmt.Errorf("activate account: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Activated account %s\n", account.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display label for the account (default: derived from the login)")
	cmd.Flags().BoolVar(&activate, "activate", false, "Make this account the active one after login")

	return cmd
}
