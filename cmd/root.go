package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cxs",
		Short:         "Codex account switcher: hold several Codex accounts, switch which one is live",
		Long:          "cxs stores credentials for multiple Codex accounts side by side, switches which one is mirrored into the Codex CLI's auth.json, and keeps per-account usage-limit snapshots fresh.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newLoginCmd(app),
		newImportCmd(app),
		newSwitchCmd(app),
		newLogoutCmd(app),
		newUsageCmd(app),
	)

	return rootCmd
}
