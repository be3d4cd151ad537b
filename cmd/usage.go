package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	statusadapter "github.com/bnema/codex-switch/internal/adapters/render/status"
	"github.com/bnema/codex-switch/internal/application"
	"github.com/bnema/codex-switch/internal/domain"
	"github.com/spf13/cobra"
)

func newUsageCmd(app *app) *cobra.Command {
	var accountID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "usage",
		Aliases: []string{"status"},
		Short:   "Fetch and display account usage limits",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUsageFetch(cmd, app, accountID, asJSON)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (default: all accounts)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	cmd.AddCommand(newUsageWatchCmd(app))

	return cmd
}

func runUsageFetch(cmd *cobra.Command, app *app, accountID string, asJSON bool) error {
	poller := app.newPoller()

	if asJSON {
		poller.PollOnce(cmd.Context())
	} else if err := runPollSpinner(cmd.Context(), cmd.ErrOrStderr(), poller); err != nil {
		return err
	}

	statuses, err := loadStatuses(cmd.Context(), app, accountID)
	if err != nil {
		return err
	}

	return writeStatusesOutput(cmd, app, statuses, asJSON)
}

func newUsageWatchCmd(app *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll usage limits continuously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if interval > 0 {
				app.pollInterval = interval
			}
			poller := app.newPoller()

			go consumePollEvents(ctx, app, poller.Events())

			app.logger.Info("usage poller started", "interval", app.pollInterval)
			err := poller.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default 1m, CXS_POLL_INTERVAL)")

	return cmd
}

func consumePollEvents(ctx context.Context, app *app, events <-chan application.PollEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if event.Kind == application.PollEventCredentialExpired {
				app.logger.Warn("credential expired, re-login required",
					"account", event.AccountID,
					"hint", fmt.Sprintf("cxs login --name %s", event.AccountID),
				)
			}
		}
	}
}

func loadStatuses(ctx context.Context, app *app, accountID string) ([]application.Status, error) {
	if accountID != "" {
		status, err := app.service.GetStatus(ctx, domain.AccountID(accountID))
		if err != nil {
			return nil, err
		}
		return []application.Status{status}, nil
	}

	return app.service.GetStatusAll(ctx)
}

type statusJSON struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Method     string      `json:"auth_method"`
	Plan       string      `json:"plan,omitempty"`
	Active     bool        `json:"active"`
	Short      *windowJSON `json:"short,omitempty"`
	Weekly     *windowJSON `json:"weekly,omitempty"`
	StaleSince *time.Time  `json:"stale_since,omitempty"`
}

type windowJSON struct {
	UsedPercent float64   `json:"used_percent"`
	ResetsAt    time.Time `json:"resets_at"`
	CapturedAt  time.Time `json:"captured_at"`
}

func writeStatusesOutput(cmd *cobra.Command, app *app, statuses []application.Status, asJSON bool) error {
	if !asJSON {
		rendered, err := app.statusRenderer(statuses, statusadapter.RenderOptions{Now: app.now()})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	}

	payload := make([]statusJSON, 0, len(statuses))
	for _, status := range statuses {
		entry := statusJSON{
			ID:     string(status.Account.ID),
			Name:   status.Account.Name,
			Method: string(status.Account.Auth.Method),
			Plan:   status.Account.Usage.Plan,
			Active: status.Active,
			Short:  toWindowJSON(status.Account.Usage.Short),
			Weekly: toWindowJSON(status.Account.Usage.Weekly),
		}
		if status.Account.Usage.Stale() {
			staleSince := status.Account.Usage.StaleSince
			entry.StaleSince = &staleSince
		}
		payload = append(payload, entry)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func toWindowJSON(window *domain.UsageWindow) *windowJSON {
	if window == nil {
		return nil
	}

	return &windowJSON{
		UsedPercent: window.UsedPercent,
		ResetsAt:    window.ResetsAt,
		CapturedAt:  window.CapturedAt,
	}
}
