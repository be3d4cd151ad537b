package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/codex-switch/internal/application"
	"github.com/bnema/codex-switch/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
}

// credentialExpirySkew is how close to its expiry a credential gets before
// the listing flags it.
const credentialExpirySkew = 30 * time.Minute

func renderView(statuses []application.Status, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Codex Accounts"),
		s.header.Render(fmt.Sprintf("accounts: %d", len(statuses))),
	}

	if len(statuses) == 0 {
		lines = append(lines, s.empty.Render("No accounts configured. Run `cxs login` or `cxs import`."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, status := range statuses {
		lines = append(lines, s.section.Render(renderAccount(status, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(status application.Status, opts RenderOptions, s styles) string {
	parts := []string{accountTitle(status, opts, s)}
	parts = append(parts, windowLines(status.Account.Usage, opts, s)...)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func accountTitle(status application.Status, opts RenderOptions, s styles) string {
	label := authLabel(status.Account.Auth.Method)
	if plan := status.Account.Usage.Plan; plan != "" {
		label += ", " + plan
	}

	title := s.account.Render(fmt.Sprintf("%s (%s, %s)", status.Account.Name, status.Account.ID, label))
	if status.Active {
		title += " " + s.active.Render("[active]")
	}
	if status.Account.Auth.ExpiringSoon(opts.Now, credentialExpirySkew) {
		title += " " + s.warning.Render("[credential expiring]")
	}
	return title
}

func authLabel(method domain.AuthMethod) string {
	if method == "" {
		return "none"
	}

	return string(method)
}

func windowLines(usage domain.UsageSnapshot, opts RenderOptions, s styles) []string {
	if usage.Empty() {
		return []string{s.detail.Render("usage: n/a")}
	}

	lines := make([]string, 0, 3)
	for _, kind := range []domain.WindowKind{domain.WindowShort, domain.WindowWeekly} {
		window := usage.Window(kind)
		if window == nil {
			continue
		}
		lines = append(lines, windowLine(kind, window, opts, s))
	}

	if usage.Stale() {
		lines = append(lines, s.warning.Render(fmt.Sprintf("[stale since %s]", usage.StaleSince.Format("15:04 on 02 Jan"))))
	}

	return lines
}

func windowLine(kind domain.WindowKind, window *domain.UsageWindow, opts RenderOptions, s styles) string {
	left := clampPercent(100 - window.UsedPercent)
	label := s.limitKey.Render(fmt.Sprintf("%-6s", string(kind)+":"))
	meta := s.detail.Render(fmt.Sprintf("%3.0f%% left", left))
	reset := s.header.Render(fmt.Sprintf("(%s)", formatResetRelative(window.ResetsAt, opts.Now)))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		label,
		" ",
		renderProgressBar(window.UsedPercent, 24, s),
		" ",
		meta,
		" ",
		reset,
	)
}

func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	leftFraction := (100.0 - used) / 100.0
	filled := int(math.Round(float64(width) * leftFraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatResetRelative(resetsAt, now time.Time) string {
	if resetsAt.IsZero() {
		return "reset unknown"
	}
	if now.IsZero() {
		return "resets " + resetsAt.Format(time.RFC3339)
	}
	if resetsAt.Before(now) {
		return "reset now"
	}

	remaining := resetsAt.Sub(now)
	if remaining < 24*time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		if hours < 1 {
			hours = 1
		}
		suffix := "hours"
		if hours == 1 {
			suffix = "hour"
		}
		return fmt.Sprintf("resets in %d %s (%s)", hours, suffix, resetsAt.Format("15:04"))
	}

	days := int(math.Ceil(remaining.Hours() / 24))
	suffix := "days"
	if days == 1 {
		suffix = "day"
	}

	return fmt.Sprintf("resets in %d %s (%s)", days, suffix, resetsAt.Format("15:04 on 02 Jan"))
}
