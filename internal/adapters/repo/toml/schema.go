package toml

import (
	"fmt"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Active   string          `toml:"active,omitempty"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	ID        string      `toml:"id"`
	Name      string      `toml:"name"`
	CreatedAt string      `toml:"created_at,omitempty"`
	Auth      authSchema  `toml:"auth"`
	Usage     usageSchema `toml:"usage,omitempty"`
}

type authSchema struct {
	Method    string `toml:"method"`
	SecretRef string `toml:"secret_ref"`
	ExpiresAt string `toml:"expires_at,omitempty"`
}

type usageSchema struct {
	Plan       string        `toml:"plan,omitempty"`
	Short      *windowSchema `toml:"short,omitempty"`
	Weekly     *windowSchema `toml:"weekly,omitempty"`
	StaleSince string        `toml:"stale_since,omitempty"`
}

type windowSchema struct {
	UsedPercent float64 `toml:"used_percent"`
	ResetsAt    string  `toml:"resets_at"`
	CapturedAt  string  `toml:"captured_at"`
}

func toSchema(account domain.Account) accountSchema {
	return accountSchema{
		ID:        string(account.ID),
		Name:      account.Name,
		CreatedAt: formatTime(account.CreatedAt),
		Auth: authSchema{
			Method:    string(account.Auth.Method),
			SecretRef: account.Auth.SecretRef,
			ExpiresAt: formatTime(account.Auth.ExpiresAt),
		},
		Usage: usageSchema{
			Plan:       account.Usage.Plan,
			Short:      toWindowSchema(account.Usage.Short),
			Weekly:     toWindowSchema(account.Usage.Weekly),
			StaleSince: formatTime(account.Usage.StaleSince),
		},
	}
}

func fromSchema(account accountSchema) domain.Account {
	return domain.Account{
		ID:        domain.AccountID(account.ID),
		Name:      account.Name,
		CreatedAt: parseTime(account.CreatedAt),
		Auth: domain.Auth{
			Method:    domain.AuthMethod(account.Auth.Method),
			SecretRef: account.Auth.SecretRef,
			ExpiresAt: parseTime(account.Auth.ExpiresAt),
		},
		Usage: domain.UsageSnapshot{
			Plan:       account.Usage.Plan,
			Short:      fromWindowSchema(account.Usage.Short),
			Weekly:     fromWindowSchema(account.Usage.Weekly),
			StaleSince: parseTime(account.Usage.StaleSince),
		},
	}
}

func toWindowSchema(window *domain.UsageWindow) *windowSchema {
	if window == nil {
		return nil
	}

	return &windowSchema{
		UsedPercent: window.UsedPercent,
		ResetsAt:    formatTime(window.ResetsAt),
		CapturedAt:  formatTime(window.CapturedAt),
	}
}

func fromWindowSchema(window *windowSchema) *domain.UsageWindow {
	if window == nil {
		return nil
	}

	return &domain.UsageWindow{
		UsedPercent: window.UsedPercent,
		ResetsAt:    parseTime(window.ResetsAt),
		CapturedAt:  parseTime(window.CapturedAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
