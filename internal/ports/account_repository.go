package ports

import (
	"context"

	"github.com/bnema/codex-switch/internal/domain"
)

// AccountRepository persists the account catalog and the active-account
// marker. Every mutation must be durable on disk before it returns; the file
// is the source of truth across restarts.
type AccountRepository interface {
	Save(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	// List returns accounts in stable insertion order.
	List(ctx context.Context) ([]domain.Account, error)
	Delete(ctx context.Context, id domain.AccountID) error

	// ActiveID returns the active account id, or "" when no account is active.
	ActiveID(ctx context.Context) (domain.AccountID, error)
	// SetActiveID persists the marker; "" clears it.
	SetActiveID(ctx context.Context, id domain.AccountID) error
}
