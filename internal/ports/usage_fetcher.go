package ports

import (
	"context"

	"github.com/bnema/codex-switch/internal/domain"
)

// UsageFetcher retrieves both quota windows for one credential from the
// remote usage endpoint.
type UsageFetcher interface {
	Fetch(ctx context.Context, credential domain.Credential) (domain.UsageSnapshot, error)
}
