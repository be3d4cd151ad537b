package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/bnema/codex-switch/internal/ports"
)

// Import is the file-import acquisition mode: an auth.json-shaped blob
// already read from some external path is parsed and normalized. Duplicate
// handling belongs to the caller persisting the result.
type Import struct {
	Blob  []byte
	Name  string
	Clock ports.Clock
}

var _ Acquisition = Import{}

func NewImportFromFile(path, name string) (Import, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Import{}, fmt.Errorf("read credential file: %w", err)
	}

	return Import{Blob: blob, Name: name}, nil
}

func (i Import) Acquire(ctx context.Context) (domain.Account, domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, domain.Credential{}, err
	}

	credential, err := domain.ParseCredential(i.Blob)
	if err != nil {
		return domain.Account{}, domain.Credential{}, err
	}

	clock := i.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return normalizeAccount(credential, i.Name, clock.Now())
}

// normalizeAccount derives the stable account id and display name for a
// freshly acquired credential.
func normalizeAccount(credential domain.Credential, name string, now time.Time) (domain.Account, domain.Credential, error) {
	id, err := credential.DeriveAccountID()
	if err != nil {
		return domain.Account{}, domain.Credential{}, err
	}

	if strings.TrimSpace(name) == "" {
		name = string(id)
	}

	account := domain.Account{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		Auth: domain.Auth{
			Method:    credential.Method,
			ExpiresAt: credential.ExpiresAt,
		},
	}

	return account, credential, nil
}
