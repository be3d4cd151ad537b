package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/bnema/codex-switch/internal/ports"
)

// Service owns the credential catalog: account/credential persistence, the
// active-credential file, and the usage snapshots the poller writes back.
type Service struct {
	repo    ports.AccountRepository
	secrets ports.SecretStore
	authTgt ports.CredentialFile
	clock   ports.Clock

	// mu serializes every mutation. Multi-step sequences (write auth file
	// then move the marker, read catalog then save) hold it end to end so
	// the marker and the auth file content always agree.
	mu sync.Mutex
}

func NewService(repo ports.AccountRepository, secrets ports.SecretStore, authTgt ports.CredentialFile, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		repo:    repo,
		secrets: secrets,
		authTgt: authTgt,
		clock:   clock,
	}
}

func secretRefFor(id domain.AccountID) string {
	return fmt.Sprintf("accounts/%s/auth.json", id)
}

// AddAccount persists an acquired account/credential pair. Without overwrite
// a colliding id fails with domain.ErrDuplicateAccount and the existing
// credential stays untouched. The secret blob is written first; if the
// catalog write then fails, a replaced secret is restored and a fresh one is
// rolled back, so the two never diverge.
func (s *Service) AddAccount(ctx context.Context, account domain.Account, credential domain.Credential, overwrite bool) error {
	if err := credential.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secretRef := secretRefFor(account.ID)
	var priorBlob string
	replacing := false

	existing, err := s.repo.GetByID(ctx, account.ID)
	switch {
	case err == nil:
		if !overwrite {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateAccount, account.ID)
		}
		// Keep the original creation time and label across overwrites.
		account.CreatedAt = existing.CreatedAt
		if existing.Name != string(existing.ID) {
			account.Name = existing.Name
		}
		if existing.Auth.SecretRef == secretRef {
			priorBlob, err = s.secrets.Get(ctx, secretRef)
			if err != nil {
				return fmt.Errorf("load credential being replaced: %w", err)
			}
			replacing = true
		}
	case errors.Is(err, domain.ErrAccountNotFound):
	default:
		return fmt.Errorf("get account by id: %w", err)
	}

	if err := s.secrets.Put(ctx, secretRef, string(credential.Raw)); err != nil {
		return fmt.Errorf("store credential secret: %w", err)
	}

	account.Auth.Method = credential.Method
	account.Auth.SecretRef = secretRef
	account.Auth.ExpiresAt = credential.ExpiresAt
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.clock.Now()
	}

	if err := s.repo.Save(ctx, account); err != nil {
		if replacing {
			if restoreErr := s.secrets.Put(ctx, secretRef, priorBlob); restoreErr != nil {
				return fmt.Errorf("save account and restore replaced secret: %w", errors.Join(err, restoreErr))
			}
		} else if rollbackErr := s.secrets.Delete(ctx, secretRef); rollbackErr != nil {
			return fmt.Errorf("save account and rollback stored secret: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save account: %w", err)
	}

	return nil
}

// RemoveAccount deletes an account, its secret, and, when it was the active
// one, the live credential file (same policy as Deactivate).
func (s *Service) RemoveAccount(ctx context.Context, id domain.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	activeID, err := s.repo.ActiveID(ctx)
	if err != nil {
		return fmt.Errorf("read active marker: %w", err)
	}
	if activeID == id {
		if err := s.deactivateLocked(ctx); err != nil {
			return fmt.Errorf("deactivate removed account: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if account.Auth.SecretRef != "" {
		if err := s.secrets.Delete(ctx, account.Auth.SecretRef); err != nil {
			return fmt.Errorf("delete credential secret: %w", err)
		}
	}

	return nil
}

func (s *Service) GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) RenameAccount(ctx context.Context, id domain.AccountID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	account.Name = name

	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account name: %w", err)
	}

	return nil
}

// Credential hydrates the decoded token bundle behind an account's secret
// ref.
func (s *Service) Credential(ctx context.Context, account domain.Account) (domain.Credential, error) {
	if account.Auth.SecretRef == "" {
		return domain.Credential{}, fmt.Errorf("%w: account %s has no credential", domain.ErrInvalidCredential, account.ID)
	}

	blob, err := s.secrets.Get(ctx, account.Auth.SecretRef)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("load credential secret: %w", err)
	}

	credential, err := domain.ParseCredential([]byte(blob))
	if err != nil {
		return domain.Credential{}, err
	}
	credential.ExpiresAt = account.Auth.ExpiresAt

	return credential, nil
}

// SetUsage overwrites an account's snapshot wholesale after a successful
// poll, clearing any staleness.
func (s *Service) SetUsage(ctx context.Context, id domain.AccountID, snapshot domain.UsageSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	snapshot.StaleSince = time.Time{}
	account.Usage = snapshot

	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save usage snapshot: %w", err)
	}

	return nil
}

// MarkUsageStale keeps the prior windows and stamps when they stopped being
// fresh. The stamp is set once; later failures do not move it.
func (s *Service) MarkUsageStale(ctx context.Context, id domain.AccountID, since time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	if account.Usage.Stale() {
		return nil
	}

	account.Usage.StaleSince = since

	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save stale marker: %w", err)
	}

	return nil
}

func (s *Service) ActiveID(ctx context.Context) (domain.AccountID, error) {
	return s.repo.ActiveID(ctx)
}
