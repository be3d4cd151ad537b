package application

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bnema/codex-switch/internal/domain"
)

// Activate mirrors the stored credential for id into the live auth file and
// then persists the marker. The ordering is deliberate: a failed file write
// leaves the marker on the previously active account, so the marker never
// points at a credential that was not materialized to disk. The service lock
// is held across both steps; two concurrent activations cannot interleave
// their file writes and marker updates.
//
// Re-activating the already-active account verifies the file content against
// the stored blob and rewrites it when it was tampered with externally.
func (s *Service) Activate(ctx context.Context, id domain.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	credential, err := s.Credential(ctx, account)
	if err != nil {
		return err
	}

	activeID, err := s.repo.ActiveID(ctx)
	if err != nil {
		return fmt.Errorf("read active marker: %w", err)
	}

	if activeID == id {
		current, err := s.authTgt.Read(ctx)
		if err != nil {
			return fmt.Errorf("verify auth file: %w", err)
		}
		if bytes.Equal(current, credential.Raw) {
			return nil
		}
	}

	if err := s.authTgt.Write(ctx, credential.Raw); err != nil {
		return fmt.Errorf("write auth file: %w", err)
	}

	if activeID == id {
		return nil
	}

	if err := s.repo.SetActiveID(ctx, id); err != nil {
		return fmt.Errorf("persist active marker: %w", err)
	}

	return nil
}

// Deactivate removes the live auth file and then clears the marker. The file
// is deleted rather than left holding the last-active credential: after an
// explicit logout the external CLI should prompt for login, not keep acting
// as the old account.
func (s *Service) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deactivateLocked(ctx)
}

func (s *Service) deactivateLocked(ctx context.Context) error {
	if err := s.authTgt.Remove(ctx); err != nil {
		return fmt.Errorf("remove auth file: %w", err)
	}

	if err := s.repo.SetActiveID(ctx, ""); err != nil {
		return fmt.Errorf("clear active marker: %w", err)
	}

	return nil
}
