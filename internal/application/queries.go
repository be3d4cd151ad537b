package application

import (
	"context"
	"fmt"

	"github.com/bnema/codex-switch/internal/domain"
)

type Status struct {
	Account domain.Account
	Active  bool
}

func (s *Service) GetStatus(ctx context.Context, id domain.AccountID) (Status, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("get account by id: %w", err)
	}

	activeID, err := s.repo.ActiveID(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("read active marker: %w", err)
	}

	return Status{Account: account, Active: activeID == id}, nil
}

func (s *Service) GetStatusAll(ctx context.Context) ([]Status, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	activeID, err := s.repo.ActiveID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read active marker: %w", err)
	}

	statuses := make([]Status, 0, len(accounts))
	for _, account := range accounts {
		statuses = append(statuses, Status{Account: account, Active: account.ID == activeID})
	}

	return statuses, nil
}
