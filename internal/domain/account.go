package domain

import "time"

type AccountID string

type Account struct {
	ID        AccountID
	Name      string
	CreatedAt time.Time
	Auth      Auth
	Usage     UsageSnapshot
}
