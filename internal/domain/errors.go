package domain

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrCredentialMalformed = errors.New("malformed credential payload")
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrLoginInProgress     = errors.New("login already in progress")
	ErrCredentialExpired   = errors.New("credential expired")
)
