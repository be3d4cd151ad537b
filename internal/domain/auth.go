package domain

import "time"

type AuthMethod string

const (
	AuthMethodAPIKey  AuthMethod = "api_key"
	AuthMethodChatGPT AuthMethod = "chatgpt"
)

// Auth is the catalog-side view of an account's credential. The token
// material itself lives in the secret store behind SecretRef; only the
// metadata needed without decoding the blob is kept here.
type Auth struct {
	Method AuthMethod
	// SecretRef points to a secret-store entry, typically in "provider://path" form.
	SecretRef string
	// ExpiresAt is zero for credentials that carry no expiry (api keys,
	// most imported blobs).
	ExpiresAt time.Time
}

func (a Auth) ExpiringSoon(now time.Time, skew time.Duration) bool {
	if a.ExpiresAt.IsZero() {
		return false
	}
	return !a.ExpiresAt.After(now.Add(skew))
}
