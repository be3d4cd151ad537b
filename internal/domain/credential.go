package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Credential is the decoded token bundle behind an account's secret ref.
// Raw holds the auth.json payload exactly as it is mirrored to the Codex
// CLI on activation; the remaining fields are parsed out of it.
type Credential struct {
	Method       AuthMethod
	APIKey       string
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Raw          []byte
}

// authFileSchema is the auth.json shape owned by the Codex CLI. Field names
// and ordering are its contract and must not change.
type authFileSchema struct {
	OpenAIAPIKey *string          `json:"OPENAI_API_KEY"`
	Tokens       *tokenFileSchema `json:"tokens"`
	LastRefresh  *time.Time       `json:"last_refresh"`
}

type tokenFileSchema struct {
	IDToken      string  `json:"id_token"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	AccountID    *string `json:"account_id"`
}

// ParseCredential decodes an auth.json payload, keeping the original bytes
// as Raw. It returns ErrCredentialMalformed for payloads that are not valid
// JSON or carry neither an API key nor a token bundle.
func ParseCredential(blob []byte) (Credential, error) {
	var file authFileSchema
	if err := json.Unmarshal(blob, &file); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrCredentialMalformed, err)
	}

	raw := make([]byte, len(blob))
	copy(raw, blob)

	if file.OpenAIAPIKey != nil && strings.TrimSpace(*file.OpenAIAPIKey) != "" {
		return Credential{
			Method: AuthMethodAPIKey,
			APIKey: *file.OpenAIAPIKey,
			Raw:    raw,
		}, nil
	}

	if file.Tokens != nil && strings.TrimSpace(file.Tokens.AccessToken) != "" {
		return Credential{
			Method:       AuthMethodChatGPT,
			IDToken:      file.Tokens.IDToken,
			AccessToken:  file.Tokens.AccessToken,
			RefreshToken: file.Tokens.RefreshToken,
			Raw:          raw,
		}, nil
	}

	return Credential{}, fmt.Errorf("%w: payload carries neither api key nor tokens", ErrCredentialMalformed)
}

// NewChatGPTCredential builds a credential from freshly exchanged oauth
// tokens, serializing the canonical auth.json payload as Raw.
func NewChatGPTCredential(idToken, accessToken, refreshToken string, expiresAt, lastRefresh time.Time) (Credential, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Credential{}, fmt.Errorf("%w: access token is empty", ErrInvalidCredential)
	}

	tokens := &tokenFileSchema{
		IDToken:      idToken,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if accountID := ParseTokenClaims(idToken).AccountID(); accountID != "" {
		tokens.AccountID = &accountID
	}

	file := authFileSchema{Tokens: tokens}
	if !lastRefresh.IsZero() {
		utc := lastRefresh.UTC()
		file.LastRefresh = &utc
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return Credential{}, fmt.Errorf("encode auth payload: %w", err)
	}

	return Credential{
		Method:       AuthMethodChatGPT,
		IDToken:      idToken,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Raw:          raw,
	}, nil
}

// NewAPIKeyCredential builds a credential around a bare API key.
func NewAPIKeyCredential(key string) (Credential, error) {
	if strings.TrimSpace(key) == "" {
		return Credential{}, fmt.Errorf("%w: api key is empty", ErrInvalidCredential)
	}

	file := authFileSchema{OpenAIAPIKey: &key}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return Credential{}, fmt.Errorf("encode auth payload: %w", err)
	}

	return Credential{
		Method: AuthMethodAPIKey,
		APIKey: key,
		Raw:    raw,
	}, nil
}

func (c Credential) Validate() error {
	switch c.Method {
	case AuthMethodAPIKey:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%w: api key is empty", ErrInvalidCredential)
		}
	case AuthMethodChatGPT:
		if strings.TrimSpace(c.AccessToken) == "" {
			return fmt.Errorf("%w: access token is empty", ErrInvalidCredential)
		}
	default:
		return fmt.Errorf("%w: unsupported auth method %q", ErrInvalidCredential, c.Method)
	}

	if len(c.Raw) == 0 {
		return fmt.Errorf("%w: raw payload is empty", ErrInvalidCredential)
	}

	return nil
}

// DeriveAccountID derives the stable account identifier from the
// authenticated principal: the id_token email claim when present, then the
// ChatGPT account id claim, then a fingerprint of the api key.
func (c Credential) DeriveAccountID() (AccountID, error) {
	if c.Method == AuthMethodAPIKey {
		sum := sha256.Sum256([]byte(c.APIKey))
		return AccountID("key-" + hex.EncodeToString(sum[:])[:12]), nil
	}

	claims := ParseTokenClaims(c.IDToken)
	if email := strings.TrimSpace(claims.Email); email != "" {
		return AccountID(strings.ToLower(email)), nil
	}
	if accountID := claims.AccountID(); accountID != "" {
		return AccountID(accountID), nil
	}

	return "", fmt.Errorf("%w: no identifying claims in id token", ErrCredentialMalformed)
}
