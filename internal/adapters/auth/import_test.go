package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportAcquireParsesChatGPTBlob(t *testing.T) {
	t.Parallel()

	idToken := makeIDToken(t, map[string]any{"email": "alice@example.com"})
	blob := []byte(`{
  "OPENAI_API_KEY": null,
  "tokens": {
    "id_token": "` + idToken + `",
    "access_token": "access-token",
    "refresh_token": "refresh-token",
    "account_id": "acct-1"
  },
  "last_refresh": null
}`)

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	imp := Import{Blob: blob, Clock: fixedClock{now: now}}

	account, credential, err := imp.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.AccountID("alice@example.com"), account.ID)
	assert.Equal(t, "alice@example.com", account.Name)
	assert.Equal(t, now, account.CreatedAt)
	assert.Equal(t, domain.AuthMethodChatGPT, account.Auth.Method)
	assert.Equal(t, blob, credential.Raw)
}

func TestImportAcquireHonorsExplicitName(t *testing.T) {
	t.Parallel()

	idToken := makeIDToken(t, map[string]any{"email": "alice@example.com"})
	blob := []byte(`{"tokens":{"id_token":"` + idToken + `","access_token":"access-token","refresh_token":"r","account_id":null}}`)

	imp := Import{Blob: blob, Name: "Work"}

	account, _, err := imp.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Work", account.Name)
}

func TestImportAcquireMalformedBlob(t *testing.T) {
	t.Parallel()

	imp := Import{Blob: []byte("not-json")}

	_, _, err := imp.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCredentialMalformed))
}

func TestNewImportFromFileReadsBlob(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "auth.json")
	blob := []byte(`{"OPENAI_API_KEY":"sk-test-123","tokens":null,"last_refresh":null}`)
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	imp, err := NewImportFromFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, blob, imp.Blob)

	account, credential, err := imp.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.AuthMethodAPIKey, credential.Method)
	assert.Contains(t, string(account.ID), "key-")
}

func TestNewImportFromFileMissingPath(t *testing.T) {
	t.Parallel()

	_, err := NewImportFromFile(filepath.Join(t.TempDir(), "missing.json"), "")
	require.Error(t, err)
}
