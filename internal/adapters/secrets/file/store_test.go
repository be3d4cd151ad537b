package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGetDeleteRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	blob := "{\n  \"OPENAI_API_KEY\": null,\n  \"tokens\": {\n    \"access_token\": \"access\"\n  }\n}"

	require.NoError(t, store.Put(context.Background(), "accounts/alice@example.com/auth.json", blob))

	got, err := store.Get(context.Background(), "accounts/alice@example.com/auth.json")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, store.Delete(context.Background(), "accounts/alice@example.com/auth.json"))

	_, err = store.Get(context.Background(), "accounts/alice@example.com/auth.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStoreDeleteMissingSecretIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	require.NoError(t, store.Delete(context.Background(), "accounts/ghost/auth.json"))
}

func TestStoreWritesRestrictivePermissions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)

	require.NoError(t, store.Put(context.Background(), "accounts/alice@example.com/auth.json", "secret"))

	info, err := os.Stat(filepath.Join(root, "accounts", "alice@example.com", "auth.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMod), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Join(root, "accounts", "alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(storeDirMode), dirInfo.Mode().Perm())
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	testCases := []string{"", "   ", "..", "../escape", "/etc/passwd", "."}
	for _, key := range testCases {
		err := store.Put(context.Background(), key, "secret")
		assert.Error(t, err, "key %q", key)
	}
}

func TestStoreGetReturnsBytesVerbatim(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	blob := "no trailing newline and weird   spacing\t"

	require.NoError(t, store.Put(context.Background(), "accounts/x/auth.json", blob))

	got, err := store.Get(context.Background(), "accounts/x/auth.json")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}
