package codexfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAuthPathHonorsCodexHome(t *testing.T) {
	codexHome := t.TempDir()
	t.Setenv(codexHomeEnv, codexHome)

	path, err := ResolveAuthPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(codexHome, authFileName), path)
}

func TestResolveAuthPathDefaultsToHomeDotCodex(t *testing.T) {
	t.Setenv(codexHomeEnv, "")

	path, err := ResolveAuthPath()
	require.NoError(t, err)

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, codexDirName, authFileName), path)
}

func TestFileWriteReadRemove(t *testing.T) {
	t.Parallel()

	file := New(filepath.Join(t.TempDir(), "codex", "auth.json"))
	blob := []byte("{\n  \"OPENAI_API_KEY\": \"sk-test\"\n}")

	require.NoError(t, file.Write(context.Background(), blob))

	got, err := file.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, file.Remove(context.Background()))

	got, err = file.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileReadMissingReturnsNil(t *testing.T) {
	t.Parallel()

	file := New(filepath.Join(t.TempDir(), "auth.json"))

	got, err := file.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileRemoveMissingIsIdempotent(t *testing.T) {
	t.Parallel()

	file := New(filepath.Join(t.TempDir(), "auth.json"))

	require.NoError(t, file.Remove(context.Background()))
}

func TestFileWriteReplacesExistingContent(t *testing.T) {
	t.Parallel()

	file := New(filepath.Join(t.TempDir(), "auth.json"))

	require.NoError(t, file.Write(context.Background(), []byte("first payload")))
	require.NoError(t, file.Write(context.Background(), []byte("second")))

	got, err := file.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFileWriteRestrictivePermissionsAndNoTempLeftovers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := New(filepath.Join(dir, "auth.json"))

	require.NoError(t, file.Write(context.Background(), []byte("blob")))

	info, err := os.Stat(file.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(authFileMode), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, authFileName, entries[0].Name())
}
