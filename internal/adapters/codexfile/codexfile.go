// Package codexfile adapts the auth.json file the Codex CLI reads its live
// credential from. The file's schema belongs to that tool; this adapter only
// moves opaque bytes in and out and never reshapes them.
package codexfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/codex-switch/internal/ports"
)

const (
	authFileName = "auth.json"
	authFileMode = 0o600
	authDirMode  = 0o700
	codexHomeEnv = "CODEX_HOME"
	codexDirName = ".codex"
)

type File struct {
	path string
	mu   sync.Mutex
}

var _ ports.CredentialFile = (*File)(nil)

// ResolveAuthPath returns the auth.json path the Codex CLI uses: $CODEX_HOME
// when set, otherwise ~/.codex.
func ResolveAuthPath() (string, error) {
	if codexHome := os.Getenv(codexHomeEnv); codexHome != "" {
		return filepath.Join(codexHome, authFileName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(homeDir, codexDirName, authFileName), nil
}

func New(path string) *File {
	return &File{path: filepath.Clean(path)}
}

func (f *File) Path() string {
	return f.path
}

// Write replaces the auth file content atomically via a temp file in the
// same directory, preserving the blob byte-for-byte.
func (f *File) Write(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, authDirMode); err != nil {
		return fmt.Errorf("create codex home: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".auth-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp auth file: %w", err)
	}

	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp auth file: %w", err)
	}
	if err := tmp.Chmod(authFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp auth file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp auth file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace auth file: %w", err)
	}
	cleanup = false

	if err := os.Chmod(f.path, authFileMode); err != nil {
		return fmt.Errorf("chmod auth file: %w", err)
	}

	return nil
}

func (f *File) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read auth file: %w", err)
	}

	return data, nil
}

func (f *File) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove auth file: %w", err)
	}

	return nil
}
