package ports

import "context"

// CredentialFile is the single live credential file the external Codex CLI
// reads. Write must replace the content atomically and byte-for-byte.
type CredentialFile interface {
	Write(ctx context.Context, blob []byte) error
	// Read returns the current content, or nil when the file does not exist.
	Read(ctx context.Context) ([]byte, error)
	Remove(ctx context.Context) error
	Path() string
}
