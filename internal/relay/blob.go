package relay

import (
	"context"
	"io"
)

// BlobStore holds media blobs referenced by events, addressed by the hex
// sha256 of their content. Storing the same checksum twice is idempotent.
type BlobStore interface {
	// Put stores a blob. size is the number of bytes that will be read from r.
	Put(ctx context.Context, checksum string, r io.Reader, size int64) error

	// Get retrieves a blob by checksum and writes it to w.
	Get(ctx context.Context, checksum string, w io.Writer) error

	// Exists reports whether a blob with the checksum is stored.
	Exists(ctx context.Context, checksum string) (bool, error)

	// Delete removes a blob; deleting an absent checksum is a no-op.
	Delete(ctx context.Context, checksum string) error

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
