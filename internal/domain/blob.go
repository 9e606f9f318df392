package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader checks object storage for existing keys.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver writes ledger and execution history to cold storage. Both methods
// return the object path written, or "" when there was nothing to write.
type Archiver interface {
	ArchivePositions(ctx context.Context, at time.Time, positions []Position) (string, error)
	ArchiveExecutions(ctx context.Context, from, to time.Time, execs []Execution) (string, error)
}
