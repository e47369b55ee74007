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

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves ledger history, the audit log, and challenge proofs to cold
// storage. Each method returns the object key it wrote.
type Archiver interface {
	ArchiveEvents(ctx context.Context, chain string, events []Event) (string, error)
	ArchiveAudit(ctx context.Context, before time.Time) (string, error)
	StoreProof(ctx context.Context, challengeID uint64, proof []byte, contentType string) (string, error)
}
