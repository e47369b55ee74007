package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/imperfectform/predictbot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	auditPageSize    = 1000
)

// Archiver implements domain.Archiver on top of a blob writer and reader.
// Proof objects are content addressed, so storing the same proof twice
// writes once.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates an Archiver. audit may be nil, in which case
// ArchiveAudit fails with domain.ErrValidation.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore, now func() time.Time) *Archiver {
	if now == nil {
		now = time.Now
	}
	return &Archiver{writer: writer, reader: reader, audit: audit, now: now}
}

// ArchiveEvents writes events as one JSONL object keyed by chain, day, and
// the event sequence range. An empty batch writes nothing and returns "".
func (a *Archiver) ArchiveEvents(ctx context.Context, chain string, events []domain.Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(events)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive events marshal: %w", err)
	}
	path := fmt.Sprintf("archive/events/%s/%s/%d-%d.jsonl",
		chain, a.now().UTC().Format("2006-01-02"), events[0].Seq, events[len(events)-1].Seq)
	if err := a.upload(ctx, path, buf); err != nil {
		return "", fmt.Errorf("s3blob: archive events: %w", err)
	}
	return path, nil
}

// ArchiveAudit copies audit entries created before the cutoff to
// archive/audit/YYYY-MM.jsonl and records the archival in the audit log.
// Entries are not deleted from the store.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (string, error) {
	if a.audit == nil {
		return "", fmt.Errorf("s3blob: archive audit: %w: no audit store", domain.ErrValidation)
	}
	var entries []domain.AuditEntry
	for offset := 0; ; offset += auditPageSize {
		page, err := a.audit.List(ctx, domain.ListOpts{Until: &before, Limit: auditPageSize, Offset: offset})
		if err != nil {
			return "", fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		entries = append(entries, page...)
		if len(page) < auditPageSize {
			break
		}
	}
	if len(entries) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}
	path := fmt.Sprintf("archive/audit/%s.jsonl", before.UTC().Format("2006-01"))
	if err := a.upload(ctx, path, buf); err != nil {
		return "", fmt.Errorf("s3blob: archive audit: %w", err)
	}
	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  len(entries),
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	return path, nil
}

// StoreProof uploads a verification proof under
// proofs/{challengeID}/{keccak256 prefix}{ext} unless that object already
// exists.
func (a *Archiver) StoreProof(ctx context.Context, challengeID uint64, proof []byte, contentType string) (string, error) {
	if len(proof) == 0 {
		return "", fmt.Errorf("s3blob: store proof: %w: empty proof", domain.ErrValidation)
	}
	if contentType == "" {
		contentType = "text/plain"
	}
	digest := crypto.Keccak256Hash(proof).Hex()[2:18]
	path := "proofs/" + strconv.FormatUint(challengeID, 10) + "/" + digest + proofExt(contentType)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: store proof: %w", err)
	}
	if exists {
		return path, nil
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(proof), contentType); err != nil {
		return "", fmt.Errorf("s3blob: store proof: %w", err)
	}
	return path, nil
}

// upload switches to multipart once the payload exceeds one part.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) > minPartSize {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
}

func proofExt(contentType string) string {
	switch contentType {
	case "text/plain":
		return ".txt"
	case "application/json":
		return ".json"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
