package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// DefaultMultipartThreshold is the payload size above which archives are
	// uploaded in parts.
	DefaultMultipartThreshold = 16 * 1024 * 1024
)

// Archiver implements domain.Archiver. Records are written as JSONL under
// archive/<kind>/YYYY/MM/DD/. Windows already archived are skipped, so a
// rerun after a restart does not overwrite earlier output.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader // optional
	audit     domain.AuditStore // optional
	threshold int
}

// NewArchiver creates an Archiver. reader and audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:    writer,
		reader:    reader,
		audit:     audit,
		threshold: DefaultMultipartThreshold,
	}
}

// ArchivePositions writes one line per position as of at.
func (a *Archiver) ArchivePositions(ctx context.Context, at time.Time, positions []domain.Position) (string, error) {
	if len(positions) == 0 {
		return "", nil
	}
	path := archivePath("positions", at, at.UTC().Format("150405")+".jsonl")
	buf, err := marshalJSONL(positions)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}
	if err := a.store(ctx, "positions", path, buf, len(positions), map[string]any{
		"at": at.UTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}
	return path, nil
}

// ArchiveExecutions writes the executions completed in [from, to).
func (a *Archiver) ArchiveExecutions(ctx context.Context, from, to time.Time, execs []domain.Execution) (string, error) {
	if len(execs) == 0 {
		return "", nil
	}
	name := fmt.Sprintf("%s_%s.jsonl", from.UTC().Format("20060102T150405"), to.UTC().Format("20060102T150405"))
	path := archivePath("executions", to, name)
	buf, err := marshalJSONL(execs)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}
	if err := a.store(ctx, "executions", path, buf, len(execs), map[string]any{
		"from": from.UTC().Format(time.RFC3339),
		"to":   to.UTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Archiver) store(ctx context.Context, kind, path string, buf []byte, count int, detail map[string]any) error {
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("s3blob: archive %s: %w", kind, err)
		}
		if exists {
			return nil
		}
	}

	var err error
	if len(buf) >= a.threshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), int64(a.threshold))
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	if a.audit == nil {
		return nil
	}
	detail["path"] = path
	detail["count"] = count
	detail["bytes"] = len(buf)
	if err := a.audit.Log(ctx, "archive."+kind, detail); err != nil {
		return fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return nil
}

// archivePath partitions archives by UTC day:
//
//	archive/positions/2026/10/16/150405.jsonl
//	archive/executions/2026/10/16/20261016T140000_20261016T150000.jsonl
func archivePath(kind string, at time.Time, name string) string {
	return fmt.Sprintf("archive/%s/%s/%s", kind, at.UTC().Format("2006/01/02"), name)
}

// marshalJSONL encodes each record on its own line.
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
