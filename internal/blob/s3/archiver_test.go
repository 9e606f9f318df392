package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

type memBlobs struct {
	objects   map[string][]byte
	multipart []string
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart = append(m.multipart, path)
	return m.Put(ctx, path, data, contentTypeJSONL)
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memAudit struct {
	entries []map[string]any
	events  []string
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.events = append(m.events, event)
	m.entries = append(m.entries, detail)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchivePositionsWritesJSONL(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewArchiver(blobs, blobs, audit)

	at := time.Date(2026, 10, 16, 15, 4, 5, 0, time.UTC)
	positions := []domain.Position{
		{Symbol: "FED-DEC", Venue: domain.VenueKalshi, Quantity: 10, AvgEntryPrice: decimal.RequireFromString("0.46")},
		{Symbol: "FED-DEC", Venue: domain.VenuePolymarket, Quantity: -10, AvgEntryPrice: decimal.RequireFromString("0.50")},
	}

	path, err := a.ArchivePositions(context.Background(), at, positions)
	require.NoError(t, err)
	assert.Equal(t, "archive/positions/2026/10/16/150405.jsonl", path)

	var lines []domain.Position
	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[path]))
	for sc.Scan() {
		var p domain.Position
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		lines = append(lines, p)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, int64(-10), lines[1].Quantity)
	assert.True(t, lines[0].AvgEntryPrice.Equal(decimal.RequireFromString("0.46")))

	require.Equal(t, []string{"archive.positions"}, audit.events)
	assert.Equal(t, 2, audit.entries[0]["count"])
	assert.Empty(t, blobs.multipart)
}

func TestArchiveExecutionsSkipsExistingWindow(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewArchiver(blobs, blobs, audit)

	from := time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	execs := []domain.Execution{{ID: "e1", Symbol: "FED-DEC", Status: domain.ExecutionCompleted}}

	path, err := a.ArchiveExecutions(context.Background(), from, to, execs)
	require.NoError(t, err)
	assert.Equal(t, "archive/executions/2026/10/16/20261016T140000_20261016T150000.jsonl", path)

	_, err = a.ArchiveExecutions(context.Background(), from, to, execs)
	require.NoError(t, err)
	assert.Len(t, audit.events, 1, "second run must not rewrite the window")
}

func TestArchiveEmptyIsNoop(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, nil, nil)

	path, err := a.ArchiveExecutions(context.Background(), time.Now(), time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, blobs.objects)
}

func TestArchiveLargePayloadUsesMultipart(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, nil, nil)
	a.threshold = 64

	execs := make([]domain.Execution, 5)
	for i := range execs {
		execs[i] = domain.Execution{ID: "exec", Symbol: "FED-DEC", Status: domain.ExecutionHedged}
	}
	path, err := a.ArchiveExecutions(context.Background(), time.Now().Add(-time.Hour), time.Now(), execs)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, blobs.multipart)
}

func TestClientKeyPrefix(t *testing.T) {
	c := &Client{prefix: "parityarb/prod"}
	assert.Equal(t, "parityarb/prod/archive/x.jsonl", c.key("/archive/x.jsonl"))
	c.prefix = ""
	assert.Equal(t, "archive/x.jsonl", c.key("archive/x.jsonl"))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}
