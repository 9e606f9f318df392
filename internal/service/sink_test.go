package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

type memOpps struct {
	mu   sync.Mutex
	rows []domain.ArbitrageOpportunity
	err  error
}

func (m *memOpps) Insert(_ context.Context, opp domain.ArbitrageOpportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, opp)
	return nil
}

func (m *memOpps) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ArbitrageOpportunity(nil), m.rows...), nil
}

func (m *memOpps) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestSinkDrainsOnShutdown(t *testing.T) {
	opps := &memOpps{}
	arb := NewArbService(opps, nil, nil, nil, nil, discardLogger())
	sink := NewSink(arb, 16, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		sink.Opportunity(ctx, domain.ArbitrageOpportunity{Symbol: "FED-DEC"})
	}
	cancel()

	done := make(chan struct{})
	go func() {
		_ = sink.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not return after cancel")
	}
	assert.Equal(t, 5, opps.count())
}

func TestSinkOverflowDoesNotBlock(t *testing.T) {
	opps := &memOpps{}
	arb := NewArbService(opps, nil, nil, nil, nil, discardLogger())
	sink := NewSink(arb, 2, nil, discardLogger())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		sink.Opportunity(ctx, domain.ArbitrageOpportunity{Symbol: "FED-DEC"})
	}
	st := sink.Stats()
	assert.Equal(t, 2, st.Depth)
	assert.Equal(t, uint64(8), st.Rejected)
}

func TestStoreFailureIsReturned(t *testing.T) {
	opps := &memOpps{err: errors.New("connection refused")}
	audit := &memAudit{}
	arb := NewArbService(opps, nil, nil, nil, audit, discardLogger())

	err := arb.RecordOpportunity(context.Background(), domain.ArbitrageOpportunity{Symbol: "FED-DEC"})
	require.Error(t, err)

	arb.Halted(context.Background(), "FED-DEC", "hedge failed")
	assert.Equal(t, []string{"symbol_halted"}, audit.events)
}
