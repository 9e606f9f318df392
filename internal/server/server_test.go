package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
	"github.com/alanyoungcy/parityarb/internal/orderbook"
	"github.com/alanyoungcy/parityarb/internal/server/handler"
	"github.com/alanyoungcy/parityarb/internal/server/ws"
	"github.com/alanyoungcy/parityarb/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingLimiter struct {
	mu    sync.Mutex
	seen  map[string]int
	limit int
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key]++
	return l.seen[key] <= limit, nil
}

func newTestServer(t *testing.T, cfg Config, bus domain.SignalBus, limiter domain.RateLimiter) (*Server, *ws.Hub) {
	t.Helper()
	book := orderbook.New(testLogger)
	ledger := service.NewPositionService(nil, testLogger)
	arb := service.NewArbService(nil, nil, nil, bus, nil, testLogger)

	status := handler.NewStatusHandler(handler.RuntimeInfo{Mode: "monitor", StartedAt: time.Now()}, book, nil, nil, nil)
	handlers := Handlers{
		Health:    handler.NewHealthHandler(nil, testLogger),
		Status:    status,
		Positions: handler.NewPositionHandler(ledger, nil, testLogger),
		Arb:       handler.NewArbHandler(arb, nil, bus, testLogger),
	}

	var hub *ws.Hub
	if bus != nil {
		hub = ws.NewHub(bus, func() any { return status.Status() }, nil, testLogger)
	}

	reg := prometheus.NewRegistry()
	metrics.New(reg).ExecutionFinished("completed")

	return NewServer(cfg, handlers, hub, reg, limiter, testLogger), hub
}

func TestServer_AuthExemptsHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, Config{APIKey: "s3cret"}, nil, nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parityarb_executions_total")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HaltRoutesOnlyWithEngine(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/halts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RateLimitPerClient(t *testing.T) {
	limiter := &countingLimiter{seen: map[string]int{}}
	srv, _ := newTestServer(t, Config{RateLimit: 2, RateLimitWindow: time.Second}, nil, limiter)
	h := srv.Handler()

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, 3, limiter.seen["api:10.0.0.7"])
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Config{CORSOrigins: []string{"https://dash.example"}, APIKey: "k"}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, base, format string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws?format=" + format
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_StreamsBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := service.NewLocalBus()
	srv, hub := newTestServer(t, Config{}, bus, nil)
	go func() { _ = hub.Run(ctx) }()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	jsonConn := dialWS(t, ts.URL, "json")
	protoConn := dialWS(t, ts.URL, "proto")

	// Both clients first receive the status snapshot.
	_ = jsonConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := jsonConn.ReadMessage()
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "arb:status", status["channel"])

	_ = protoConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, _, err := protoConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	// The hub subscribes asynchronously; publish until a frame arrives.
	arb := service.NewArbService(nil, nil, nil, bus, nil, testLogger)
	got := make(chan []byte, 1)
	go func() {
		_, data, err := protoConn.ReadMessage()
		if err == nil {
			got <- data
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		arb.Halted(ctx, "FED-DEC", "hedge failed")
		select {
		case data := <-got:
			var s structpb.Struct
			require.NoError(t, proto.Unmarshal(data, &s))
			m := s.AsMap()
			assert.Equal(t, domain.ChannelHalts, m["channel"])
			assert.Equal(t, "FED-DEC", m["payload"].(map[string]any)["symbol"])
			return
		case <-deadline:
			t.Fatal("no event received")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestHub_RejectsUnknownFormat(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, service.NewLocalBus(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?format=xml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
