package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

const (
	// kalshiWriteWait is the time allowed to write a message to the peer.
	kalshiWriteWait = 10 * time.Second

	// kalshiPongWait is the time allowed to read the next pong message.
	kalshiPongWait = 30 * time.Second

	// kalshiPingPeriod sends pings at this interval. Must be less than pongWait.
	kalshiPingPeriod = (kalshiPongWait * 9) / 10

	kalshiReconnectDelay    = 2 * time.Second
	kalshiMaxReconnectDelay = 60 * time.Second
)

// BookHandler is called with the top of book after every snapshot or delta.
// Tops are unnumbered; Gap marks a missed venue update.
type BookHandler func(BookTop)

// HeaderFunc produces the handshake headers for a connection attempt.
type HeaderFunc func() (http.Header, error)

type tickerState struct {
	book  *ladder
	venue uint64 // last venue seq seen on the current subscription
}

// WSClient streams Kalshi order books. Each ticker gets its own
// subscription so the venue seq is per ticker.
type WSClient struct {
	wsURL   string
	headers HeaderFunc
	logger  *slog.Logger
	conn    *websocket.Conn

	mu     sync.RWMutex
	closed bool
	cmdID  int64

	tickers []string

	stateMu sync.Mutex
	state   map[string]*tickerState

	handlers  []BookHandler
	handlerMu sync.RWMutex

	done chan struct{}
}

// NewWSClient creates a new Kalshi WebSocket client.
//
// wsURL is the WebSocket endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewWSClient(wsURL string, headers HeaderFunc, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		headers: headers,
		logger:  logger.With(slog.String("component", "kalshi_ws")),
		state:   make(map[string]*tickerState),
		done:    make(chan struct{}),
	}
}

// Connect dials the WebSocket and restores any subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: %w", domain.ErrWSDisconnect)
	}

	var hdr http.Header
	if w.headers != nil {
		h, err := w.headers()
		if err != nil {
			return fmt.Errorf("kalshi/ws: auth headers: %w", err)
		}
		hdr = h
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, hdr)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	// New subscriptions restart the venue seq at 1 with a fresh snapshot.
	w.resetSeqs()

	for _, t := range w.tickers {
		if err := w.sendSubscribe(t); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscription %s: %w", t, err)
		}
	}
	return nil
}

// Subscribe opens one orderbook_delta subscription per ticker.
func (w *WSClient) Subscribe(_ context.Context, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}

	known := make(map[string]bool, len(w.tickers))
	for _, t := range w.tickers {
		known[t] = true
	}
	for _, t := range tickers {
		if known[t] {
			continue
		}
		if err := w.sendSubscribe(t); err != nil {
			return fmt.Errorf("kalshi/ws: subscribe %s: %w", t, err)
		}
		w.tickers = append(w.tickers, t)
		known[t] = true
	}
	return nil
}

// OnBook registers a handler for book updates.
func (w *WSClient) OnBook(h BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

func (w *WSClient) resetSeqs() {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	for _, st := range w.state {
		st.venue = 0
	}
}

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(ticker string) error {
	w.cmdID++
	cmd := WSCommand{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: WSCommandParams{
			Channels:      []string{"orderbook_delta"},
			MarketTickers: []string{ticker},
		},
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Warn("kalshi/ws: read failed, reconnecting", slog.String("error", err.Error()))
			go w.reconnect()
			return
		}
		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(kalshiPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage applies a snapshot or delta and emits the new top of book.
func (w *WSClient) handleMessage(raw []byte) {
	var env WSEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	var (
		ticker string
		exTS   int64
		apply  func(*ladder)
	)
	switch env.Type {
	case "orderbook_snapshot":
		var snap WSSnapshot
		if err := json.Unmarshal(env.Msg, &snap); err != nil {
			return
		}
		ticker = snap.MarketTicker
		apply = func(l *ladder) { l.reset(snap.Yes, snap.No) }
	case "orderbook_delta":
		var d WSDelta
		if err := json.Unmarshal(env.Msg, &d); err != nil {
			return
		}
		ticker = d.MarketTicker
		if ts, err := time.Parse(time.RFC3339Nano, d.TS); err == nil {
			exTS = ts.UnixNano()
		}
		apply = func(l *ladder) { l.apply(d.Side, d.Price, d.Delta) }
	case "error":
		w.logger.Warn("kalshi/ws: server error", slog.String("msg", string(env.Msg)))
		return
	default:
		return
	}
	if ticker == "" {
		return
	}

	w.stateMu.Lock()
	st, ok := w.state[ticker]
	if !ok {
		st = &tickerState{book: newLadder()}
		w.state[ticker] = st
	}
	gap := env.Type == "orderbook_delta" && st.venue > 0 && env.Seq != st.venue+1
	if gap {
		w.logger.Warn("kalshi/ws: sequence gap",
			slog.String("ticker", ticker),
			slog.Uint64("expected", st.venue+1),
			slog.Uint64("got", env.Seq))
	}
	apply(st.book)
	st.venue = env.Seq
	top := st.book.top(ticker)
	top.ExchangeTS = exTS
	top.Gap = gap
	w.stateMu.Unlock()

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()
	for _, h := range handlers {
		h(top)
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := kalshiReconnectDelay
	for {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			w.logger.Info("kalshi/ws: reconnected")
			return
		}
		w.logger.Warn("kalshi/ws: reconnect failed", slog.String("error", err.Error()), slog.Duration("retry_in", delay))

		delay *= 2
		if delay > kalshiMaxReconnectDelay {
			delay = kalshiMaxReconnectDelay
		}
	}
}
