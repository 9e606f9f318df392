package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called with the top of book after every book or
// price_change event.
type BookHandler func(BookTop)

// WSClient streams the Polymarket CLOB market channel. The venue sends no
// sequence numbers; the gateway numbers the tops it forwards.
type WSClient struct {
	wsURL  string
	logger *slog.Logger
	conn   *websocket.Conn

	mu     sync.Mutex
	closed bool
	assets []string

	bookMu sync.Mutex
	books  map[string]*ladder

	handlers  []BookHandler
	handlerMu sync.RWMutex

	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given WebSocket URL.
//
// wsURL is the market channel endpoint, e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "polymarket_ws")),
		books:  make(map[string]*ladder),
		done:   make(chan struct{}),
	}
}

// Connect dials the market channel and resubscribes known assets.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.assets) > 0 {
		if err := w.send(WSSubscribe{Type: "market", AssetIDs: w.assets}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}
	return nil
}

// Subscribe adds assets to the market subscription. The venue answers with
// a book event per asset.
func (w *WSClient) Subscribe(_ context.Context, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	known := make(map[string]bool, len(w.assets))
	for _, a := range w.assets {
		known[a] = true
	}
	for _, a := range assetIDs {
		if !known[a] {
			w.assets = append(w.assets, a)
			known[a] = true
		}
	}
	if err := w.send(WSSubscribe{Type: "market", AssetIDs: w.assets}); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// OnBook registers a handler for book updates.
func (w *WSClient) OnBook(h BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Close shuts down the WebSocket connection and stops the read loop.
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

// send writes a JSON command. Caller must hold w.mu.
func (w *WSClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
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
			w.logger.Warn("polymarket/ws: read failed, reconnecting", slog.String("error", err.Error()))
			go w.reconnect()
			return
		}
		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage accepts a single event or an array of events.
func (w *WSClient) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}

	var events []WSEvent
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &events); err != nil {
			return
		}
	} else {
		var ev WSEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return
		}
		events = []WSEvent{ev}
	}

	for _, ev := range events {
		for _, top := range w.apply(ev) {
			w.handlerMu.RLock()
			handlers := w.handlers
			w.handlerMu.RUnlock()
			for _, h := range handlers {
				h(top)
			}
		}
	}
}

// apply updates the ladders touched by ev and returns their new tops.
func (w *WSClient) apply(ev WSEvent) []BookTop {
	exTS := parseMillis(ev.Timestamp)

	w.bookMu.Lock()
	defer w.bookMu.Unlock()

	touched := make([]string, 0, 1)
	switch ev.EventType {
	case "book":
		if ev.AssetID == "" {
			return nil
		}
		w.ladder(ev.AssetID).reset(ev.Bids, ev.Asks)
		touched = append(touched, ev.AssetID)
	case "price_change":
		seen := make(map[string]bool)
		for _, pc := range ev.PriceChanges {
			asset := pc.AssetID
			if asset == "" {
				asset = ev.AssetID
			}
			l, ok := w.books[asset]
			if !ok {
				// No book yet; the snapshot that follows will cover it.
				continue
			}
			l.change(pc.Side, Level{Price: pc.Price, Size: pc.Size})
			if !seen[asset] {
				seen[asset] = true
				touched = append(touched, asset)
			}
		}
	default:
		return nil
	}

	out := make([]BookTop, 0, len(touched))
	for _, asset := range touched {
		top := w.books[asset].top(asset)
		top.ExchangeTS = exTS
		out = append(out, top)
	}
	return out
}

func (w *WSClient) ladder(asset string) *ladder {
	l, ok := w.books[asset]
	if !ok {
		l = newLadder()
		w.books[asset] = l
	}
	return l
}

func parseMillis(s string) int64 {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms * int64(time.Millisecond)
}

// reconnect re-establishes the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := reconnectDelay
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
			w.logger.Info("polymarket/ws: reconnected")
			return
		}
		w.logger.Warn("polymarket/ws: reconnect failed", slog.String("error", err.Error()), slog.Duration("retry_in", delay))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
