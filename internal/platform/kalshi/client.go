package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// Client is the REST client for the Kalshi trade API.
type Client struct {
	baseURL    string
	basePath   string // path prefix included in signatures
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = strings.TrimRight(u.Path, "/")
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		basePath: basePath,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetRSAPrivateKey loads a PEM-encoded RSA key (PKCS8 or PKCS1).
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// SetPrivateKey installs an already parsed key.
func (c *Client) SetPrivateKey(key *rsa.PrivateKey) { c.privateKey = key }

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	body, err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil)
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return resp.Market, nil
}

// GetOrderbook returns the resting bids of a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (Orderbook, error) {
	body, err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker)+"/orderbook", nil)
	if err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}
	return resp.Orderbook, nil
}

// CreateOrder submits an order and returns the order state after matching.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (OrderInfo, error) {
	body, err := c.do(ctx, http.MethodPost, "/portfolio/orders", req)
	if err != nil {
		return OrderInfo{}, fmt.Errorf("kalshi: create order: %w", err)
	}

	var resp struct {
		Order OrderInfo `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderInfo{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}
	return resp.Order, nil
}

// GetOrder fetches an order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/portfolio/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return OrderInfo{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}

	var resp struct {
		Order OrderInfo `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderInfo{}, fmt.Errorf("kalshi: decode order: %w", err)
	}
	return resp.Order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds, signs, sends and reads a request.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.sign(req.Header, method, c.basePath+stripQuery(path)); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return nil, &domain.TransientVenueError{Venue: domain.VenueKalshi, Op: method + " " + path, Err: err}
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(method+" "+path, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// sign adds the RSA-PSS-SHA256 headers over timestamp + method + path.
func (c *Client) sign(h http.Header, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + method + path))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	h.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// SignHeaders returns authentication headers for a WebSocket handshake to
// path.
func (c *Client) SignHeaders(path string) (http.Header, error) {
	h := http.Header{}
	if err := c.sign(h, http.MethodGet, path); err != nil {
		return nil, err
	}
	return h, nil
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(op string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	detail := fmt.Sprintf("%s (%s)", apiErr.Error.Message, apiErr.Error.Code)

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, detail)
	case statusCode == http.StatusTooManyRequests:
		return &domain.TransientVenueError{Venue: domain.VenueKalshi, Op: op, Err: fmt.Errorf("%w: %s", domain.ErrRateLimited, detail)}
	case statusCode == http.StatusBadRequest, statusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, detail)
	case statusCode >= 500:
		return &domain.TransientVenueError{Venue: domain.VenueKalshi, Op: op, Err: fmt.Errorf("HTTP %d: %s", statusCode, detail)}
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s", statusCode, detail)
	}
}
