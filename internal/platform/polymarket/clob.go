package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/crypto"
	"github.com/alanyoungcy/parityarb/internal/domain"
)

// Token amounts on the CLOB have six decimals.
var tokenUnit = decimal.New(1, 6)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	creds      crypto.APICredentials
	now        func() time.Time
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com". signer
// may be nil for a read-only client.
func NewClobClient(baseURL string, signer *crypto.Signer, timeout time.Duration) *ClobClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ClobClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
		now:        time.Now,
	}
}

// SetCredentials installs API credentials obtained earlier.
func (c *ClobClient) SetCredentials(creds crypto.APICredentials) { c.creds = creds }

// HasCredentials reports whether authenticated calls can be made.
func (c *ClobClient) HasCredentials() bool { return c.signer != nil && c.creds.Valid() }

// GetBook returns the order book of one token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (BookResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/book?token_id="+url.QueryEscape(tokenID), nil, false)
	if err != nil {
		return BookResponse{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var book BookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return BookResponse{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book, nil
}

// DeriveAPIKey signs a ClobAuth message and exchanges it for API
// credentials, which the client then uses.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.APICredentials, error) {
	if c.signer == nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrUnauthorized)
	}
	ts := c.now().Unix()
	sig, err := c.signer.SignAuth(ts, 0)
	if err != nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("POLY_NONCE", "0")

	body, err := c.send(req)
	if err != nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	var creds crypto.APICredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	if !creds.Valid() {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: incomplete credentials")
	}
	c.creds = creds
	return creds, nil
}

// BuildOrder signs a limit order for size contracts of tokenID at price.
func (c *ClobClient) BuildOrder(tokenID string, side domain.OrderSide, price decimal.Decimal, size int64) (SignedOrder, error) {
	if c.signer == nil {
		return SignedOrder{}, fmt.Errorf("polymarket/clob: build order: %w", domain.ErrUnauthorized)
	}
	token, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return SignedOrder{}, fmt.Errorf("polymarket/clob: %w: token id %q", domain.ErrInvalidOrder, tokenID)
	}
	if size <= 0 || price.LessThan(domain.MinPrice) || price.GreaterThan(domain.MaxPrice) {
		return SignedOrder{}, fmt.Errorf("polymarket/clob: %w: %s x %d", domain.ErrInvalidOrder, price, size)
	}

	shares := decimal.NewFromInt(size).Mul(tokenUnit)
	usdc := price.Mul(decimal.NewFromInt(size)).Mul(tokenUnit).Truncate(0)
	makerAmt, takerAmt, sideCode, sideName := usdc, shares, crypto.SideBuy, "BUY"
	if side == domain.OrderSideSell {
		makerAmt, takerAmt, sideCode, sideName = shares, usdc, crypto.SideSell, "SELL"
	}

	saltBytes := make([]byte, 6)
	if _, err := rand.Read(saltBytes); err != nil {
		return SignedOrder{}, fmt.Errorf("polymarket/clob: salt: %w", err)
	}
	salt := new(big.Int).SetBytes(saltBytes)

	payload := crypto.OrderPayload{
		Salt:          salt,
		Maker:         c.signer.Address(),
		Signer:        c.signer.Address(),
		Taker:         common.Address{},
		TokenID:       token,
		MakerAmount:   makerAmt.BigInt(),
		TakerAmount:   takerAmt.BigInt(),
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          sideCode,
		SignatureType: crypto.SignatureEOA,
	}
	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("polymarket/clob: %w", err)
	}

	return SignedOrder{
		Salt:          salt.Int64(),
		Maker:         payload.Maker.Hex(),
		Signer:        payload.Signer.Hex(),
		Taker:         payload.Taker.Hex(),
		TokenID:       tokenID,
		MakerAmount:   makerAmt.String(),
		TakerAmount:   takerAmt.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideName,
		SignatureType: int(crypto.SignatureEOA),
		Signature:     sig,
	}, nil
}

// PostOrder submits a signed order. orderType is "FOK", "FAK" or "GTC".
func (c *ClobClient) PostOrder(ctx context.Context, order SignedOrder, orderType string) (PostOrderResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/order", PostOrderRequest{
		Order:     order,
		Owner:     c.creds.Key,
		OrderType: orderType,
	}, true)
	if err != nil {
		return PostOrderResponse{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var resp PostOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PostOrderResponse{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !resp.Success {
		return resp, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, resp.ErrorMsg)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds, optionally signs (HMAC), sends and reads a request.
func (c *ClobClient) do(ctx context.Context, method, path string, reqBody any, auth bool) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		if !c.HasCredentials() {
			return nil, domain.ErrUnauthorized
		}
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		h, err := c.creds.L2Headers(c.signer.Address().Hex(), method, signPath, bodyStr, c.now())
		if err != nil {
			return nil, err
		}
		for k, v := range h {
			req.Header[k] = v
		}
	}
	return c.send(req)
}

func (c *ClobClient) send(req *http.Request) ([]byte, error) {
	op := req.Method + " " + req.URL.Path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return nil, &domain.TransientVenueError{Venue: domain.VenuePolymarket, Op: op, Err: err}
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(op, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(op string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return &domain.TransientVenueError{Venue: domain.VenuePolymarket, Op: op, Err: fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)}
	case statusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, bodyStr)
	case statusCode >= 500:
		return &domain.TransientVenueError{Venue: domain.VenuePolymarket, Op: op, Err: fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)}
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
