package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APICredentials are the Polymarket CLOB API key triple obtained from the
// derive-api-key endpoint.
type APICredentials struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"` // URL-safe base64
	Passphrase string `json:"passphrase"`
}

// L2Headers signs a CLOB request: HMAC-SHA256 over
// timestamp + method + path + body, keyed with the decoded secret.
func (c APICredentials) L2Headers(address, method, path, body string, at time.Time) (http.Header, error) {
	secret, err := decodeSecret(c.Secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode api secret: %w", err)
	}
	ts := strconv.FormatInt(at.Unix(), 10)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))

	h := http.Header{}
	h.Set("POLY_ADDRESS", address)
	h.Set("POLY_API_KEY", c.Key)
	h.Set("POLY_TIMESTAMP", ts)
	h.Set("POLY_PASSPHRASE", c.Passphrase)
	h.Set("POLY_SIGNATURE", base64.URLEncoding.EncodeToString(mac.Sum(nil)))
	return h, nil
}

// Valid reports whether all three parts are present.
func (c APICredentials) Valid() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// String redacts the secret parts for logging.
func (c APICredentials) String() string {
	return fmt.Sprintf("APICredentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}

func decodeSecret(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
