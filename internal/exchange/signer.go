package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// HMACSigner is a generic query-string HMAC-SHA256 signer, the shape
// venue adapters in the pack (Binance, OKX, Bybit, Gate, Bitget) all
// converge on: API key header, timestamp query param, signature over the
// encoded query string.
type HMACSigner struct {
	APIKey    string
	SecretKey string
	KeyHeader string // defaults to "X-API-KEY" if empty
}

func (s HMACSigner) Sign(req *http.Request, body []byte) error {
	header := s.KeyHeader
	if header == "" {
		header = "X-API-KEY"
	}
	req.Header.Set(header, s.APIKey)

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	}

	queryString := q.Encode()
	mac := hmac.New(sha256.New, []byte(s.SecretKey))
	mac.Write([]byte(queryString))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	req.URL.RawQuery = q.Encode()
	return nil
}
