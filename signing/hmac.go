package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// Credentials is the exchange-issued API key tier: day-to-day private
// calls sign with these rather than the wallet key.
type Credentials struct {
	ApiKey     string
	ApiSecret  string // base64 URL-safe encoded
	Passphrase string
	Address    string
}

// HMACSigner signs timestamp+method+path+body with HMAC-SHA256 over the
// base64 URL-safe decoded secret, the scheme almost every CLOB-style
// exchange uses for its API-key tier.
type HMACSigner struct {
	Creds   Credentials
	Headers HeaderNames
}

// NewHMACSigner builds an HMACSigner with the default header names.
func NewHMACSigner(creds Credentials) *HMACSigner {
	return &HMACSigner{Creds: creds, Headers: DefaultHeaderNames}
}

func (s *HMACSigner) Sign(ctx context.Context, method, path string, body []byte) (http.Header, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	sig, err := buildHMACSignature(s.Creds.ApiSecret, timestamp, method, path, string(body))
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(s.Headers.Address, s.Creds.Address)
	h.Set(s.Headers.Signature, sig)
	h.Set(s.Headers.Timestamp, timestamp)
	h.Set(s.Headers.ApiKey, s.Creds.ApiKey)
	h.Set(s.Headers.Passphrase, s.Creds.Passphrase)
	return h, nil
}

// buildHMACSignature signs timestamp+method+path+body, returning a base64
// URL-safe encoded digest.
func buildHMACSignature(secret, timestamp, method, path, body string) (string, error) {
	decodedSecret, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("signing: failed to decode secret: %w", err)
	}

	message := timestamp + method + path + body
	mac := hmac.New(sha256.New, decodedSecret)
	mac.Write([]byte(message))

	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
