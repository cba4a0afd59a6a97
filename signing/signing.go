// Package signing turns a request's method/path/body into the headers an
// exchange's private endpoints require. It is wired into transport/httpx
// via the WithHeaders hook, so each exchange adapter only needs to pick a
// Signer rather than reimplement a signing scheme.
package signing

import (
	"context"
	"net/http"
)

// Signer produces the headers for one authenticated request.
type Signer interface {
	Sign(ctx context.Context, method, path string, body []byte) (http.Header, error)
}

// HeaderNames lets an exchange adapter rename the wire header keys a
// Signer writes without touching the signing math itself.
type HeaderNames struct {
	Address    string
	Signature  string
	Timestamp  string
	Nonce      string
	ApiKey     string
	Passphrase string
}

// DefaultHeaderNames mirrors the header convention most CLOB-style
// exchanges in the wild use.
var DefaultHeaderNames = HeaderNames{
	Address:    "X-Signer-Address",
	Signature:  "X-Signature",
	Timestamp:  "X-Timestamp",
	Nonce:      "X-Nonce",
	ApiKey:     "X-Api-Key",
	Passphrase: "X-Api-Passphrase",
}
