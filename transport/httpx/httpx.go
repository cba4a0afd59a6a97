// Package httpx adapts net/http into the svc.Service shape: a single
// Channel turns a typed request into a wire call by way of a per-request
// builder function, classifying non-2xx responses into xerrors.Kind.
// Retry, rate limiting, and timeouts are layered on top by svc; this
// package never retries on its own.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/exchg/excli/xerrors"
)

// Builder turns a typed request into the wire shape of one HTTP call.
type Builder[Req any] func(req Req) (method, path string, query url.Values, body any, err error)

// Decoder turns a successful response body into a typed result.
type Decoder[Resp any] func(status int, header http.Header, body []byte) (Resp, error)

// Channel is a svc.Service[Req, Resp] backed by *http.Client.
type Channel[Req, Resp any] struct {
	client  *http.Client
	baseURL string
	build   Builder[Req]
	decode  Decoder[Resp]
	headers func(ctx context.Context, method, path string, body []byte) (http.Header, error)
}

// Option configures a Channel.
type Option[Req, Resp any] func(*Channel[Req, Resp])

// WithHTTPClient overrides the default *http.Client.
func WithHTTPClient[Req, Resp any](c *http.Client) Option[Req, Resp] {
	return func(ch *Channel[Req, Resp]) { ch.client = c }
}

// WithHeaders attaches a per-request header/signing hook, given the
// resolved method, path, and marshalled body.
func WithHeaders[Req, Resp any](f func(ctx context.Context, method, path string, body []byte) (http.Header, error)) Option[Req, Resp] {
	return func(ch *Channel[Req, Resp]) { ch.headers = f }
}

// New builds a Channel. baseURL is trimmed of any trailing slash.
func New[Req, Resp any](baseURL string, build Builder[Req], decode Decoder[Resp], opts ...Option[Req, Resp]) *Channel[Req, Resp] {
	ch := &Channel[Req, Resp]{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		build:   build,
		decode:  decode,
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Ready always admits: the HTTP channel has no connection-level readiness
// state of its own.
func (ch *Channel[Req, Resp]) Ready(ctx context.Context) error {
	return nil
}

// Call builds, sends, and decodes one request.
func (ch *Channel[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	method, path, query, bodyVal, err := ch.build(req)
	if err != nil {
		return zero, xerrors.Wrap(xerrors.Other, fmt.Errorf("httpx: building request: %w", err))
	}
	if path != "" && path[0] != '/' {
		path = "/" + path
	}

	var bodyBytes []byte
	if bodyVal != nil {
		bodyBytes, err = json.Marshal(bodyVal)
		if err != nil {
			return zero, xerrors.Wrap(xerrors.Other, fmt.Errorf("httpx: marshalling request body: %w", err))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, ch.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return zero, xerrors.Wrap(xerrors.Other, fmt.Errorf("httpx: creating request: %w", err))
	}
	if len(query) > 0 {
		httpReq.URL.RawQuery = query.Encode()
	}
	if bodyVal != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if ch.headers != nil {
		hdr, err := ch.headers(ctx, method, path, bodyBytes)
		if err != nil {
			return zero, xerrors.Wrap(xerrors.KeyError, fmt.Errorf("httpx: signing request: %w", err))
		}
		for k, vals := range hdr {
			for _, v := range vals {
				httpReq.Header.Add(k, v)
			}
		}
	}

	resp, err := ch.client.Do(httpReq)
	if err != nil {
		return zero, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, xerrors.Wrap(xerrors.Other, fmt.Errorf("httpx: reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, classifyStatus(resp.StatusCode, respBody)
	}

	result, err := ch.decode(resp.StatusCode, resp.Header, respBody)
	if err != nil {
		return zero, xerrors.Wrap(xerrors.Other, fmt.Errorf("httpx: decoding response body: %w", err))
	}
	return result, nil
}

// classifyTransportError maps a network-level failure (as opposed to a
// non-2xx HTTP response) onto the error taxonomy.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return xerrors.Wrap(xerrors.TransportTimeout, fmt.Errorf("httpx: request timed out: %w", err))
	}
	return xerrors.Wrap(xerrors.TransportIsBroken, fmt.Errorf("httpx: request failed: %w", err))
}

// apiBody is the {code, msg} shape known API error bodies carry.
type apiBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// classifyStatus maps a non-2xx HTTP response onto the error taxonomy per
// the known status table: 429 and 418 are rate limiting, 503 is
// unavailable, 403 is forbidden, 401 is a key error, 404 is order not
// found, and everything else is a generic API error. Each error carries
// the body's msg, or the raw body text when it has none.
func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}

	var parsed apiBody
	_ = json.Unmarshal(body, &parsed)
	if parsed.Msg != "" {
		msg = parsed.Msg
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return xerrors.New(xerrors.RateLimited, fmt.Sprintf("httpx: %d %s", status, msg))
	case status == http.StatusServiceUnavailable:
		return xerrors.New(xerrors.Unavailable, fmt.Sprintf("httpx: %d %s", status, msg))
	case status == http.StatusForbidden:
		return xerrors.New(xerrors.Forbidden, fmt.Sprintf("httpx: %d %s", status, msg))
	case status == http.StatusUnauthorized:
		return xerrors.New(xerrors.KeyError, fmt.Sprintf("httpx: %d %s", status, msg))
	case status == http.StatusNotFound:
		return xerrors.New(xerrors.OrderNotFound, fmt.Sprintf("httpx: %d %s", status, msg))
	default:
		return xerrors.New(xerrors.Api, fmt.Sprintf("httpx: %d %s", status, msg))
	}
}
