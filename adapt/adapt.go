// Package adapt lets one concrete transport, whose native request type is
// Req, satisfy many generic typed request contracts R, given a pair of
// fallible conversions. Adaptation composes: a chain of adaptors is valid
// whenever the pairwise conversions line up, and the adapter never
// inspects a payload beyond the two conversions it was given.
package adapt

import (
	"context"

	"github.com/exchg/excli/svc"
)

// Adaptor converts a caller request R (with response RespR) into a
// transport's native request Req (with response RespReq), and converts
// the transport's response back. Either direction may fail; a conversion
// failure surfaces as the caller's error, never as a panic.
type Adaptor[R, RespR, Req, RespReq any] interface {
	FromRequest(r R) (Req, error)
	IntoResponse(resp RespReq) (RespR, error)
}

// AdaptorFuncs builds an Adaptor from two plain functions, for the common
// case where no extra state is needed.
type AdaptorFuncs[R, RespR, Req, RespReq any] struct {
	From func(R) (Req, error)
	Into func(RespReq) (RespR, error)
}

func (a AdaptorFuncs[R, RespR, Req, RespReq]) FromRequest(r R) (Req, error) {
	return a.From(r)
}

func (a AdaptorFuncs[R, RespR, Req, RespReq]) IntoResponse(resp RespReq) (RespR, error) {
	return a.Into(resp)
}

// Identity is the no-op adaptation for Req = R, RespReq = RespR.
type Identity[Req, Resp any] struct{}

func (Identity[Req, Resp]) FromRequest(r Req) (Req, error) { return r, nil }

func (Identity[Req, Resp]) IntoResponse(resp Resp) (Resp, error) { return resp, nil }

// Service wraps a transport svc.Service[Req, RespReq] behind an Adaptor so
// it satisfies svc.Service[R, RespR]. Adaptation is applied around every
// call; the transport is never invoked with an unconverted request.
type Service[R, RespR, Req, RespReq any] struct {
	transport svc.Service[Req, RespReq]
	adaptor   Adaptor[R, RespR, Req, RespReq]
}

// New builds an adapted service from a transport and an adaptor.
func New[R, RespR, Req, RespReq any](
	transport svc.Service[Req, RespReq],
	adaptor Adaptor[R, RespR, Req, RespReq],
) *Service[R, RespR, Req, RespReq] {
	return &Service[R, RespR, Req, RespReq]{transport: transport, adaptor: adaptor}
}

func (s *Service[R, RespR, Req, RespReq]) Ready(ctx context.Context) error {
	return s.transport.Ready(ctx)
}

func (s *Service[R, RespR, Req, RespReq]) Call(ctx context.Context, r R) (RespR, error) {
	var zero RespR

	req, err := s.adaptor.FromRequest(r)
	if err != nil {
		return zero, err
	}
	resp, err := s.transport.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	return s.adaptor.IntoResponse(resp)
}

// Chain composes two adaptors A->B and B->C into one A->C adaptor, valid
// whenever the intermediate type B lines up on both sides.
func Chain[R, RespR, Mid, RespMid, Req, RespReq any](
	outer Adaptor[R, RespR, Mid, RespMid],
	inner Adaptor[Mid, RespMid, Req, RespReq],
) Adaptor[R, RespR, Req, RespReq] {
	return chained[R, RespR, Mid, RespMid, Req, RespReq]{outer: outer, inner: inner}
}

type chained[R, RespR, Mid, RespMid, Req, RespReq any] struct {
	outer Adaptor[R, RespR, Mid, RespMid]
	inner Adaptor[Mid, RespMid, Req, RespReq]
}

func (c chained[R, RespR, Mid, RespMid, Req, RespReq]) FromRequest(r R) (Req, error) {
	var zero Req
	mid, err := c.outer.FromRequest(r)
	if err != nil {
		return zero, err
	}
	return c.inner.FromRequest(mid)
}

func (c chained[R, RespR, Mid, RespMid, Req, RespReq]) IntoResponse(resp RespReq) (RespR, error) {
	var zero RespR
	mid, err := c.inner.IntoResponse(resp)
	if err != nil {
		return zero, err
	}
	return c.outer.IntoResponse(mid)
}
