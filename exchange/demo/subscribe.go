package demo

import (
	"context"
	"encoding/json"

	"github.com/exchg/excli/exchange/demo/wireproto"
	"github.com/exchg/excli/instrument"
	"github.com/exchg/excli/multiplex"
	"github.com/exchg/excli/types"
	"github.com/exchg/excli/wsproto"
)

// SubscribeInstruments implements instrument.Subscriber. Demo's instrument
// set never changes after the snapshot New took, so the returned channel
// simply blocks until ctx is cancelled.
func (e *Exchange) SubscribeInstruments(ctx context.Context, tag string) (<-chan instrument.Update, <-chan error, error) {
	updates := make(chan instrument.Update)
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		close(updates)
	}()
	return updates, errCh, nil
}

// SubscribeTickers joins the "tickers:<instrument>" public stream, shared
// across every caller watching the same instrument via sharedSub.
func (e *Exchange) SubscribeTickers(ctx context.Context, instrumentName string) (<-chan types.Ticker, error) {
	if _, ok := e.lookupInstrument(instrumentName); !ok {
		return nil, errUnknownInstrument(instrumentName)
	}
	topic := wsproto.Topic{Channel: wireproto.TickerTopic, Instrument: instrumentName}.String()
	resp, err := e.wiring.sharedSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return joinStream[types.Ticker](ctx, resp), nil
}

// SubscribeTrades joins the "trades:<instrument>" public stream.
func (e *Exchange) SubscribeTrades(ctx context.Context, instrumentName string) (<-chan types.Trade, error) {
	if _, ok := e.lookupInstrument(instrumentName); !ok {
		return nil, errUnknownInstrument(instrumentName)
	}
	topic := wsproto.Topic{Channel: wireproto.TradeTopic, Instrument: instrumentName}.String()
	resp, err := e.wiring.sharedSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return joinStream[types.Trade](ctx, resp), nil
}

// SubscribeBidAsk joins the "bidAsk:<instrument>" public stream.
func (e *Exchange) SubscribeBidAsk(ctx context.Context, instrumentName string) (<-chan types.BidAsk, error) {
	if _, ok := e.lookupInstrument(instrumentName); !ok {
		return nil, errUnknownInstrument(instrumentName)
	}
	topic := wsproto.Topic{Channel: wireproto.BidAskTopic, Instrument: instrumentName}.String()
	resp, err := e.wiring.sharedSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return joinStream[types.BidAsk](ctx, resp), nil
}

// joinStream decodes every item's raw frame data into T, forwarding it
// onto the returned channel until ctx is cancelled or the upstream stream
// closes; either way it releases resp.
func joinStream[T any](ctx context.Context, resp multiplex.MultiplexResponse) <-chan T {
	out := make(chan T, 16)
	go func() {
		defer close(out)
		defer resp.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-resp.Frames:
				if !ok || item.Err != nil {
					return
				}
				var v T
				if err := json.Unmarshal(item.Frame.Data, &v); err != nil {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
