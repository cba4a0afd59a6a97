// Package server is the in-process reference exchange exchange/demo dials
// into: an httptest.Server exposing REST endpoints for instruments,
// orders, and candles, plus a WebSocket endpoint streaming synthetic
// ticker/trade/bidAsk feeds and private order-update events. It exists so
// the module's HTTP and WS transport stacks (transport/httpx, wsproto,
// multiplex, rpc, reconnect) have a real peer to exercise end to end
// without requiring a live exchange connection.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/exchg/excli/exchange/demo/wireproto"
	"github.com/exchg/excli/types"
	"github.com/exchg/excli/wsproto"
)

// Server is the reference exchange's process-local state plus its HTTP and
// WS listeners.
type Server struct {
	http     *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	instruments map[string]types.InstrumentMeta
	candles     map[string][]types.Candle
	orders      map[types.OrderID]*types.Order
	nextOrderID int

	connsMu sync.Mutex
	conns   map[*liveConn]struct{}
}

// liveConn is one connected WS client's private order-update mailbox.
type liveConn struct {
	orderUpdates chan wireproto.OrderStreamUpdate
}

// New builds and starts a Server seeded with one instrument (DEMO-USD) and
// a day of synthetic 1-minute candles.
func New() *Server {
	s := &Server{
		instruments: make(map[string]types.InstrumentMeta),
		candles:     make(map[string][]types.Candle),
		orders:      make(map[types.OrderID]*types.Order),
		conns:       make(map[*liveConn]struct{}),
	}
	s.seed()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /instruments", s.handleInstruments)
	mux.HandleFunc("POST /orders/place", s.handlePlaceOrder)
	mux.HandleFunc("POST /orders/cancel", s.handleCancelOrder)
	mux.HandleFunc("POST /orders/get", s.handleGetOrder)
	mux.HandleFunc("POST /candles", s.handleCandles)
	mux.HandleFunc("GET /stream", s.handleStream)
	s.http = httptest.NewServer(mux)
	return s
}

func (s *Server) seed() {
	meta := types.InstrumentMeta{
		Name:   "DEMO-USD",
		Symbol: "DEMOUSD",
		Live:   true,
		Attrs: types.InstrumentAttrs{
			Unit:      "USD",
			PriceTick: decimal.NewFromFloat(0.01),
			SizeTick:  decimal.NewFromFloat(0.001),
			MinSize:   decimal.NewFromFloat(0.001),
			MinValue:  decimal.NewFromFloat(1),
		},
	}
	s.instruments[meta.Name] = meta

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(100)
	rows := make([]types.Candle, 0, 1440)
	for i := 0; i < 1440; i++ {
		rows = append(rows, types.Candle{
			Ts:     base.Add(time.Duration(i) * time.Minute),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: decimal.NewFromInt(1),
		})
	}
	s.candles[meta.Name] = rows
}

// HTTPAddr returns the server's base HTTP URL (http://host:port).
func (s *Server) HTTPAddr() string { return s.http.URL }

// WSAddr returns the server's WebSocket stream URL (ws://host:port/stream).
func (s *Server) WSAddr() string { return "ws" + s.http.URL[len("http"):] + "/stream" }

// Close shuts down the HTTP listener. WS connections that were already
// upgraded have been hijacked from the HTTP server and are not closed by it.
func (s *Server) Close() { s.http.Close() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, wireproto.ErrorBody{Kind: kind, Msg: msg})
}

func decodeBody[T any](r *http.Request) (T, error) {
	var v T
	err := json.NewDecoder(r.Body).Decode(&v)
	return v, err
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rows := make([]types.InstrumentMeta, 0, len(s.instruments))
	for _, m := range s.instruments {
		rows = append(rows, m)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, wireproto.InstrumentsResponse{Instruments: rows})
}

func (s *Server) lookupInstrument(name string) (types.InstrumentMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.instruments[name]
	return m, ok
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[wireproto.PlaceOrderRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := req.Place.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if _, ok := s.lookupInstrument(req.Opts.Instrument); !ok {
		writeError(w, http.StatusNotFound, "instrument_not_found", "demo: unknown instrument "+req.Opts.Instrument)
		return
	}

	s.mu.Lock()
	s.nextOrderID++
	id := types.OrderID(fmt.Sprintf("demo-%d", s.nextOrderID))
	price := req.Place.Kind.Price
	if req.Place.Kind.Tag == types.Market {
		price = decimal.NewFromInt(100)
	}
	order := &types.Order{
		ID:     id,
		Target: req.Place,
		State:  orderStateFilled(req.Place.Size, price),
	}
	s.orders[id] = order
	s.mu.Unlock()

	s.broadcastOrderUpdate(req.Opts.Instrument, types.OrderUpdate{Order: *order})
	writeJSON(w, http.StatusOK, wireproto.PlaceOrderResponse{
		Placed: types.Placed{ID: id, Order: order, TsMs: time.Now().UnixMilli()},
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[wireproto.CancelOrderRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.mu.Lock()
	order, ok := s.orders[req.ID]
	if ok {
		order.State.Status = types.Finished
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "order_not_found", "demo: order not found: "+req.ID.String())
		return
	}
	s.broadcastOrderUpdate(req.Instrument, types.OrderUpdate{Order: *order})
	writeJSON(w, http.StatusOK, wireproto.CancelOrderResponse{Cancelled: types.Cancelled{ID: req.ID}})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[wireproto.GetOrderRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.mu.RLock()
	order, ok := s.orders[req.ID]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "order_not_found", "demo: order not found: "+req.ID.String())
		return
	}
	writeJSON(w, http.StatusOK, wireproto.GetOrderResponse{Update: types.OrderUpdate{Order: *order}})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[wireproto.CandlesRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.mu.RLock()
	rows, ok := s.candles[req.Instrument]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "instrument_not_found", "demo: unknown instrument "+req.Instrument)
		return
	}

	var out []types.Candle
	switch req.Direction {
	case wireproto.Forward:
		for _, c := range rows {
			if !inRange(c.Ts, req.Range) {
				continue
			}
			out = append(out, c)
			if len(out) == req.Limit {
				break
			}
		}
	case wireproto.Backward:
		var matched []types.Candle
		for _, c := range rows {
			if inRange(c.Ts, req.Range) {
				matched = append(matched, c)
			}
		}
		if len(matched) > req.Limit {
			matched = matched[len(matched)-req.Limit:]
		}
		out = matched
	}
	writeJSON(w, http.StatusOK, wireproto.CandlesResponse{Candles: out})
}

func inRange(ts time.Time, rng types.Range) bool {
	switch rng.Start.Kind {
	case types.Included:
		if ts.Before(rng.Start.At) {
			return false
		}
	case types.Excluded:
		if !ts.After(rng.Start.At) {
			return false
		}
	}
	switch rng.End.Kind {
	case types.Included:
		if ts.After(rng.End.At) {
			return false
		}
	case types.Excluded:
		if !ts.Before(rng.End.At) {
			return false
		}
	}
	return true
}

func orderStateFilled(size, price decimal.Decimal) types.OrderState {
	return types.OrderState{
		Filled: size,
		Cost:   size.Mul(price).Abs(),
		Status: types.Finished,
		Fees:   map[string]decimal.Decimal{},
		Trade: &types.OrderTrade{
			Price: price,
			Size:  size.Abs(),
			Ts:    time.Now().UnixMilli(),
		},
	}
}

func (s *Server) broadcastOrderUpdate(instrument string, update types.OrderUpdate) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for c := range s.conns {
		select {
		case c.orderUpdates <- wireproto.OrderStreamUpdate{Instrument: instrument, Update: update}:
		default:
		}
	}
}

// wireConn speaks the server's half of the wsproto wire format over a raw
// gorilla/websocket connection: wsproto.Conn only implements the client
// side (it writes RequestFrame and reads ServerFrame), so the reference
// exchange needs the mirror image — read RequestFrame, write ServerFrame
// shaped JSON. Writes are serialized the same way wsproto.Conn does, since
// gorilla/websocket forbids concurrent writers.
type wireConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newWireConn(ws *websocket.Conn) *wireConn { return &wireConn{ws: ws} }

func (c *wireConn) readRequest() (wsproto.RequestFrame, error) {
	var f wsproto.RequestFrame
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(data, &f)
	return f, err
}

// serverWireFrame mirrors wsproto's unexported wireFrame shape: the same
// JSON field names ParseServerFrame sniffs on the client side.
type serverWireFrame struct {
	ID     string          `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Arg    *wsproto.Topic  `json:"arg,omitempty"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (c *wireConn) write(f serverWireFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wireConn) writeEvent(id, event string) error {
	return c.write(serverWireFrame{ID: id, Event: event})
}

func (c *wireConn) writeStream(channel, instrument string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(serverWireFrame{
		Arg:  &wsproto.Topic{Channel: channel, Instrument: instrument},
		Data: data,
	})
}

func (c *wireConn) Close() error { return c.ws.Close() }

// handleStream upgrades to a WebSocket and runs the connection for its
// lifetime: a login handshake, then continuous synthetic ticker/trade/
// bidAsk frames for DEMO-USD plus any order-update events broadcast while
// connected. Subscribe/unsubscribe frames are accepted but not tracked per
// connection — every connected client observes the same public feed and
// the private order feed, matching the topic-based filtering the client's
// own stream table already performs locally.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := newWireConn(ws)
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := s.awaitLogin(conn); err != nil {
		return
	}
	go s.drainInbound(conn, cancel)

	live := &liveConn{orderUpdates: make(chan wireproto.OrderStreamUpdate, 16)}
	s.connsMu.Lock()
	s.conns[live] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, live)
		s.connsMu.Unlock()
	}()

	s.runFeeds(ctx, conn, live)
}

// awaitLogin blocks for the client's first frame (expected to be an
// OpLogin request) and acks it with a response frame correlated by the
// same request id, the way rpc.Client expects its one-shot Call to resolve.
func (s *Server) awaitLogin(conn *wireConn) error {
	f, err := conn.readRequest()
	if err != nil {
		return err
	}
	return conn.writeEvent(f.ID, "login")
}

// drainInbound reads and discards every inbound client frame (subscribe/
// unsubscribe requests the server doesn't need to track; see handleStream)
// until the connection breaks, then cancels ctx so the feed loop exits too.
func (s *Server) drainInbound(conn *wireConn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, err := conn.readRequest(); err != nil {
			return
		}
	}
}

func (s *Server) runFeeds(ctx context.Context, conn *wireConn, live *liveConn) {
	tickerT := time.NewTicker(200 * time.Millisecond)
	tradeT := time.NewTicker(300 * time.Millisecond)
	bidAskT := time.NewTicker(250 * time.Millisecond)
	defer tickerT.Stop()
	defer tradeT.Stop()
	defer bidAskT.Stop()

	price := decimal.NewFromInt(100)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tickerT.C:
			delta := decimal.NewFromFloat(rand.Float64()*2 - 1)
			price = price.Add(delta)
			buy := rand.Intn(2) == 0
			if err := conn.writeStream(wireproto.TickerTopic, "DEMO-USD", types.Ticker{
				Instrument: "DEMO-USD", Last: price, Buy: &buy, TsMs: time.Now().UnixMilli(),
			}); err != nil {
				return
			}
		case <-tradeT.C:
			buy := rand.Intn(2) == 0
			if err := conn.writeStream(wireproto.TradeTopic, "DEMO-USD", types.Trade{
				Instrument: "DEMO-USD", Price: decimal.NewFromInt(100), Size: decimal.NewFromFloat(0.01),
				Buy: &buy, TsMs: time.Now().UnixMilli(),
			}); err != nil {
				return
			}
		case <-bidAskT.C:
			if err := conn.writeStream(wireproto.BidAskTopic, "DEMO-USD", types.BidAsk{
				Instrument: "DEMO-USD", Bid: decimal.NewFromFloat(99.99), BidSize: decimal.NewFromInt(1),
				Ask: decimal.NewFromFloat(100.01), AskSize: decimal.NewFromInt(1), TsMs: time.Now().UnixMilli(),
			}); err != nil {
				return
			}
		case update := <-live.orderUpdates:
			if err := conn.writeStream(wireproto.OrdersTopic, "", update); err != nil {
				return
			}
		}
	}
}
