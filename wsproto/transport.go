package wsproto

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// Transport is a bidirectional stream of framed messages. It owns no
// timers and no stream state; KeepAlive and the multiplex engine are
// layered on top.
type Transport interface {
	WriteFrame(ctx context.Context, f RequestFrame) error
	ReadFrame(ctx context.Context) (ServerFrame, error)
	// WritePong is invoked when the engine has locally decided to reply to a
	// server-initiated ping frame out of band (see Conn.WritePong).
	WritePong(ctx context.Context) error
	WritePing(ctx context.Context) error
	Close() error
}

// Conn is a Transport backed by a single gorilla/websocket connection.
// Writes are serialized: gorilla/websocket does not support concurrent
// writers.
type Conn struct {
	ws      *websocket.Conn
	writeMu chan struct{} // 1-buffered mutex so writes never block reads

	pingText []byte
	pongText []byte
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithPingText sets the literal text sent for a client-initiated ping
// (some exchanges use a control string instead of a WS control frame).
func WithPingText(text string) ConnOption {
	return func(c *Conn) { c.pingText = []byte(text) }
}

// WithPongText sets the literal text recognized as a server pong reply.
func WithPongText(text string) ConnOption {
	return func(c *Conn) { c.pongText = []byte(text) }
}

// Dial opens a new WebSocket connection to url.
func Dial(ctx context.Context, url string, header http.Header, opts ...ConnOption) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	c := &Conn{ws: ws, writeMu: make(chan struct{}, 1)}
	c.writeMu <- struct{}{}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Conn) lockWrite() { <-c.writeMu }
func (c *Conn) unlockWrite() { c.writeMu <- struct{}{} }

func (c *Conn) WriteFrame(ctx context.Context, f RequestFrame) error {
	data, err := EncodeRequest(f)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(dl)
	}
	c.lockWrite()
	defer c.unlockWrite()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) WritePing(ctx context.Context) error {
	c.lockWrite()
	defer c.unlockWrite()
	if len(c.pingText) > 0 {
		return c.ws.WriteMessage(websocket.TextMessage, c.pingText)
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *Conn) WritePong(ctx context.Context) error {
	c.lockWrite()
	defer c.unlockWrite()
	if len(c.pongText) > 0 {
		return c.ws.WriteMessage(websocket.TextMessage, c.pongText)
	}
	return c.ws.WriteMessage(websocket.PongMessage, nil)
}

func (c *Conn) ReadFrame(ctx context.Context) (ServerFrame, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(dl)
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return ServerFrame{}, err
	}
	if len(c.pongText) > 0 && string(data) == string(c.pongText) {
		return ServerFrame{Kind: pongFrameKind}, nil
	}
	return ParseServerFrame(data)
}

// pongFrameKind is a sentinel used only internally by ReadFrame to signal
// a text-based pong to KeepAlive without adding a new exported kind that
// multiplex would otherwise have to account for.
const pongFrameKind ServerFrameKind = -1

func (c *Conn) Close() error {
	return c.ws.Close()
}
