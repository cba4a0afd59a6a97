// Package wsproto is the wire layer: JSON frame codecs over a text
// WebSocket, plus the keep-alive wrapper that turns idle/ping deadlines
// into a single closed-stream signal. The framing layer owns no timers and
// no state beyond the codecs themselves.
package wsproto

import "encoding/json"

// Op names an outgoing request frame's operation.
type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpLogin       Op = "login"
)

// RequestFrame is a client-to-server frame: {id, op, args}.
type RequestFrame struct {
	ID   string          `json:"id,omitempty"`
	Op   Op              `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ServerFrameKind classifies one parsed inbound frame.
type ServerFrameKind int

const (
	// KindUnknown frames are dropped by the caller with a warning.
	KindUnknown ServerFrameKind = iota
	KindResponse
	KindStream
	KindError
)

// Topic is the exchange-defined (channel, instrument, ...) address carried
// by a stream frame's arg.
type Topic struct {
	Channel    string `json:"channel"`
	Instrument string `json:"instId,omitempty"`
}

// String renders the topic as a stable key for the topic index.
func (t Topic) String() string {
	if t.Instrument == "" {
		return t.Channel
	}
	return t.Channel + ":" + t.Instrument
}

// ServerFrame is the parsed form of one inbound text message: exactly one
// of Response, Stream, or Err is meaningful, selected by Kind.
type ServerFrame struct {
	Kind ServerFrameKind

	// Response fields.
	RequestID string
	Event     string // "subscribe" | "unsubscribe" | "error" | "login"

	// Stream fields.
	Topic  Topic
	Action string // "snapshot" | "update", exchange-specific, may be empty

	// Error fields.
	Code string
	Msg  string

	Data json.RawMessage
}

// wireFrame is the superset shape used to sniff an inbound text message
// before committing to one of the three ServerFrame kinds.
type wireFrame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Code  string          `json:"code,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Arg   *Topic          `json:"arg,omitempty"`
	Action string         `json:"action,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseServerFrame classifies and decodes one inbound text message.
// Messages that match none of the known shapes return KindUnknown; the
// caller is responsible for logging and dropping them.
func ParseServerFrame(raw []byte) (ServerFrame, error) {
	var w wireFrame
	if err := json.Unmarshal(raw, &w); err != nil {
		return ServerFrame{}, err
	}

	switch {
	case w.Event != "":
		return ServerFrame{
			Kind:      eventKind(w),
			RequestID: w.ID,
			Event:     w.Event,
			Code:      w.Code,
			Msg:       w.Msg,
			Data:      w.Data,
		}, nil
	case w.Arg != nil:
		return ServerFrame{
			Kind:   KindStream,
			Topic:  *w.Arg,
			Action: w.Action,
			Data:   w.Data,
		}, nil
	default:
		return ServerFrame{Kind: KindUnknown, Data: raw}, nil
	}
}

func eventKind(w wireFrame) ServerFrameKind {
	if w.Event == "error" {
		return KindError
	}
	return KindResponse
}

// EncodeRequest serializes a client-side request frame to JSON text.
func EncodeRequest(f RequestFrame) ([]byte, error) {
	return json.Marshal(f)
}
