package multiplex

import "fmt"

// ErrEmptyStreamName is returned to the caller when the first frame sent
// on a new sub-stream is not a valid subscribe frame.
type ErrEmptyStreamName struct{}

func (ErrEmptyStreamName) Error() string {
	return "multiplex: first caller frame was not a subscribe frame"
}

// ErrStreamSubscribed is returned to the caller when it opens a sub-stream
// for a topic that is already owned by another live stream on this
// connection. The engine never issues a second wire subscribe for the
// same topic; callers that need to share one subscription across many
// listeners should go through a SharedSubscriber instead of calling the
// engine directly per listener.
type ErrStreamSubscribed struct {
	Topic string
}

func (e *ErrStreamSubscribed) Error() string {
	return fmt.Sprintf("multiplex: topic %q is already subscribed on this connection", e.Topic)
}

// ErrProtocolViolation marks an invariant violation in the stream table
// (a response frame arriving for a RemoteClosed stream, for instance).
// The engine never panics on one: it reports the violation through its
// logger and leaves the entry in the table for the zombie worker to reap.
type ErrProtocolViolation struct {
	Detail string
}

func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("multiplex: protocol violation: %s", e.Detail)
}

// ErrUnconfiguredMainStream is returned when SubscribeMainStream names a
// topic the engine was not configured to keep permanently open.
type ErrUnconfiguredMainStream struct {
	Topic string
}

func (e *ErrUnconfiguredMainStream) Error() string {
	return fmt.Sprintf("multiplex: %q is not a configured main-stream topic", e.Topic)
}
