package multiplex

import (
	"sync"
	"time"

	"github.com/exchg/excli/wsproto"
)

// state is a StreamState's lifecycle stage.
type state int

const (
	stateIdle state = iota
	stateOpen
	stateLocalClosing
	stateRemoteClosed
)

// Item is one delivered value on a sub-stream's queue. Err is non-nil only
// on the terminal item; the queue is closed immediately after.
type Item struct {
	Frame wsproto.ServerFrame
	Err   error
}

// streamEntry is one row of the StreamTable.
type streamEntry struct {
	id      uint64
	topic   string // "" means the stream owns no topic (unary RPC, or not yet admitted)
	state   state
	queue   *unboundedQueue[Item]
	timeout time.Duration

	closingDeadline time.Time
}

// streamTable maps stream id -> StreamState, with a secondary topic ->
// stream id index enforcing at most one live stream per topic. The
// invariants spec.md names:
//   - StreamTable[id].topic = Some(t) => topicIndex[t] = id
//   - every topic in topicIndex points to a stream in Open or LocalClosing
// are maintained by construction: topic is only ever set, and the topic
// index only ever populated, inside admitTopic, and remove clears both
// together. remoteClosed is the one exception: it drops the topic-index
// entry but leaves the entry's topic set, so the first invariant does not
// hold for a RemoteClosed entry.
type streamTable struct {
	mu         sync.Mutex
	entries    map[uint64]*streamEntry
	topicIndex map[string]uint64
	nextID     uint64
}

func newStreamTable() *streamTable {
	return &streamTable{
		entries:    make(map[uint64]*streamEntry),
		topicIndex: make(map[string]uint64),
	}
}

// insert installs a new Idle entry and returns its assigned id.
func (t *streamTable) insert(timeout time.Duration) *streamEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	e := &streamEntry{
		id:      id,
		state:   stateIdle,
		queue:   newUnboundedQueue[Item](),
		timeout: timeout,
	}
	t.entries[id] = e
	return e
}

func (t *streamTable) get(id uint64) (*streamEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

// topicOwner reports the stream id currently owning topic, if any.
func (t *streamTable) topicOwner(topic string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.topicIndex[topic]
	return id, ok
}

// admitTopic transitions id from Idle to Open, claiming topic, iff the
// topic is not already owned by a different (Open or LocalClosing) stream.
// Returns false if the topic is already owned (the caller must then
// refuse the subscribe and drop the stream without ever claiming it).
func (t *streamTable) admitTopic(id uint64, topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, owned := t.topicIndex[topic]; owned {
		return false
	}
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	e.state = stateOpen
	e.topic = topic
	t.topicIndex[topic] = id
	return true
}

// transition moves id to a new state under the table lock.
func (t *streamTable) transition(id uint64, to state) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.state = to
	}
}

// localClosing marks id LocalClosing with a deadline, keeping its topic
// claim (the invariant that a LocalClosing stream still owns its topic in
// the index holds until remove is called).
func (t *streamTable) localClosing(id uint64, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.state = stateLocalClosing
		e.closingDeadline = deadline
	}
}

// remove drops id from the table and, if it owned a topic, from the topic
// index too — the two are always removed together.
func (t *streamTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return
	}
	if e.topic != "" {
		if owner, ok := t.topicIndex[e.topic]; ok && owner == id {
			delete(t.topicIndex, e.topic)
		}
	}
	delete(t.entries, id)
	e.queue.closeQ()
}

// remoteClosed marks id RemoteClosed and releases its topic claim right
// away, so a fresh subscription for the same topic can be admitted
// immediately. The row itself is kept until deadline so a frame arriving
// late for the now-closed stream can still be observed as a protocol
// violation rather than silently vanishing; the zombie sweep reaps it.
func (t *streamTable) remoteClosed(id uint64, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return
	}
	if e.topic != "" {
		if owner, ok := t.topicIndex[e.topic]; ok && owner == id {
			delete(t.topicIndex, e.topic)
		}
	}
	e.state = stateRemoteClosed
	e.closingDeadline = deadline
}

// expiredClosing returns entries in LocalClosing or RemoteClosed whose
// deadline has elapsed as of now, ready for remove.
func (t *streamTable) expiredClosing(now time.Time) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []uint64
	for id, e := range t.entries {
		if (e.state == stateLocalClosing || e.state == stateRemoteClosed) && now.After(e.closingDeadline) {
			ids = append(ids, id)
		}
	}
	return ids
}

// all returns every live entry, used for connection teardown.
func (t *streamTable) all() []*streamEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*streamEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// clear removes every entry, closing every queue. Used on teardown.
func (t *streamTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.queue.closeQ()
	}
	t.entries = make(map[uint64]*streamEntry)
	t.topicIndex = make(map[string]uint64)
}
