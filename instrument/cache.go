// Package instrument maintains a live, readers-writer-locked cache of
// instrument metadata: a one-shot HTTP snapshot fetch followed by a
// permanent WS subscription applying insert/update/expire deltas, with
// automatic resubscription on stream failure.
package instrument

import (
	"context"
	"sync"

	"github.com/exchg/excli/types"
	"github.com/exchg/excli/xerrors"
)

type cacheState int

const (
	stateInit cacheState = iota
	stateFetching
	stateReady
	stateResubscribing
	stateFailed
)

// Fetcher performs the one-shot snapshot fetch.
type Fetcher interface {
	FetchInstruments(ctx context.Context, tag string) ([]types.InstrumentMeta, error)
}

// Update is one delta applied to the cache after the initial snapshot.
type Update struct {
	Meta    types.InstrumentMeta
	Expired bool
}

// Subscriber opens the permanent update stream. The returned channel is
// closed (with a final error, if any, available through the second
// return) when the underlying stream ends; Cache resubscribes.
type Subscriber interface {
	SubscribeInstruments(ctx context.Context, tag string) (<-chan Update, <-chan error, error)
}

// Cache is the instrument cache service described by the exchange's
// instrument-metadata channel: FetchInstruments populates it once, then
// SubscribeInstruments keeps it live for the lifetime of the Cache.
type Cache struct {
	fetch Fetcher
	sub   Subscriber

	mu      sync.RWMutex
	state   cacheState
	byName  map[string]*types.InstrumentMeta
	bySym   map[string]string // symbol -> name
	ready   chan struct{}     // closed once the first fetch completes
	failErr error

	watchersMu sync.Mutex
	watchers   []chan Update
}

// New builds a Cache; call Run once to drive the fetch/subscribe loop.
func New(fetch Fetcher, sub Subscriber) *Cache {
	return &Cache{
		fetch:  fetch,
		sub:    sub,
		byName: make(map[string]*types.InstrumentMeta),
		bySym:  make(map[string]string),
		ready:  make(chan struct{}),
	}
}

// Run drives Init -> Fetching -> Ready -> Resubscribing -> Ready ... until
// ctx is cancelled or an error ends it. The initial fetch is not retried:
// any error from it, temporary or permanent, moves the cache to Failed and
// is returned. After that, a permanent error from SubscribeInstruments or
// from the update stream fails the cache; a temporary one resubscribes.
func (c *Cache) Run(ctx context.Context, tag string) error {
	c.setState(stateFetching)

	rows, err := c.fetch.FetchInstruments(ctx, tag)
	if err != nil {
		c.fail(err)
		return err
	}
	c.applySnapshot(rows)
	c.setState(stateReady)
	close(c.ready)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, streamErr, err := c.sub.SubscribeInstruments(ctx, tag)
		if err != nil {
			if !xerrors.IsTemporary(err) {
				c.fail(err)
				return err
			}
			c.setState(stateResubscribing)
			continue
		}

		c.drainUntilClosed(updates)
		c.setState(stateResubscribing)

		select {
		case err := <-streamErr:
			if err != nil && !xerrors.IsTemporary(err) {
				c.fail(err)
				return err
			}
		default:
		}
		c.setState(stateReady)
	}
}

func (c *Cache) drainUntilClosed(updates <-chan Update) {
	for u := range updates {
		c.apply(u)
	}
}

func (c *Cache) applySnapshot(rows []types.InstrumentMeta) {
	c.mu.Lock()
	for i := range rows {
		row := rows[i]
		c.byName[row.Name] = &row
		c.bySym[row.Symbol] = row.Name
	}
	c.mu.Unlock()
	for _, row := range rows {
		c.broadcast(Update{Meta: row})
	}
}

func (c *Cache) apply(u Update) {
	c.mu.Lock()
	if u.Expired {
		if existing, ok := c.byName[u.Meta.Name]; ok {
			delete(c.bySym, existing.Symbol)
		}
		delete(c.byName, u.Meta.Name)
	} else {
		meta := u.Meta
		c.byName[meta.Name] = &meta
		c.bySym[meta.Symbol] = meta.Name
	}
	c.mu.Unlock()
	c.broadcast(u)
}

func (c *Cache) setState(s cacheState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Cache) fail(err error) {
	c.mu.Lock()
	c.state = stateFailed
	c.failErr = err
	c.mu.Unlock()
}

// ByName looks up an instrument by its canonical name. The returned
// pointer is shared and must be treated as read-only.
func (c *Cache) ByName(name string) (*types.InstrumentMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byName[name]
	return m, ok
}

// BySymbol looks up an instrument by its structured symbol.
func (c *Cache) BySymbol(symbol string) (*types.InstrumentMeta, bool) {
	c.mu.RLock()
	name, ok := c.bySym[symbol]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	m := c.byName[name]
	c.mu.RUnlock()
	return m, m != nil
}

// WaitReady blocks until the first fetch has completed or ctx is done.
func (c *Cache) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving the current snapshot rows
// followed by every live update from that point on. The caller must
// drain it promptly; calling the returned func removes it.
func (c *Cache) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 256)

	c.mu.RLock()
	snapshot := make([]Update, 0, len(c.byName))
	for _, m := range c.byName {
		snapshot = append(snapshot, Update{Meta: *m})
	}
	c.mu.RUnlock()

	go func() {
		for _, u := range snapshot {
			ch <- u
		}
	}()

	c.watchersMu.Lock()
	c.watchers = append(c.watchers, ch)
	c.watchersMu.Unlock()

	cancel := func() {
		c.watchersMu.Lock()
		for i, w := range c.watchers {
			if w == ch {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				break
			}
		}
		c.watchersMu.Unlock()
	}
	return ch, cancel
}

func (c *Cache) broadcast(u Update) {
	c.watchersMu.Lock()
	defer c.watchersMu.Unlock()
	for _, w := range c.watchers {
		select {
		case w <- u:
		default:
		}
	}
}
