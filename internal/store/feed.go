package store

import "sync"

// Op names the kind of statement that produced a Change.
type Op string

const (
	OpIncrement Op = "increment"
	OpRename    Op = "rename"
	OpDelete    Op = "delete"
	OpDecay     Op = "decay"
	OpPrune     Op = "prune"
)

// Maintenance reports whether o is a bulk decay or prune statement.
func (o Op) Maintenance() bool {
	return o == OpDecay || o == OpPrune
}

// Change describes one mutating statement against the items table.
type Change struct {
	Op   Op
	Key  string // empty for bulk statements
	Rows int64
}

// Feed fans store changes out to subscribers. Delivery never blocks the
// publisher: each subscriber holds at most one pending Change, and a newer
// Change replaces an undelivered older one, except that a maintenance
// Change never replaces a pending per-key one.
type Feed struct {
	mu   sync.Mutex
	subs map[int]chan Change
	next int
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Change)}
}

// Subscribe registers a new subscriber. The returned cancel func removes the
// subscription and closes the channel; it is safe to call more than once.
func (f *Feed) Subscribe() (<-chan Change, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan Change, 1)
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers c to every current subscriber.
func (f *Feed) Publish(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		// Pending change not yet consumed: swap it for the newer one.
		next := c
		select {
		case old := <-ch:
			if c.Op.Maintenance() && !old.Op.Maintenance() {
				next = old
			}
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
}

// Subscribers reports how many subscriptions are live.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
