package crawl

import "sync"

// frontier is the deduplicated work queue shared by the crawl workers. A URL
// enters at most once for the lifetime of the crawl: the seen-set guarantees
// at-most-once fetch regardless of how many pages link to it.
//
// Workers block in Next until an entry is available. The frontier closes
// itself once the queue is empty and no worker still holds an entry that
// could discover more links.
type frontier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []FrontierEntry
	seen   map[string]struct{}
	active int
	closed bool
}

func newFrontier() *frontier {
	f := &frontier{seen: make(map[string]struct{})}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues an entry unless its URL was seen before or the frontier is
// closed. The URL must already be canonical.
func (f *frontier) Push(e FrontierEntry) bool {
	if e.URL == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, dup := f.seen[e.URL]; dup {
		return false
	}
	f.seen[e.URL] = struct{}{}
	f.queue = append(f.queue, e)
	f.cond.Signal()
	return true
}

// Next pops the oldest entry, blocking while the queue is empty but entries
// are still in flight. It returns false once the crawl is over: either the
// frontier was closed or the queue drained with no active workers left.
// Callers must pair every successful Next with Done.
func (f *frontier) Next() (FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed {
			return FrontierEntry{}, false
		}
		if len(f.queue) > 0 {
			e := f.queue[0]
			f.queue = f.queue[1:]
			f.active++
			return e, true
		}
		if f.active == 0 {
			f.closed = true
			f.cond.Broadcast()
			return FrontierEntry{}, false
		}
		f.cond.Wait()
	}
}

// Done releases the in-flight slot taken by Next. Waking all waiters here is
// what lets idle workers observe the drained condition.
func (f *frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active > 0 {
		f.active--
	}
	f.cond.Broadcast()
}

// Close stops the crawl: pending entries are discarded and blocked workers
// return. Used for cancellation and for the max-pages stop.
func (f *frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.queue = nil
	f.cond.Broadcast()
}

// SeenCount reports how many distinct URLs ever entered the frontier.
func (f *frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
