package burrow

import "sync"

// Event is one change-notification delivered to a watcher after a
// successful commit. ID is nil for a whole-collection event (clear).
type Event struct {
	CollectionIndex uint16
	CollectionName  string
	ID              *int64
}

// Cancel releases a subscription. Calling it more than once is a no-op.
type Cancel func()

const subscriberBuffer = 32

type subscription struct {
	id      uint64
	scope   scopeKind
	collIdx uint16
	objID   int64
	ch      chan Event
}

type scopeKind int

const (
	scopeInstance scopeKind = iota
	scopeCollection
	scopeObject
)

// watchRegistry holds every live subscription for one Instance. Delivery
// is synchronous: dispatch, called from Txn.Commit, walks matching subscriptions on the
// committing goroutine, after the substrate commit has already returned
// success, and never blocks on a slow subscriber — a full subscriber
// channel simply drops the event rather than stall the committer, with
// no background relay goroutine needed since delivery happens inline at
// commit time.
type watchRegistry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{subs: make(map[uint64]*subscription)}
}

func (r *watchRegistry) subscribe(s *subscription) Cancel {
	r.mu.Lock()
	r.nextID++
	s.id = r.nextID
	r.subs[s.id] = s
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, s.id)
			r.mu.Unlock()
			close(s.ch)
		})
	}
}

// SubscribeInstance receives every event for every collection in the
// instance.
func (r *watchRegistry) SubscribeInstance() (<-chan Event, Cancel) {
	s := &subscription{scope: scopeInstance, ch: make(chan Event, subscriberBuffer)}
	return s.ch, r.subscribe(s)
}

// SubscribeCollection receives every event for one collection, including
// its whole-collection (clear) events.
func (r *watchRegistry) SubscribeCollection(collIdx uint16) (<-chan Event, Cancel) {
	s := &subscription{scope: scopeCollection, collIdx: collIdx, ch: make(chan Event, subscriberBuffer)}
	return s.ch, r.subscribe(s)
}

// SubscribeObject receives only events naming this exact (collection, id).
func (r *watchRegistry) SubscribeObject(collIdx uint16, id int64) (<-chan Event, Cancel) {
	s := &subscription{scope: scopeObject, collIdx: collIdx, objID: id, ch: make(chan Event, subscriberBuffer)}
	return s.ch, r.subscribe(s)
}

func (r *watchRegistry) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		for _, s := range r.subs {
			if !s.matches(ev) {
				continue
			}
			select {
			case s.ch <- ev:
				recordWatcherDispatch(true)
			default:
				recordWatcherDispatch(false)
			}
		}
	}
}

func (s *subscription) matches(ev Event) bool {
	switch s.scope {
	case scopeInstance:
		return true
	case scopeCollection:
		return s.collIdx == ev.CollectionIndex
	case scopeObject:
		return s.collIdx == ev.CollectionIndex && ev.ID != nil && *ev.ID == s.objID
	}
	return false
}
