package storage

import (
	"sync"

	"github.com/rs/xid"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("storage")

const DefaultFeedBufferSize = 64

// Feed fans committed writes out to subscribers.
type Feed struct {
	rwlock  sync.RWMutex
	subs    map[string]*subscription
	bufSize int
}

func NewFeed(bufSize int) *Feed {
	if bufSize <= 0 {
		bufSize = DefaultFeedBufferSize
	}
	return &Feed{
		subs:    make(map[string]*subscription),
		bufSize: bufSize,
	}
}

type subscription struct {
	id     string
	feed   *Feed
	events chan iface.ChangeEvent

	sync.Mutex
	closed bool
}

func (s *subscription) Events() <-chan iface.ChangeEvent {
	return s.events
}

func (s *subscription) Close() {
	s.feed.remove(s.id)

	s.Lock()
	defer s.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *subscription) publish(event iface.ChangeEvent) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	// A full buffer still holds an undelivered event, so the subscriber is going to look
	// at the replica again anyway. Dropping keeps writers from blocking on slow readers.
	select {
	case s.events <- event:
	default:
		logger.Debugln("feed subscription:", s.id, "buffer full, drop event seq:", event.Sequence)
	}
}

func (f *Feed) Subscribe() iface.Subscription {
	s := &subscription{
		id:     xid.New().String(),
		feed:   f,
		events: make(chan iface.ChangeEvent, f.bufSize),
	}
	f.rwlock.Lock()
	f.subs[s.id] = s
	f.rwlock.Unlock()
	return s
}

func (f *Feed) remove(id string) {
	f.rwlock.Lock()
	defer f.rwlock.Unlock()
	delete(f.subs, id)
}

func (f *Feed) Publish(event iface.ChangeEvent) {
	f.rwlock.RLock()
	defer f.rwlock.RUnlock()
	for _, s := range f.subs {
		s.publish(event)
	}
}

func (f *Feed) Len() int {
	f.rwlock.RLock()
	defer f.rwlock.RUnlock()
	return len(f.subs)
}

// Close closes all subscriptions.
func (f *Feed) Close() {
	f.rwlock.Lock()
	subs := f.subs
	f.subs = make(map[string]*subscription)
	f.rwlock.Unlock()

	for _, s := range subs {
		s.Lock()
		if !s.closed {
			s.closed = true
			close(s.events)
		}
		s.Unlock()
	}
}
