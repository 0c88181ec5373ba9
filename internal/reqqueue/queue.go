package reqqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("reqqueue")

var ErrQueueClosed = errors.New("request queue closed")

const DefaultQueueSize = 1024

type Task func() error

type request struct {
	task Task
	err  chan error
}

// Queue runs enqueued tasks one at a time in enqueue order.
// A task starts only after the previous one returned.
type Queue struct {
	requests  chan request
	closeChan chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once

	// guards closed against in-flight Enqueue calls
	rwlock sync.RWMutex
	closed bool

	config *Config
}

type Config struct {
	Name string
	Size int
}

func NewQueue(config *Config) *Queue {
	size := config.Size
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		requests:  make(chan request, size),
		closeChan: make(chan struct{}),
		doneChan:  make(chan struct{}),
		config:    config,
	}
	go q.processWorker()
	return q
}

// Enqueue schedules task and returns a channel receiving its result exactly once.
// Callers may drop the channel, it is buffered.
func (q *Queue) Enqueue(task Task) <-chan error {
	req := request{
		task: task,
		err:  make(chan error, 1),
	}
	q.rwlock.RLock()
	defer q.rwlock.RUnlock()

	if q.closed {
		req.err <- ErrQueueClosed
		return req.err
	}
	select {
	case q.requests <- req:
	case <-q.closeChan:
		req.err <- ErrQueueClosed
	}
	return req.err
}

// Do enqueues task and waits for it. The task still runs if ctx ends first.
func (q *Queue) Do(ctx context.Context, task Task) error {
	ch := q.Enqueue(task)
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) processWorker() {
	defer close(q.doneChan)
	for {
		select {
		case req := <-q.requests:
			req.err <- q.run(req.task)
		case <-q.closeChan:
			q.rwlock.Lock()
			q.closed = true
			q.rwlock.Unlock()
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case req := <-q.requests:
			req.err <- ErrQueueClosed
		default:
			return
		}
	}
}

func (q *Queue) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorln("queue:", q.config.Name, "task panic:", r)
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task()
}

// Close stops accepting tasks and waits for the running task to finish.
// Tasks still queued settle with ErrQueueClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closeChan)
	})
	<-q.doneChan
}
