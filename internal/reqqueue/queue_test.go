package reqqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsInEnqueueOrder(t *testing.T) {
	q := NewQueue(&Config{Name: "order"})
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var results []<-chan error
	for i := 0; i < 50; i++ {
		i := i
		results = append(results, q.Enqueue(func() error {
			// later tasks must not overtake a slow one
			if i%7 == 0 {
				time.Sleep(2 * time.Millisecond)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	for _, r := range results {
		require.NoError(t, <-r)
	}
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueueOneTaskAtATime(t *testing.T) {
	q := NewQueue(&Config{Name: "serial"})
	defer q.Close()

	var running, maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func() error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxRunning)
}

func TestQueueFailureDoesNotBlockNext(t *testing.T) {
	q := NewQueue(&Config{Name: "failure"})
	defer q.Close()

	errBoom := errors.New("boom")
	first := q.Enqueue(func() error { return errBoom })
	second := q.Enqueue(func() error { panic("kaboom") })
	third := q.Enqueue(func() error { return nil })

	assert.ErrorIs(t, <-first, errBoom)
	assert.ErrorContains(t, <-second, "kaboom")
	assert.NoError(t, <-third)
}

func TestQueueDoContextCanceled(t *testing.T) {
	q := NewQueue(&Config{Name: "ctx"})
	defer q.Close()

	release := make(chan struct{})
	blocker := q.Enqueue(func() error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ran := make(chan struct{})
	err := q.Do(ctx, func() error {
		close(ran)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.NoError(t, <-blocker)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("abandoned task should still run")
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(&Config{Name: "close", Size: 4})

	release := make(chan struct{})
	running := q.Enqueue(func() error {
		<-release
		return nil
	})
	pending := q.Enqueue(func() error { return nil })

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	q.Close()

	assert.NoError(t, <-running)
	err := <-pending
	if err != nil {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
	assert.ErrorIs(t, <-q.Enqueue(func() error { return nil }), ErrQueueClosed)
	// idempotent
	q.Close()
}
