package timer

import (
	"sync"
	"time"
)

const NotFired int64 = -1

// OneShotTimer runs fn once after delay unless stopped first.
// A timer is never re-armed, allocate a new one per scheduling need.
type OneShotTimer struct {
	delay time.Duration
	fn    func()

	sync.Mutex
	t         *time.Timer
	started   bool
	stopped   bool
	timeFired int64
}

func NewOneShotTimer(delay time.Duration, fn func()) *OneShotTimer {
	return &OneShotTimer{
		delay:     delay,
		fn:        fn,
		timeFired: NotFired,
	}
}

func (o *OneShotTimer) Delay() time.Duration {
	return o.delay
}

func (o *OneShotTimer) Start() {
	o.Lock()
	defer o.Unlock()

	if o.started || o.stopped {
		return
	}
	o.started = true
	o.t = time.AfterFunc(o.delay, o.fire)
}

func (o *OneShotTimer) fire() {
	o.Lock()
	if o.stopped {
		o.Unlock()
		return
	}
	o.timeFired = time.Now().UnixMilli()
	o.Unlock()

	o.fn()
}

// Stop cancels the timer. No-op once fired.
func (o *OneShotTimer) Stop() {
	o.Lock()
	defer o.Unlock()

	if o.timeFired != NotFired {
		return
	}
	o.stopped = true
	if o.t != nil {
		o.t.Stop()
	}
}

// TimeFired returns the unix milliseconds of the firing, or NotFired.
func (o *OneShotTimer) TimeFired() int64 {
	o.Lock()
	defer o.Unlock()

	return o.timeFired
}
