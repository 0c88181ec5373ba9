package peernotify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
)

type fireKind string

const (
	fireDebounce fireKind = "debounce"
	fireRefresh  fireKind = "refresh"
)

// session lives from a successful start until stop. Its existence is the running state.
type session struct {
	id    uint64
	peers [][]byte
	sub   iface.Subscription

	debounce Timer
	refresh  Timer

	advertised [][]byte
	lastSeq    uint64
}

func (n *Notifier) processStart(ctx context.Context, peers [][]byte) error {
	n.config.Metrics.AddRequest("start")

	if s := n.session; s != nil {
		if samePeers(s.peers, peers) {
			logger.Debugln("session:", s.id, "start with the same peer list, skip")
			return nil
		}
		eligible, seq, err := n.computeEligible(ctx, peers)
		if err != nil {
			return err
		}
		if err := n.callStart(ctx, eligible); err != nil {
			return err
		}
		s.peers = peers
		n.afterStart(s, eligible, seq)
		return nil
	}

	// subscribe before reading the sequence so no write slips in between
	sub, err := n.replica.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}
	eligible, seq, err := n.computeEligible(ctx, peers)
	if err != nil {
		sub.Close()
		return err
	}
	if err := n.callStart(ctx, eligible); err != nil {
		sub.Close()
		return err
	}

	n.generation++
	s := &session{
		id:    n.generation,
		peers: peers,
		sub:   sub,
	}
	n.session = s
	n.config.Metrics.SetRunning(true)
	logger.Infoln("session:", s.id, "started at sequence:", seq, "requested peers:", len(peers), "eligible:", len(eligible))

	go n.watchFeed(s.id, sub, seq)
	n.afterStart(s, eligible, seq)
	return nil
}

func (n *Notifier) processStop(ctx context.Context) error {
	n.config.Metrics.AddRequest("stop")

	s := n.session
	if s == nil {
		return nil
	}
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.refresh != nil {
		s.refresh.Stop()
		s.refresh = nil
	}
	s.sub.Close()
	// torn down even when the server fails to stop
	n.session = nil
	n.config.Metrics.SetRunning(false)
	n.config.Metrics.SetAdvertisedPeers(0)

	err := n.server.Stop(ctx)
	n.config.Metrics.AddServerCall("stop", err)
	if err != nil {
		return fmt.Errorf("stop notification server: %w", err)
	}
	logger.Infoln("session:", s.id, "stopped")
	return nil
}

func (n *Notifier) processStatus() iface.NotifierStatus {
	s := n.session
	if s == nil {
		return iface.NotifierStatus{
			Generation:      n.generation,
			AdvertisedPeers: []string{},
		}
	}
	advertised := make([]string, 0, len(s.advertised))
	for _, p := range s.advertised {
		advertised = append(advertised, n.KeyFor(p))
	}
	return iface.NotifierStatus{
		Running:         true,
		Generation:      s.id,
		RequestedPeers:  len(s.peers),
		AdvertisedPeers: advertised,
		LastSequence:    s.lastSeq,
		PendingDebounce: s.debounce != nil,
		PendingRefresh:  s.refresh != nil,
	}
}

// processChange coalesces a burst of committed writes into one debounce recompute.
func (n *Notifier) processChange(gen uint64) error {
	s := n.session
	if s == nil || s.id != gen {
		return nil
	}
	if s.debounce != nil {
		return nil
	}
	s.debounce = n.armTimer(gen, fireDebounce, 0)
	return nil
}

// processFire handles a debounce or refresh firing. t identifies the timer instance so a
// replaced timer whose callback already ran is dropped as well as a stale session.
func (n *Notifier) processFire(gen uint64, kind fireKind, t Timer) error {
	s := n.session
	if s == nil || s.id != gen {
		logger.Debugln("drop", kind, "fire of stale session:", gen)
		return nil
	}
	switch kind {
	case fireDebounce:
		if s.debounce != t {
			return nil
		}
		s.debounce = nil
	case fireRefresh:
		if s.refresh != t {
			return nil
		}
		s.refresh = nil
	}
	n.config.Metrics.AddRequest(string(kind))

	eligible, seq, err := n.computeEligible(n.baseCtx, s.peers)
	if err == nil {
		err = n.callStart(n.baseCtx, eligible)
	}
	if err != nil {
		n.reportError(fmt.Errorf("session %d %s recompute: %w", gen, kind, err))
		// keep the refresh loop alive so the next tick retries
		if kind == fireRefresh && s.refresh == nil {
			s.refresh = n.armTimer(gen, fireRefresh, n.config.TokenTTL)
		}
		return nil
	}
	n.afterStart(s, eligible, seq)
	return nil
}

func (n *Notifier) afterStart(s *session, eligible [][]byte, seq uint64) {
	s.advertised = eligible
	s.lastSeq = seq
	n.config.Metrics.SetAdvertisedPeers(len(eligible))

	if s.refresh != nil {
		s.refresh.Stop()
		s.refresh = nil
	}
	if len(eligible) > 0 {
		s.refresh = n.armTimer(s.id, fireRefresh, n.config.TokenTTL)
	}
}

func (n *Notifier) armTimer(gen uint64, kind fireKind, delay time.Duration) Timer {
	var t Timer
	t = n.newTimer(delay, func() {
		n.queue.Enqueue(func() error {
			return n.processFire(gen, kind, t)
		})
	})
	t.Start()
	return t
}

func (n *Notifier) watchFeed(gen uint64, sub iface.Subscription, since uint64) {
	for ev := range sub.Events() {
		if ev.Sequence <= since {
			continue
		}
		n.queue.Enqueue(func() error {
			return n.processChange(gen)
		})
	}
	logger.Debugln("session:", gen, "change feed closed")
}

func (n *Notifier) computeEligible(ctx context.Context, peers [][]byte) ([][]byte, uint64, error) {
	seq, err := n.watermarks.CurrentSequence(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read current sequence: %w", err)
	}
	eligible, err := n.watermarks.Eligible(ctx, peers, seq, n.config.MaxPeersToNotify)
	if err != nil {
		return nil, 0, fmt.Errorf("compute eligible peers: %w", err)
	}
	return eligible, seq, nil
}

func (n *Notifier) callStart(ctx context.Context, eligible [][]byte) error {
	err := n.server.Start(ctx, eligible)
	n.config.Metrics.AddServerCall("start", err)
	if err != nil {
		return fmt.Errorf("start notification server: %w", err)
	}
	return nil
}

func samePeers(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
