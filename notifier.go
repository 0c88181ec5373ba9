package peernotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/internal/metrics"
	"github.com/meidoworks/nekoq-peernotify/internal/reqqueue"
	"github.com/meidoworks/nekoq-peernotify/internal/timer"
	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("notifier")

const (
	// DefaultMaxPeersToNotify caps the number of peers advertised at the same time.
	DefaultMaxPeersToNotify = 15
	// DefaultTokenTTL is how long an advertisement stays valid before it has to be refreshed.
	DefaultTokenTTL = 24 * time.Hour
)

var (
	ErrInvalidPeerIdentity = iface.ErrInvalidPeerIdentity
	ErrInvalidConfig       = errors.New("invalid notifier config")
)

// Timer is a single fire timer. See timer.OneShotTimer.
type Timer interface {
	Start()
	Stop()
	TimeFired() int64
}

type TimerFactory func(delay time.Duration, fn func()) Timer

func defaultTimerFactory(delay time.Duration, fn func()) Timer {
	return timer.NewOneShotTimer(delay, fn)
}

type Config struct {
	Server  iface.NotificationServer
	Replica iface.Replica

	TokenTTL         time.Duration
	MaxPeersToNotify int
	// PeerIdentityLength rejects identities of any other length. 0 accepts any non-empty identity.
	PeerIdentityLength int

	Metrics      *metrics.Metrics
	ErrorHandler func(error)
	NewTimer     TimerFactory
	QueueSize    int
}

// Notifier decides which peers are behind the local replica and keeps them advertised
// through the notification server.
//
// Every request, explicit or internal, runs on a single request queue. The session state below
// is only touched from queued tasks.
type Notifier struct {
	config     *Config
	server     iface.NotificationServer
	replica    iface.Replica
	watermarks *watermark.Store
	queue      *reqqueue.Queue
	newTimer   TimerFactory

	baseCtx context.Context
	cancel  context.CancelFunc

	session    *session
	generation uint64
}

func New(config *Config) (*Notifier, error) {
	if config.Server == nil || config.Replica == nil {
		return nil, fmt.Errorf("server and replica are required: %w", ErrInvalidConfig)
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = DefaultTokenTTL
	}
	if config.TokenTTL < 0 {
		return nil, fmt.Errorf("token ttl %s: %w", config.TokenTTL, ErrInvalidConfig)
	}
	if config.MaxPeersToNotify == 0 {
		config.MaxPeersToNotify = DefaultMaxPeersToNotify
	}
	if config.MaxPeersToNotify < 0 {
		return nil, fmt.Errorf("max peers to notify %d: %w", config.MaxPeersToNotify, ErrInvalidConfig)
	}
	if config.PeerIdentityLength < 0 {
		return nil, fmt.Errorf("peer identity length %d: %w", config.PeerIdentityLength, ErrInvalidConfig)
	}
	newTimer := config.NewTimer
	if newTimer == nil {
		newTimer = defaultTimerFactory
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		config:     config,
		server:     config.Server,
		replica:    config.Replica,
		watermarks: watermark.NewStore(config.Replica),
		queue: reqqueue.NewQueue(&reqqueue.Config{
			Name: "notifier",
			Size: config.QueueSize,
		}),
		newTimer: newTimer,
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// KeyFor returns the replica document id holding the watermark of the peer.
func KeyFor(peer []byte) string {
	return watermark.KeyFor(peer)
}

// KeyFor returns the replica document id holding the watermark of the peer.
func (n *Notifier) KeyFor(peer []byte) string {
	return watermark.KeyFor(peer)
}

// StartAsync enqueues a start request for the peer list and returns without waiting.
// The channel receives the result once.
func (n *Notifier) StartAsync(ctx context.Context, peers [][]byte) <-chan error {
	if err := n.validatePeers(peers); err != nil {
		ch := make(chan error, 1)
		ch <- err
		return ch
	}
	list := clonePeers(peers)
	return n.queue.Enqueue(func() error {
		return n.processStart(ctx, list)
	})
}

// Start advertises the eligible subset of peers. Calling it again while running with a
// different list replaces the advertised set, the same list is a no-op.
func (n *Notifier) Start(ctx context.Context, peers [][]byte) error {
	return wait(ctx, n.StartAsync(ctx, peers))
}

// StopAsync enqueues a stop request and returns without waiting.
func (n *Notifier) StopAsync(ctx context.Context) <-chan error {
	return n.queue.Enqueue(func() error {
		return n.processStop(ctx)
	})
}

// Stop tears the running session down. No-op when stopped.
func (n *Notifier) Stop(ctx context.Context) error {
	return wait(ctx, n.StopAsync(ctx))
}

func (n *Notifier) Status(ctx context.Context) (iface.NotifierStatus, error) {
	var status iface.NotifierStatus
	err := n.queue.Do(ctx, func() error {
		status = n.processStatus()
		return nil
	})
	return status, err
}

// Close stops the session and shuts the request queue down.
func (n *Notifier) Close(ctx context.Context) error {
	err := n.Stop(ctx)
	n.cancel()
	n.queue.Close()
	return err
}

func (n *Notifier) validatePeers(peers [][]byte) error {
	for idx, peer := range peers {
		if len(peer) == 0 {
			return fmt.Errorf("peer #%d is empty: %w", idx, ErrInvalidPeerIdentity)
		}
		if n.config.PeerIdentityLength > 0 && len(peer) != n.config.PeerIdentityLength {
			return fmt.Errorf("peer #%d has length %d, expect %d: %w",
				idx, len(peer), n.config.PeerIdentityLength, ErrInvalidPeerIdentity)
		}
	}
	return nil
}

func (n *Notifier) reportError(err error) {
	logger.Errorln("notifier background request failed:", err)
	n.config.Metrics.AddRecomputeFailure()
	if n.config.ErrorHandler != nil {
		n.config.ErrorHandler(err)
	}
}

func wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clonePeers(peers [][]byte) [][]byte {
	list := make([][]byte, 0, len(peers))
	for _, p := range peers {
		list = append(list, append([]byte(nil), p...))
	}
	return list
}
