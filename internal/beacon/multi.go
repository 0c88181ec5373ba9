package beacon

import (
	"context"
	"errors"
	"fmt"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
)

type namedBeacon struct {
	name   string
	beacon iface.NotificationServer
}

// Multi fans a start or stop out to every registered beacon in registration order. All beacons
// are called even when one fails.
type Multi struct {
	beacons []namedBeacon
}

func NewMulti() *Multi {
	return new(Multi)
}

func (m *Multi) Add(name string, beacon iface.NotificationServer) {
	m.beacons = append(m.beacons, namedBeacon{name: name, beacon: beacon})
}

func (m *Multi) Len() int {
	return len(m.beacons)
}

func (m *Multi) Start(ctx context.Context, peers [][]byte) error {
	var errs []error
	for _, b := range m.beacons {
		if err := b.beacon.Start(ctx, peers); err != nil {
			errs = append(errs, fmt.Errorf("beacon %s start: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Stop(ctx context.Context) error {
	var errs []error
	for _, b := range m.beacons {
		if err := b.beacon.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("beacon %s stop: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// LogBeacon only writes the advertised set to the log.
type LogBeacon struct{}

func (LogBeacon) Start(ctx context.Context, peers [][]byte) error {
	keys := make([]string, 0, len(peers))
	for _, p := range peers {
		keys = append(keys, watermark.KeyFor(p))
	}
	logger.WithField("peers", keys).Infoln("advertise peers:", len(peers))
	return nil
}

func (LogBeacon) Stop(ctx context.Context) error {
	logger.Infoln("advertisement stopped")
	return nil
}
