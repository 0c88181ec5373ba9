package iface

import (
	"context"
	"errors"
)

var ErrInvalidPeerIdentity = errors.New("invalid peer identity")

// NotificationServer advertises to the given peers that new data is available.
//
// Start replaces any previously advertised set and may be called again without an intervening Stop.
// Stop is only called by the notifier while started.
type NotificationServer interface {
	Start(ctx context.Context, peers [][]byte) error
	Stop(ctx context.Context) error
}

type NotifierStatus struct {
	Running         bool     `json:"running"`
	Generation      uint64   `json:"generation"`
	RequestedPeers  int      `json:"requested_peers"`
	AdvertisedPeers []string `json:"advertised_peers"`
	LastSequence    uint64   `json:"last_sequence"`
	PendingDebounce bool     `json:"pending_debounce"`
	PendingRefresh  bool     `json:"pending_refresh"`
}

// PeerNotifier is the control surface exposed to the http and resp services.
type PeerNotifier interface {
	Start(ctx context.Context, peers [][]byte) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (NotifierStatus, error)
}
