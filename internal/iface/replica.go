package iface

import (
	"context"
	"errors"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is a single record in the local replica. Data is opaque to the replica.
type Document struct {
	ID       string `json:"id"`
	Data     []byte `json:"data"`
	Sequence uint64 `json:"sequence"`
}

// ChangeEvent is emitted once per committed write.
type ChangeEvent struct {
	ID       string
	Sequence uint64
}

type Subscription interface {
	Events() <-chan ChangeEvent
	Close()
}

// Replica is the locally replicated document store the notifier watches.
type Replica interface {
	// Put commits the document and returns the sequence number assigned to the write.
	Put(ctx context.Context, doc *Document) (uint64, error)
	Get(ctx context.Context, id string) (*Document, bool, error)
	CurrentSequence(ctx context.Context) (uint64, error)
	Subscribe(ctx context.Context) (Subscription, error)
}

type ClosableStorage interface {
	Close() error
}

type ClosableReplica interface {
	Replica
	ClosableStorage
}
