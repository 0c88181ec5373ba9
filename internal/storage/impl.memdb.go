package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
)

const tblDocuments = "documents"

var memdbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblDocuments: {
			Name: tblDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
	},
}

var _ iface.Replica = new(MemdbReplica)

// MemdbReplica is an in-memory replica for testing or temporary nodes.
type MemdbReplica struct {
	db   *memdb.MemDB
	feed *Feed

	sync.Mutex // write lock, keeps sequence assignment and commit atomic
	seq uint64
}

func NewMemdbReplica() (*MemdbReplica, error) {
	db, err := memdb.NewMemDB(memdbSchema)
	if err != nil {
		return nil, err
	}
	return &MemdbReplica{
		db:   db,
		feed: NewFeed(DefaultFeedBufferSize),
	}, nil
}

func (m *MemdbReplica) Put(ctx context.Context, doc *iface.Document) (uint64, error) {
	if !validateKeyFormat(doc.ID) {
		return 0, fmt.Errorf("%q: %w", doc.ID, ErrKeyFormatInvalid)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.Lock()
	defer m.Unlock()

	seq := m.seq + 1
	stored := &iface.Document{
		ID:       doc.ID,
		Data:     append([]byte(nil), doc.Data...),
		Sequence: seq,
	}

	txn := m.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tblDocuments, stored); err != nil {
		return 0, fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	txn.Commit()
	m.seq = seq

	m.feed.Publish(iface.ChangeEvent{ID: doc.ID, Sequence: seq})
	return seq, nil
}

func (m *MemdbReplica) Get(ctx context.Context, id string) (*iface.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	txn := m.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, false, fmt.Errorf("find document %s: %w", id, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	// stored objects are shared, hand out a copy
	stored := raw.(*iface.Document)
	return &iface.Document{
		ID:       stored.ID,
		Data:     append([]byte(nil), stored.Data...),
		Sequence: stored.Sequence,
	}, true, nil
}

func (m *MemdbReplica) CurrentSequence(ctx context.Context) (uint64, error) {
	m.Lock()
	defer m.Unlock()
	return m.seq, nil
}

func (m *MemdbReplica) Subscribe(ctx context.Context) (iface.Subscription, error) {
	return m.feed.Subscribe(), nil
}

func (m *MemdbReplica) Close() error {
	m.feed.Close()
	return nil
}
