package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterbourgon/diskv/v3"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
)

const (
	metaKeyPrefix = "_meta"
	sequenceKey   = "_meta_sequence"
)

var ErrReservedKey = errors.New("key is reserved")

var _ iface.Replica = new(DiskvReplica)

// DiskvReplica persists documents as cbor files and keeps the sequence counter under a meta key.
type DiskvReplica struct {
	diskv *diskv.Diskv
	feed  *Feed

	sync.Mutex // write lock
	seq uint64
}

func NewDiskvReplica(folder string) (*DiskvReplica, error) {
	f, err := filepath.Abs(folder)
	if err != nil {
		return nil, err
	}
	d := diskv.New(diskv.Options{
		BasePath: f,
		Transform: func(s string) []string {
			return []string{diskvSha256prefix(s)}
		},
		CacheSizeMax: 1024 * 1024,
	})

	r := &DiskvReplica{
		diskv: d,
		feed:  NewFeed(DefaultFeedBufferSize),
	}
	seq, err := r.readSequence()
	if err != nil {
		return nil, err
	}
	r.seq = seq
	logger.Infoln("diskv replica opened at:", f, "sequence:", seq)
	return r, nil
}

func (d *DiskvReplica) readSequence() (uint64, error) {
	dat, err := d.diskv.Read(sequenceKey)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	if err := cbor.Unmarshal(dat, &seq); err != nil {
		return 0, fmt.Errorf("decode sequence: %w", err)
	}
	return seq, nil
}

func (d *DiskvReplica) writeSequence(seq uint64) error {
	dat, err := cbor.Marshal(seq)
	if err != nil {
		return err
	}
	return d.diskv.Write(sequenceKey, dat)
}

func (d *DiskvReplica) Put(ctx context.Context, doc *iface.Document) (uint64, error) {
	if !validateKeyFormat(doc.ID) {
		return 0, fmt.Errorf("%q: %w", doc.ID, ErrKeyFormatInvalid)
	}
	if strings.HasPrefix(doc.ID, metaKeyPrefix) {
		return 0, fmt.Errorf("%q: %w", doc.ID, ErrReservedKey)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.Lock()
	defer d.Unlock()

	seq := d.seq + 1
	dat, err := cbor.Marshal(&iface.Document{
		ID:       doc.ID,
		Data:     doc.Data,
		Sequence: seq,
	})
	if err != nil {
		return 0, err
	}
	if err := d.diskv.Write(doc.ID, dat); err != nil {
		return 0, fmt.Errorf("write document %s: %w", doc.ID, err)
	}
	if err := d.writeSequence(seq); err != nil {
		return 0, fmt.Errorf("write sequence: %w", err)
	}
	d.seq = seq

	d.feed.Publish(iface.ChangeEvent{ID: doc.ID, Sequence: seq})
	return seq, nil
}

func (d *DiskvReplica) Get(ctx context.Context, id string) (*iface.Document, bool, error) {
	if !validateKeyFormat(id) {
		return nil, false, fmt.Errorf("%q: %w", id, ErrKeyFormatInvalid)
	}
	if strings.HasPrefix(id, metaKeyPrefix) {
		return nil, false, fmt.Errorf("%q: %w", id, ErrReservedKey)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	dat, err := d.diskv.Read(id)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	doc := new(iface.Document)
	if err := cbor.Unmarshal(dat, doc); err != nil {
		return nil, false, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, true, nil
}

func (d *DiskvReplica) CurrentSequence(ctx context.Context) (uint64, error) {
	d.Lock()
	defer d.Unlock()
	return d.seq, nil
}

func (d *DiskvReplica) Subscribe(ctx context.Context) (iface.Subscription, error) {
	return d.feed.Subscribe(), nil
}

func (d *DiskvReplica) Close() error {
	d.feed.Close()
	return nil
}

func diskvSha256prefix(s string) string {
	v := sha256.Sum256([]byte(s))
	return hex.EncodeToString(v[:])[:4]
}
