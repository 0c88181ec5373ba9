package watermark

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
)

// KeyPrefix is shared with the replication layer, which writes the same documents.
const KeyPrefix = "thali"

var ErrInvalidKey = errors.New("invalid watermark key")

// Watermark is the last sequence number a peer is known to have synchronized up to.
type Watermark struct {
	ID                       string `json:"id"`
	LastSyncedSequenceNumber uint64 `json:"lastSyncedSequenceNumber"`
}

func KeyFor(peer []byte) string {
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(peer)
}

func DecodeKey(id string) ([]byte, error) {
	if !strings.HasPrefix(id, KeyPrefix) {
		return nil, fmt.Errorf("%s: %w", id, ErrInvalidKey)
	}
	peer, err := base64.RawURLEncoding.DecodeString(id[len(KeyPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, ErrInvalidKey)
	}
	return peer, nil
}

// EncodePeer is the text form of a peer identity used on the http, resp and config surfaces.
func EncodePeer(peer []byte) string {
	return base64.RawURLEncoding.EncodeToString(peer)
}

func DecodePeers(list []string) ([][]byte, error) {
	peers := make([][]byte, 0, len(list))
	for idx, s := range list {
		peer, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("peer #%d: %w", idx, iface.ErrInvalidPeerIdentity)
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

type Store struct {
	replica iface.Replica
}

func NewStore(replica iface.Replica) *Store {
	return &Store{replica: replica}
}

// Get returns the stored watermark of the peer. Callers treat a missing one as 0.
func (s *Store) Get(ctx context.Context, peer []byte) (*Watermark, bool, error) {
	doc, found, err := s.replica.Get(ctx, KeyFor(peer))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	w := new(Watermark)
	if err := json.Unmarshal(doc.Data, w); err != nil {
		return nil, false, fmt.Errorf("decode watermark %s: %w", doc.ID, err)
	}
	w.ID = doc.ID
	return w, true, nil
}

func (s *Store) Put(ctx context.Context, peer []byte, seq uint64) (uint64, error) {
	w := &Watermark{
		ID:                       KeyFor(peer),
		LastSyncedSequenceNumber: seq,
	}
	dat, err := json.Marshal(w)
	if err != nil {
		return 0, err
	}
	return s.replica.Put(ctx, &iface.Document{ID: w.ID, Data: dat})
}

func (s *Store) CurrentSequence(ctx context.Context) (uint64, error) {
	return s.replica.CurrentSequence(ctx)
}

// Eligible returns, in input order, at most limit peers whose watermark is strictly behind seq.
// A watermark ahead of seq is excluded like an up to date one.
func (s *Store) Eligible(ctx context.Context, peers [][]byte, seq uint64, limit int) ([][]byte, error) {
	if limit <= 0 {
		return [][]byte{}, nil
	}
	eligible := make([][]byte, 0, min(len(peers), limit))
	for _, peer := range peers {
		if len(eligible) >= limit {
			break
		}
		var last uint64
		w, found, err := s.Get(ctx, peer)
		if err != nil {
			return nil, err
		}
		if found {
			last = w.LastSyncedSequenceNumber
		}
		if seq > last {
			eligible = append(eligible, peer)
		}
	}
	return eligible, nil
}
