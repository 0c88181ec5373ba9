package beacon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("beacon")

const (
	DefaultRedisPrefix = "peernotify"
	DefaultBeaconTTL   = 24 * time.Hour
	// records outlive the token ttl by the grace so the refresh lands before they lapse
	DefaultBeaconGrace = 5 * time.Minute
)

// Announcement is the cbor payload stored under <prefix>:announce:<node> and published on
// <prefix>:announce.
type Announcement struct {
	Node      string   `cbor:"node"`
	Peers     []string `cbor:"peers"`
	ExpiresAt int64    `cbor:"expires_at"`
}

type RedisBeaconConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	NodeName string
	TTL      time.Duration
	Grace    time.Duration
}

// RedisBeacon advertises each eligible peer as a key <prefix>:peer:<peer>:<node> living for the
// token ttl plus the grace. Peers scan their own pattern or subscribe to find out which nodes have
// data for them.
type RedisBeacon struct {
	client redis.UniversalClient
	config RedisBeaconConfig

	lock   sync.Mutex
	active map[string]struct{}
}

func NewRedisBeacon(config RedisBeaconConfig) (*RedisBeacon, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisBeaconWithClient(client, config)
}

func NewRedisBeaconWithClient(client redis.UniversalClient, config RedisBeaconConfig) (*RedisBeacon, error) {
	if config.NodeName == "" {
		return nil, errors.New("redis beacon requires a node name")
	}
	if config.Prefix == "" {
		config.Prefix = DefaultRedisPrefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultBeaconTTL
	}
	if config.Grace <= 0 {
		config.Grace = DefaultBeaconGrace
	}
	return &RedisBeacon{
		client: client,
		config: config,
		active: map[string]struct{}{},
	}, nil
}

// PeerKey is the key this node sets for the peer.
func (r *RedisBeacon) PeerKey(peer []byte) string {
	return r.config.Prefix + ":peer:" + watermark.KeyFor(peer) + ":" + r.config.NodeName
}

// PeerPattern matches the keys of every node advertising the peer.
func (r *RedisBeacon) PeerPattern(peer []byte) string {
	return r.config.Prefix + ":peer:" + watermark.KeyFor(peer) + ":*"
}

// Lifetime is how long an advertisement stays in redis without a refresh.
func (r *RedisBeacon) Lifetime() time.Duration {
	return r.config.TTL + r.config.Grace
}

func (r *RedisBeacon) AnnounceKey() string {
	return r.config.Prefix + ":announce:" + r.config.NodeName
}

func (r *RedisBeacon) AnnounceChannel() string {
	return r.config.Prefix + ":announce"
}

func (r *RedisBeacon) Start(ctx context.Context, peers [][]byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	next := make(map[string]struct{}, len(peers))
	ann := &Announcement{
		Node:      r.config.NodeName,
		Peers:     make([]string, 0, len(peers)),
		ExpiresAt: time.Now().Add(r.Lifetime()).UnixMilli(),
	}
	for _, peer := range peers {
		next[r.PeerKey(peer)] = struct{}{}
		ann.Peers = append(ann.Peers, watermark.KeyFor(peer))
	}
	data, err := cbor.Marshal(ann)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key := range r.active {
			if _, ok := next[key]; !ok {
				pipe.Del(ctx, key)
			}
		}
		for key := range next {
			pipe.Set(ctx, key, r.config.NodeName, r.Lifetime())
		}
		pipe.Set(ctx, r.AnnounceKey(), data, r.Lifetime())
		pipe.Publish(ctx, r.AnnounceChannel(), data)
		return nil
	})
	if err != nil {
		return err
	}
	r.active = next
	logger.Debugln("redis beacon advertised peers:", len(peers))
	return nil
}

func (r *RedisBeacon) Stop(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	keys := make([]string, 0, len(r.active)+1)
	for key := range r.active {
		keys = append(keys, key)
	}
	keys = append(keys, r.AnnounceKey())
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	r.active = map[string]struct{}{}
	return nil
}

func (r *RedisBeacon) Close() error {
	return r.client.Close()
}

func DecodeAnnouncement(data []byte) (*Announcement, error) {
	ann := new(Announcement)
	if err := cbor.Unmarshal(data, ann); err != nil {
		return nil, err
	}
	return ann, nil
}
