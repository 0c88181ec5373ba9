package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	DefaultConfigFile = "peernotify.toml"

	StorageProviderMem   = "mem"
	StorageProviderDiskv = "diskv"

	BeaconLog   = "log"
	BeaconRedis = "redis"
	BeaconDns   = "dns"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Main struct {
		Debug           bool   `toml:"debug"`
		LogLevel        string `toml:"log_level"`
		LogFormat       string `toml:"log_format"`
		LogFolder       string `toml:"log_folder"`
		StorageProvider string `toml:"storage_provider"`
		DataFolder      string `toml:"data_folder"`
		NodeName        string `toml:"node_name"`
	} `toml:"main"`
	Notifier struct {
		MaxPeersToNotify   int   `toml:"max_peers_to_notify"`
		TokenTTLMs         int64 `toml:"token_ttl_ms"`
		PeerIdentityLength int   `toml:"peer_identity_length"`

		// base64url encoded peer identities started on boot
		Peers []string `toml:"peers"`
	} `toml:"notifier"`
	Beacon struct {
		Providers   []string `toml:"providers"`
		RedisAddr   string   `toml:"redis_addr"`
		RedisPrefix string   `toml:"redis_prefix"`
		DnsListener string   `toml:"dns_listener"`
		DnsZone     string   `toml:"dns_zone"`
		GraceMs     int64    `toml:"grace_ms"`
	} `toml:"beacon"`
	Http struct {
		Listener string `toml:"listener"`
	} `toml:"http"`
	Resp struct {
		Listener string `toml:"listener"`
	} `toml:"resp"`
	Dynamic struct {
		Enable  bool     `toml:"enable"`
		Servers []string `toml:"servers"`
	} `toml:"dynamic"`
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Notifier.TokenTTLMs) * time.Millisecond
}

func (c *Config) BeaconGrace() time.Duration {
	return time.Duration(c.Beacon.GraceMs) * time.Millisecond
}

func (c *Config) HasBeacon(name string) bool {
	for _, p := range c.Beacon.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// LoadFile reads the toml file from fs, fills defaults and validates.
func LoadFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

func Load(data []byte) (*Config, error) {
	config := new(Config)
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Main.LogLevel == "" {
		c.Main.LogLevel = "info"
		if c.Main.Debug {
			c.Main.LogLevel = "debug"
		}
	}
	if c.Main.LogFormat == "" {
		c.Main.LogFormat = "text"
	}
	if c.Main.StorageProvider == "" {
		c.Main.StorageProvider = StorageProviderMem
	}
	if c.Main.DataFolder == "" {
		c.Main.DataFolder = "data"
	}
	if c.Main.NodeName == "" {
		c.Main.NodeName = uuid.NewString()
	}
	if len(c.Beacon.Providers) == 0 {
		c.Beacon.Providers = []string{BeaconLog}
	}
}

func (c *Config) Validate() error {
	switch c.Main.StorageProvider {
	case StorageProviderMem, StorageProviderDiskv:
	default:
		return fmt.Errorf("unknown storage provider %q: %w", c.Main.StorageProvider, ErrInvalidConfig)
	}
	if c.Notifier.MaxPeersToNotify < 0 {
		return fmt.Errorf("max_peers_to_notify must not be negative: %w", ErrInvalidConfig)
	}
	if c.Notifier.TokenTTLMs < 0 {
		return fmt.Errorf("token_ttl_ms must not be negative: %w", ErrInvalidConfig)
	}
	if c.Notifier.PeerIdentityLength < 0 {
		return fmt.Errorf("peer_identity_length must not be negative: %w", ErrInvalidConfig)
	}
	if c.Beacon.GraceMs < 0 {
		return fmt.Errorf("grace_ms must not be negative: %w", ErrInvalidConfig)
	}
	for _, p := range c.Beacon.Providers {
		switch p {
		case BeaconLog:
		case BeaconRedis:
			if c.Beacon.RedisAddr == "" {
				return fmt.Errorf("redis beacon requires redis_addr: %w", ErrInvalidConfig)
			}
		case BeaconDns:
			if c.Beacon.DnsListener == "" || c.Beacon.DnsZone == "" {
				return fmt.Errorf("dns beacon requires dns_listener and dns_zone: %w", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("unknown beacon provider %q: %w", p, ErrInvalidConfig)
		}
	}
	if c.Dynamic.Enable && len(c.Dynamic.Servers) == 0 {
		return fmt.Errorf("dynamic peers require servers: %w", ErrInvalidConfig)
	}
	return nil
}
