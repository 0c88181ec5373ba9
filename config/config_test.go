package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[main]
debug = true
storage_provider = "diskv"
data_folder = "/var/lib/peernotify"
node_name = "node-1"
log_folder = "/var/log/peernotify"

[notifier]
max_peers_to_notify = 5
token_ttl_ms = 60000
peer_identity_length = 133
peers = ["AAEC", "AwQF"]

[beacon]
providers = ["log", "redis", "dns"]
redis_addr = "127.0.0.1:6379"
dns_listener = "udp://127.0.0.1:5353"
dns_zone = "beacon.local."
grace_ms = 120000

[http]
listener = "127.0.0.1:8080"

[resp]
listener = "127.0.0.1:6380"

[dynamic]
enable = true
servers = ["http://127.0.0.1:9100"]
`

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, DefaultConfigFile, []byte(sampleConfig), 0644))

	c, err := LoadFile(fs, DefaultConfigFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Main.LogLevel)
	assert.Equal(t, "text", c.Main.LogFormat)
	assert.Equal(t, StorageProviderDiskv, c.Main.StorageProvider)
	assert.Equal(t, "node-1", c.Main.NodeName)
	assert.Equal(t, "/var/log/peernotify", c.Main.LogFolder)
	assert.Equal(t, 2*time.Minute, c.BeaconGrace())
	assert.Equal(t, 5, c.Notifier.MaxPeersToNotify)
	assert.Equal(t, time.Minute, c.TokenTTL())
	assert.Equal(t, []string{"AAEC", "AwQF"}, c.Notifier.Peers)
	assert.True(t, c.HasBeacon(BeaconRedis))
	assert.True(t, c.HasBeacon(BeaconDns))
	assert.Equal(t, "127.0.0.1:6380", c.Resp.Listener)
	assert.True(t, c.Dynamic.Enable)
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "info", c.Main.LogLevel)
	assert.Equal(t, StorageProviderMem, c.Main.StorageProvider)
	assert.Equal(t, []string{BeaconLog}, c.Beacon.Providers)
	assert.Equal(t, time.Duration(0), c.TokenTTL())
	_, err = uuid.Parse(c.Main.NodeName)
	assert.NoError(t, err)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"storage provider": "[main]\nstorage_provider = \"sql\"",
		"max peers":        "[notifier]\nmax_peers_to_notify = -1",
		"token ttl":        "[notifier]\ntoken_ttl_ms = -5",
		"identity length":  "[notifier]\npeer_identity_length = -1",
		"beacon provider":  "[beacon]\nproviders = [\"smoke\"]",
		"beacon grace":     "[beacon]\ngrace_ms = -1",
		"redis address":    "[beacon]\nproviders = [\"redis\"]",
		"dns zone":         "[beacon]\nproviders = [\"dns\"]\ndns_listener = \"udp://:53\"",
		"dynamic servers":  "[dynamic]\nenable = true",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load([]byte("[main"))
	assert.Error(t, err)

	_, err = LoadFile(afero.NewMemMapFs(), "missing.toml")
	assert.Error(t, err)
}
