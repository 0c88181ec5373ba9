package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	peernotify "github.com/meidoworks/nekoq-peernotify"
	"github.com/meidoworks/nekoq-peernotify/internal/httpserver"
	"github.com/meidoworks/nekoq-peernotify/internal/service"
	"github.com/meidoworks/nekoq-peernotify/internal/storage"
)

type recordingServer struct {
	sync.Mutex
	last [][]byte
}

func (r *recordingServer) Start(ctx context.Context, peers [][]byte) error {
	r.Lock()
	defer r.Unlock()
	r.last = peers
	return nil
}

func (r *recordingServer) Stop(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()
	r.last = nil
	return nil
}

func newTestNode(t *testing.T) (*HttpServiceClient, *recordingServer) {
	t.Helper()
	replica, err := storage.NewMemdbReplica()
	require.NoError(t, err)
	server := new(recordingServer)
	n, err := peernotify.New(&peernotify.Config{
		Server:             server,
		Replica:            replica,
		PeerIdentityLength: 4,
	})
	require.NoError(t, err)

	container := service.NewHttpServiceContainer(httpserver.NewHttpServer("127.0.0.1:0")).
		SetupNotifier(n).
		SetupReplica(replica)
	srv := httptest.NewServer(container.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = n.Close(context.Background())
	})
	return NewHttpServiceClient(srv.URL + "/"), server
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, server := newTestNode(t)
	peer := []byte("peer")

	require.NoError(t, c.StartNotifier(ctx, [][]byte{peer}))
	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Empty(t, status.AdvertisedPeers)

	seq, err := c.PutDocument(ctx, "doc1", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	val, found, err := c.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), val)
	_, found, err = c.GetDocument(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.Eventually(t, func() bool {
		st, err := c.Status(ctx)
		return err == nil && len(st.AdvertisedPeers) == 1
	}, 5*time.Second, 10*time.Millisecond)
	server.Lock()
	assert.Equal(t, [][]byte{peer}, server.last)
	server.Unlock()

	// the peer catches up
	_, err = c.PutWatermark(ctx, peer, 10)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := c.Status(ctx)
		return err == nil && len(st.AdvertisedPeers) == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.StopNotifier(ctx))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestClientBadRequest(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestNode(t)

	err := c.StartNotifier(ctx, [][]byte{[]byte("too long")})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = c.PutDocument(ctx, "bad.key", []byte("x"))
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = c.PutDocument(ctx, " ", []byte("x"))
	assert.Error(t, err)
	_, err = c.PutWatermark(ctx, nil, 1)
	assert.Error(t, err)
}
