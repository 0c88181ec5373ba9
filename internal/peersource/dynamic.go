package peersource

import (
	"context"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/meidoworks/nekoq-component/configure/configapi"
	"github.com/meidoworks/nekoq-component/configure/configclient"

	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("peersource")

const (
	ConfigureGroup = "nekoq-peernotify.peers"
	ConfigureKey   = "peers"

	applyTimeout = 30 * time.Second
)

type PeerListContainer struct {
	// base64url encoded peer identities
	Peers []string `toml:"peers"`
}

type Starter interface {
	Start(ctx context.Context, peers [][]byte) error
}

// DynamicPeerSource restarts the notifier with the peer list published on the configure servers
// every time it changes.
type DynamicPeerSource struct {
	serverLists []string
	selectors   string
	starter     Starter

	client *configclient.Client
	adv    *configclient.ClientAdv[*PeerListContainer]
}

func NewDynamicPeerSource(serverList []string, nodeName string, starter Starter) *DynamicPeerSource {
	return &DynamicPeerSource{
		serverLists: serverList,
		selectors:   "app=nekoq-peernotify,dc=default,env=PROD,node=" + nodeName,
		starter:     starter,
	}
}

func (d *DynamicPeerSource) Startup() error {
	sel := new(configapi.Selectors)
	if err := sel.Fill(d.selectors); err != nil {
		return err
	}
	client := configclient.NewClient(d.serverLists, configclient.ClientOptions{
		OverrideSelectors: sel,
	})
	adv := configclient.NewClientAdv[*PeerListContainer](client)
	adv.OnChange = d.onChange
	_, err := adv.Register(ConfigureGroup, ConfigureKey, toml.Unmarshal)
	if err != nil {
		defer d.stopClient(client)
		return err
	}
	d.client = client
	d.adv = adv
	if err := client.StartClient(); err != nil {
		defer d.stopClient(client)
		return err
	}
	if err := client.WaitStartupConfigureLoaded(context.Background()); err != nil {
		logger.Errorln("wait startupConfigureLoaded failed:", err)
		return err
	}
	return nil
}

func (d *DynamicPeerSource) Stop() error {
	if d.client == nil {
		return nil
	}
	return d.client.StopClient()
}

func (d *DynamicPeerSource) stopClient(client *configclient.Client) {
	if err := client.StopClient(); err != nil {
		logger.Errorln("stop client failed:", err)
	}
}

func (d *DynamicPeerSource) onChange(cfg configapi.Configuration, container *PeerListContainer) {
	logger.Infoln("receive peer list change.")
	if err := d.process(container); err != nil {
		logger.Errorln("process peer list change failed:", err)
	} else {
		logger.Infoln("process peer list change success.")
	}
}

func (d *DynamicPeerSource) process(container *PeerListContainer) error {
	var list []string
	if container != nil {
		list = container.Peers
	}
	peers, err := watermark.DecodePeers(list)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	return d.starter.Start(ctx, peers)
}
