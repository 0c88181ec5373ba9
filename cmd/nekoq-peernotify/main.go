package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	peernotify "github.com/meidoworks/nekoq-peernotify"
	"github.com/meidoworks/nekoq-peernotify/config"
	"github.com/meidoworks/nekoq-peernotify/internal/beacon"
	"github.com/meidoworks/nekoq-peernotify/internal/httpserver"
	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/internal/metrics"
	"github.com/meidoworks/nekoq-peernotify/internal/peersource"
	"github.com/meidoworks/nekoq-peernotify/internal/service"
	"github.com/meidoworks/nekoq-peernotify/internal/storage"
	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("main")

const shutdownTimeout = 10 * time.Second

func main() {
	// init gops
	if err := agent.Listen(agent.Options{}); err != nil {
		logger.Fatalln(err)
	}

	configFile := config.DefaultConfigFile
	if v := os.Getenv("PEERNOTIFY_CONFIG"); v != "" {
		configFile = v
	}
	c, err := config.LoadFile(afero.NewOsFs(), configFile)
	if err != nil {
		panic(err)
	}
	if err := logging.Setup(c.Main.LogLevel, c.Main.LogFormat); err != nil {
		panic(err)
	}
	if c.Main.LogFolder != "" {
		if err := logging.EnableFileOutput(filepath.Join(c.Main.LogFolder, "peernotify")); err != nil {
			panic(err)
		}
	}
	logger.Infoln("node:", c.Main.NodeName, "storage provider:", c.Main.StorageProvider)

	var replica iface.ClosableReplica
	switch c.Main.StorageProvider {
	case config.StorageProviderMem:
		replica, err = storage.NewMemdbReplica()
	case config.StorageProviderDiskv:
		replica, err = storage.NewDiskvReplica(c.Main.DataFolder)
	default:
		err = errors.New("unknown storage provider")
	}
	if err != nil {
		panic(err)
	}

	m, err := metrics.NewMetrics()
	if err != nil {
		panic(err)
	}

	// beacons
	beacons := beacon.NewMulti()
	var redisBeacon *beacon.RedisBeacon
	var dnsBeacon *beacon.DnsBeacon
	for _, p := range c.Beacon.Providers {
		switch p {
		case config.BeaconLog:
			beacons.Add(p, beacon.LogBeacon{})
		case config.BeaconRedis:
			redisBeacon, err = beacon.NewRedisBeacon(beacon.RedisBeaconConfig{
				Addr:     c.Beacon.RedisAddr,
				Prefix:   c.Beacon.RedisPrefix,
				NodeName: c.Main.NodeName,
				TTL:      c.TokenTTL(),
				Grace:    c.BeaconGrace(),
			})
			if err != nil {
				panic(err)
			}
			beacons.Add(p, redisBeacon)
		case config.BeaconDns:
			dnsBeacon, err = beacon.NewDnsBeacon(beacon.DnsBeaconConfig{
				Addr:                 c.Beacon.DnsListener,
				Zone:                 c.Beacon.DnsZone,
				TTL:                  c.TokenTTL(),
				Grace:                c.BeaconGrace(),
				DebugPrintDnsRequest: c.Main.Debug,
			})
			if err != nil {
				panic(err)
			}
			beacons.Add(p, dnsBeacon)
		}
	}

	n, err := peernotify.New(&peernotify.Config{
		Server:             beacons,
		Replica:            replica,
		TokenTTL:           c.TokenTTL(),
		MaxPeersToNotify:   c.Notifier.MaxPeersToNotify,
		PeerIdentityLength: c.Notifier.PeerIdentityLength,
		Metrics:            m,
	})
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	eg, egCtx := errgroup.WithContext(ctx)

	// http
	var httpContainer *service.HttpServiceContainer
	if c.Http.Listener != "" {
		httpContainer = service.NewHttpServiceContainer(httpserver.NewHttpServer(c.Http.Listener)).
			SetupNotifier(n).
			SetupReplica(replica).
			SetupMetrics(m.Handler())
		if err := httpContainer.Startup(); err != nil {
			panic(err)
		}
	}

	// resp
	var respService *service.Resp2Service
	if c.Resp.Listener != "" {
		respService = service.NewResp2Service(&service.RespServiceConfig{
			Addr:                 c.Resp.Listener,
			DebugPrintConnection: c.Main.Debug,
		})
		service.NewRespNotifierHandler(n, replica).Register(respService)
		logger.Infoln("start resp module at", c.Resp.Listener)
		eg.Go(respService.ServeAndWait)
	}

	// dns beacon
	if dnsBeacon != nil {
		logger.Infoln("start dns beacon at", c.Beacon.DnsListener)
		eg.Go(dnsBeacon.Startup)
	}

	// peers
	if len(c.Notifier.Peers) > 0 {
		peers, err := watermark.DecodePeers(c.Notifier.Peers)
		if err != nil {
			panic(err)
		}
		if err := n.Start(ctx, peers); err != nil {
			panic(err)
		}
	}
	var dynamic *peersource.DynamicPeerSource
	if c.Dynamic.Enable {
		dynamic = peersource.NewDynamicPeerSource(c.Dynamic.Servers, c.Main.NodeName, n)
		if err := dynamic.Startup(); err != nil {
			panic(err)
		}
	}

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Infoln("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if dynamic != nil {
			errs = append(errs, dynamic.Stop())
		}
		errs = append(errs, n.Close(sctx))
		if httpContainer != nil {
			errs = append(errs, httpContainer.Stop(sctx))
		}
		if respService != nil {
			errs = append(errs, respService.Close())
		}
		if dnsBeacon != nil {
			errs = append(errs, dnsBeacon.Shutdown(sctx))
		}
		if redisBeacon != nil {
			errs = append(errs, redisBeacon.Close())
		}
		errs = append(errs, replica.Close())
		return errors.Join(errs...)
	})

	if err := eg.Wait(); err != nil {
		logger.Errorln("exit with error:", err)
		os.Exit(1)
	}
	logger.Infoln("bye")
}
