package beacon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
)

const (
	IndexLabel = "_beacons"
	// labels are cut to stay well below the 63 byte limit
	labelLength = 32
)

type DnsBeaconConfig struct {
	// Addr is scheme://host:port, the scheme being udp or tcp
	Addr string
	Zone string
	TTL  time.Duration
	// records answer for TTL+Grace after each Start
	Grace time.Duration

	DebugPrintDnsRequest bool
}

type dnsBeaconRecord struct {
	key      string
	expireAt time.Time
}

// DnsBeacon answers TXT queries for <label>.<zone>, one label per advertised peer, and lists all
// labels under _beacons.<zone>.
type DnsBeacon struct {
	Server *dns.Server

	zone string
	// record lifetime, token ttl plus grace
	ttl    time.Duration
	debug  bool
	now    func() time.Time
	rwlock sync.RWMutex
	// fqdn -> record
	records map[string]dnsBeaconRecord
}

func NewDnsBeacon(config DnsBeaconConfig) (*DnsBeacon, error) {
	if config.Zone == "" {
		return nil, errors.New("dns beacon requires a zone")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultBeaconTTL
	}
	if config.Grace <= 0 {
		config.Grace = DefaultBeaconGrace
	}
	b := &DnsBeacon{
		zone:    strings.ToLower(dns.Fqdn(config.Zone)),
		ttl:     config.TTL + config.Grace,
		debug:   config.DebugPrintDnsRequest,
		now:     time.Now,
		records: map[string]dnsBeaconRecord{},
	}
	if config.Addr != "" {
		u, err := url.Parse(config.Addr)
		if err != nil {
			return nil, err
		}
		b.Server = &dns.Server{
			Addr:    u.Host,
			Net:     u.Scheme,
			Handler: b,
		}
	}
	return b, nil
}

// Label derives the dns label of a peer identity.
func Label(peer []byte) string {
	sum := sha256.Sum256(peer)
	return hex.EncodeToString(sum[:])[:labelLength]
}

func (d *DnsBeacon) Name(peer []byte) string {
	return Label(peer) + "." + d.zone
}

func (d *DnsBeacon) IndexName() string {
	return IndexLabel + "." + d.zone
}

func (d *DnsBeacon) Start(ctx context.Context, peers [][]byte) error {
	expireAt := d.now().Add(d.ttl)
	records := make(map[string]dnsBeaconRecord, len(peers))
	for _, peer := range peers {
		records[d.Name(peer)] = dnsBeaconRecord{
			key:      watermark.KeyFor(peer),
			expireAt: expireAt,
		}
	}
	d.rwlock.Lock()
	d.records = records
	d.rwlock.Unlock()
	return nil
}

func (d *DnsBeacon) Stop(ctx context.Context) error {
	d.rwlock.Lock()
	d.records = map[string]dnsBeaconRecord{}
	d.rwlock.Unlock()
	return nil
}

// Startup blocks serving dns until Shutdown.
func (d *DnsBeacon) Startup() error {
	if d.Server == nil {
		return errors.New("dns beacon has no listener")
	}
	return d.Server.ListenAndServe()
}

func (d *DnsBeacon) Shutdown(ctx context.Context) error {
	if d.Server == nil {
		return nil
	}
	return d.Server.ShutdownContext(ctx)
}

func (d *DnsBeacon) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	defer func() {
		if err := recover(); err != nil {
			logger.Errorln("process dns request failed. information:", err)
		}
	}()

	reply := d.ProcessDnsMsg(r)
	if err := w.WriteMsg(reply); err != nil {
		panic(err)
	}
}

func (d *DnsBeacon) ProcessDnsMsg(r *dns.Msg) *dns.Msg {
	reply := new(dns.Msg)
	if len(r.Question) != 1 {
		// treat question count other than 1 as incorrectly-formatted message according to rfc9619
		return reply.SetRcodeFormatError(r)
	}
	q := r.Question[0]
	name := strings.ToLower(dns.Fqdn(q.Name))
	if d.debug {
		logger.Debugln("[DnsBeacon] question:", name, dns.TypeToString[q.Qtype])
	}
	if !dns.IsSubDomain(d.zone, name) {
		return reply.SetRcode(r, dns.RcodeRefused)
	}

	txt, ok := d.lookup(name)
	if !ok {
		return reply.SetRcode(r, dns.RcodeNameError)
	}
	reply.SetReply(r)
	reply.Authoritative = true
	if q.Qtype != dns.TypeTXT && q.Qtype != dns.TypeANY {
		return reply
	}
	reply.Answer = append(reply.Answer, &dns.TXT{
		Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: d.remainingTTL()},
		Txt: txt,
	})
	return reply
}

func (d *DnsBeacon) lookup(name string) ([]string, bool) {
	now := d.now()
	d.rwlock.RLock()
	defer d.rwlock.RUnlock()

	if name == d.IndexName() {
		labels := make([]string, 0, len(d.records))
		for fqdn, rec := range d.records {
			if now.Before(rec.expireAt) {
				labels = append(labels, strings.TrimSuffix(fqdn, "."+d.zone))
			}
		}
		sort.Strings(labels)
		if len(labels) == 0 {
			// an empty TXT record is not allowed
			labels = append(labels, "")
		}
		return labels, true
	}
	rec, ok := d.records[name]
	if !ok || !now.Before(rec.expireAt) {
		return nil, false
	}
	return []string{
		"peer=" + rec.key,
		fmt.Sprint("exp=", rec.expireAt.Unix()),
	}, true
}

func (d *DnsBeacon) remainingTTL() uint32 {
	now := d.now()
	d.rwlock.RLock()
	defer d.rwlock.RUnlock()
	var ttl time.Duration
	for _, rec := range d.records {
		left := rec.expireAt.Sub(now)
		if left <= 0 {
			continue
		}
		if ttl == 0 || left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return 0
	}
	return uint32(ttl / time.Second)
}
