package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/miekg/dns"

	"github.com/meidoworks/nekoq-peernotify/internal/beacon"
)

// usage: sample_beacon_client <dns server> <zone> [base64url peer]
func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: sample_beacon_client <dns server> <zone> [base64url peer]")
		os.Exit(2)
	}
	server, zone := os.Args[1], dns.Fqdn(os.Args[2])

	name := beacon.IndexLabel + "." + zone
	if len(os.Args) > 3 {
		peer, err := base64.RawURLEncoding.DecodeString(os.Args[3])
		if err != nil {
			panic(err)
		}
		name = beacon.Label(peer) + "." + zone
	}

	c := new(dns.Client)
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeTXT)
	in, rtt, err := c.Exchange(m, server)
	if err != nil {
		panic(err)
	}
	fmt.Println(rtt.String(), dns.RcodeToString[in.Rcode])
	if len(in.Answer) > 0 {
		for _, rr := range in.Answer {
			if t, ok := rr.(*dns.TXT); ok {
				for _, s := range t.Txt {
					fmt.Println(s)
				}
			}
		}
	} else {
		fmt.Println("no answer")
	}
}
