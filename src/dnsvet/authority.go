/*
 * dnsvet Copyright 2026 The dnsvet Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not
 * use this file except in compliance with the License. You may obtain a copy
 * of the License at http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
 * implied. See the License for the specific language governing
 * permissions and limitations under the License.
 */

package dnsvet

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoSOA is returned when apex discovery finds no usable SOA record.
	ErrNoSOA = errors.New("no SOA record")

	// ErrNoNS is returned when the zone apex has no NS records.
	ErrNoNS = errors.New("no NS records for zone apex")

	// ErrNoAddresses is returned when none of the delegated nameservers
	// resolves to an address.
	ErrNoAddresses = errors.New("no addresses for any nameserver")
)

// AuthResolver discovers, from scratch, the nameservers that should be
// answering for a query name: SOA for the apex, NS for the delegation, then
// addresses for every delegated server. Discovery queries go through a stub
// client (normally built from the system resolver configuration).
type AuthResolver struct {
	client  *Client
	timeout time.Duration
	retries int
	payload uint16
}

// NewAuthResolver builds an AuthResolver over the given discovery client.
// timeout, retries and payload configure the servers the resolver hands back,
// not the discovery queries themselves; zero values select the defaults.
func NewAuthResolver(client *Client, timeout time.Duration, retries int, payload uint16) *AuthResolver {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if retries == 0 {
		retries = defaultRetries
	}
	if payload == 0 {
		payload = defaultUDPPayloadSize
	}
	return &AuthResolver{client: client, timeout: timeout, retries: retries, payload: payload}
}

// Resolve walks the four-hop discovery chain for name and returns the server
// registry to verify against. Failure at any hop aborts the whole chain;
// there is no partial result.
func (r *AuthResolver) Resolve(ctx context.Context, name string) ([]Server, error) {
	apex, err := r.apex(ctx, name)
	if err != nil {
		return nil, err
	}
	log.Debugf("zone apex for %s is %s", name, apex)
	nsNames, err := r.nsSet(ctx, apex)
	if err != nil {
		return nil, err
	}
	addrs, err := r.nsAddrs(ctx, nsNames)
	if err != nil {
		return nil, err
	}
	servers := make([]Server, 0, len(addrs))
	for _, addr := range addrs {
		servers = append(servers, Server{
			IP:             net.ParseIP(addr),
			Port:           DefaultDNSPort,
			Transport:      TransportUDPTCP,
			Timeout:        r.timeout,
			Retries:        r.retries,
			UDPPayloadSize: r.payload,
		})
	}
	return servers, nil
}

// apex determines the apex of the zone the query name lives in. The SOA sits
// in the answer section when the name is the apex itself, otherwise in the
// authority section with the apex as owner. Only the first answer record is
// considered before falling through to the authority section.
func (r *AuthResolver) apex(ctx context.Context, name string) (string, error) {
	qname := dns.Fqdn(name)
	ans, err := r.client.Query(ctx, qname, dns.TypeSOA)
	if err != nil {
		return "", errors.Wrapf(err, "SOA query for %s failed", qname)
	}
	resp := ans.Msg()
	if len(resp.Answer) > 0 {
		if soa, ok := resp.Answer[0].(*dns.SOA); ok && strings.EqualFold(soa.Hdr.Name, qname) {
			return qname, nil
		}
		// Strange SOA in the answer section, continue with the authority
		// section.
	}
	for _, rr := range resp.Ns {
		if soa, ok := rr.(*dns.SOA); ok {
			return soa.Hdr.Name, nil
		}
	}
	return "", ErrNoSOA
}

// nsSet returns the nameserver names delegated for apex, discarding records
// whose owner is not the apex itself.
func (r *AuthResolver) nsSet(ctx context.Context, apex string) ([]string, error) {
	ans, err := r.client.Query(ctx, apex, dns.TypeNS)
	if err != nil {
		return nil, errors.Wrapf(err, "NS query for %s failed", apex)
	}
	var names []string
	for _, rr := range ans.Msg().Answer {
		ns, ok := rr.(*dns.NS)
		if !ok || !strings.EqualFold(ns.Hdr.Name, apex) {
			continue
		}
		names = append(names, ns.Ns)
	}
	// The additional section may carry glue, but we are going to ask for the
	// addresses ourselves anyway.
	if len(names) == 0 {
		return nil, ErrNoNS
	}
	return names, nil
}

// nsAddrs resolves every nameserver name to its addresses. The per-name
// lookups are independent and run concurrently; the union is deduplicated and
// sorted so the merge is deterministic.
func (r *AuthResolver) nsAddrs(ctx context.Context, nsNames []string) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})

	g, ctx := errgroup.WithContext(ctx)
	for _, nsName := range nsNames {
		nsName := nsName
		g.Go(func() error {
			addrs, err := r.hostAddrs(ctx, nsName)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, addr := range addrs {
				seen[addr] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return nil, ErrNoAddresses
	}
	addrs := make([]string, 0, len(seen))
	for addr := range seen {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs, nil
}

// hostAddrs looks up the A and AAAA records for one host name.
func (r *AuthResolver) hostAddrs(ctx context.Context, name string) ([]string, error) {
	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ans, err := r.client.Query(ctx, name, qtype)
		if err != nil {
			return nil, errors.Wrapf(err, "%s query for nameserver %s failed", dns.TypeToString[qtype], name)
		}
		for _, rr := range ans.Msg().Answer {
			switch a := rr.(type) {
			case *dns.A:
				addrs = append(addrs, a.A.String())
			case *dns.AAAA:
				addrs = append(addrs, a.AAAA.String())
			}
		}
	}
	return addrs, nil
}
