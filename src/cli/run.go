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

package cli

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dnsvet/dnsvet/src/dnsvet"
	"github.com/dnsvet/dnsvet/src/internal/blocklist"
	"github.com/dnsvet/dnsvet/src/internal/util"
)

type question struct {
	name  string
	qtype uint16
}

// Run executes one invocation: a single query, optionally verified, or a zone
// transfer when --axfr/--ixfr is given.
func Run(opts *Options, args []string) error {
	setLogLevel(opts.Verbosity)
	if err := validateOpts(opts); err != nil {
		return err
	}
	if opts.AXFR || opts.IXFR != "" {
		return runTransfer(opts, args)
	}
	return runQuery(opts, args)
}

func validateOpts(opts *Options) error {
	transports := 0
	for _, set := range []bool{opts.UDP, opts.TCP, opts.TLS} {
		if set {
			transports++
		}
	}
	if transports > 1 {
		return errors.New("at most one of --udp, --tcp and --tls may be given")
	}
	if opts.IPv4 && opts.IPv6 {
		return errors.New("--ipv4 and --ipv6 are mutually exclusive")
	}
	if opts.AXFR && opts.IXFR != "" {
		return errors.New("--axfr and --ixfr are mutually exclusive")
	}
	switch opts.ResultVerbosity {
	case "short", "normal", "long":
	default:
		return errors.Errorf("invalid result verbosity %q, must be short, normal or long", opts.ResultVerbosity)
	}
	if opts.Timeout <= 0 {
		return errors.New("--timeout must be positive")
	}
	if opts.Retries < 0 {
		return errors.New("--retries must not be negative")
	}
	return nil
}

// transport maps the mutually exclusive transport flags onto a Transport.
// Nothing selected means UDP with TCP fallback on truncation.
func transport(opts *Options) dnsvet.Transport {
	switch {
	case opts.UDP:
		return dnsvet.TransportUDP
	case opts.TLS:
		return dnsvet.TransportTLS
	case opts.TCP:
		return dnsvet.TransportTCP
	default:
		return dnsvet.TransportUDPTCP
	}
}

// parseQuestion turns the positional arguments into a query name and type. An
// address argument is rewritten into its reverse-lookup name and defaults to
// PTR; everything else defaults to AAAA.
func parseQuestion(opts *Options, args []string) (question, error) {
	if len(args) == 0 {
		return question{}, errors.New("missing query name")
	}
	if len(args) > 2 {
		return question{}, errors.Errorf("unexpected argument %q", args[2])
	}

	name := args[0]
	qtype := uint16(dns.TypeAAAA)
	if ip := net.ParseIP(name); ip != nil {
		rev, err := dns.ReverseAddr(name)
		if err != nil {
			return question{}, errors.Wrapf(err, "could not build reverse name for %s", name)
		}
		name = rev
		qtype = dns.TypePTR
	} else if !opts.Force && !util.IsStringValidDomainName(name) {
		return question{}, errors.Errorf("%q does not look like a domain name (use --force to query it anyway)", name)
	}

	if len(args) == 2 {
		t, ok := dns.StringToType[strings.ToUpper(args[1])]
		if !ok {
			return question{}, errors.Errorf("unknown query type %q", args[1])
		}
		qtype = t
	}
	if !opts.Force && (qtype == dns.TypeAXFR || qtype == dns.TypeIXFR) {
		return question{}, errors.New("zone transfers need --axfr or --ixfr, not a transfer query type")
	}
	return question{name: name, qtype: qtype}, nil
}

// buildServers assembles the ordered server list for this invocation, either
// from --server or from the system resolver configuration.
func buildServers(opts *Options, tr dnsvet.Transport) ([]dnsvet.Server, error) {
	timeout := time.Duration(opts.Timeout * float64(time.Second))
	port := uint16(opts.Port)
	if port == 0 {
		if tr == dnsvet.TransportTLS {
			port = dnsvet.DefaultDoTPort
		} else {
			port = dnsvet.DefaultDNSPort
		}
	}

	if opts.Server == "" {
		servers, err := dnsvet.SystemServers(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		out := make([]dnsvet.Server, 0, len(servers))
		for _, srv := range servers {
			if !familyOK(opts, srv.IP) {
				continue
			}
			srv.Transport = tr
			srv.Timeout = timeout
			srv.Retries = opts.Retries
			srv.UDPPayloadSize = opts.UDPPayloadSize
			if opts.Port != 0 || tr == dnsvet.TransportTLS {
				srv.Port = port
			}
			if tr == dnsvet.TransportTLS {
				if opts.TLSHostname == "" {
					return nil, errors.New("--tls with system servers requires --tls-hostname")
				}
				srv.TLSHostname = opts.TLSHostname
			}
			out = append(out, srv)
		}
		if len(out) == 0 {
			return nil, errors.New("no system servers match the requested address family")
		}
		return out, nil
	}

	if ip := net.ParseIP(opts.Server); ip != nil {
		if !familyOK(opts, ip) {
			return nil, errors.Errorf("server %s does not match the requested address family", ip)
		}
		if tr == dnsvet.TransportTLS && opts.TLSHostname == "" {
			return nil, errors.New("--tls with a server address requires --tls-hostname")
		}
		return []dnsvet.Server{{
			IP:             ip,
			Port:           port,
			Transport:      tr,
			Timeout:        timeout,
			Retries:        opts.Retries,
			UDPPayloadSize: opts.UDPPayloadSize,
			TLSHostname:    opts.TLSHostname,
		}}, nil
	}

	// A server name: resolve it through the system stub resolver and try every
	// address in order. The name doubles as the TLS hostname unless overridden.
	ips, err := net.LookupIP(opts.Server)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve server name %s", opts.Server)
	}
	tlsHostname := opts.TLSHostname
	if tlsHostname == "" {
		tlsHostname = opts.Server
	}
	servers := make([]dnsvet.Server, 0, len(ips))
	for _, ip := range ips {
		if !familyOK(opts, ip) {
			continue
		}
		servers = append(servers, dnsvet.Server{
			IP:             ip,
			Port:           port,
			Transport:      tr,
			Timeout:        timeout,
			Retries:        opts.Retries,
			UDPPayloadSize: opts.UDPPayloadSize,
			TLSHostname:    tlsHostname,
		})
	}
	if len(servers) == 0 {
		return nil, errors.Errorf("no usable addresses for server name %s", opts.Server)
	}
	return servers, nil
}

func familyOK(opts *Options, ip net.IP) bool {
	if opts.IPv4 && ip.To4() == nil {
		return false
	}
	if opts.IPv6 && ip.To4() != nil {
		return false
	}
	return true
}

func loadBlocklist(opts *Options) (*blocklist.Blocklist, error) {
	if opts.BlocklistFile == "" {
		return nil, nil
	}
	bl, err := blocklist.FromFile(opts.BlocklistFile)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load blocklist from %s", opts.BlocklistFile)
	}
	return bl, nil
}

func newClient(opts *Options, tr dnsvet.Transport) (*dnsvet.Client, error) {
	servers, err := buildServers(opts, tr)
	if err != nil {
		return nil, err
	}
	bl, err := loadBlocklist(opts)
	if err != nil {
		return nil, err
	}
	return dnsvet.NewClient(&dnsvet.ClientConfig{Servers: servers, Blocklist: bl})
}

func runQuery(opts *Options, args []string) error {
	q, err := parseQuestion(opts, args)
	if err != nil {
		return err
	}
	client, err := newClient(opts, transport(opts))
	if err != nil {
		return err
	}

	msg := dnsvet.NewQuery(q.name, q.qtype, dnsvet.QueryFlags{
		RecursionDesired: !opts.NoRD,
		CheckingDisabled: opts.CD,
		AuthenticData:    opts.AD,
		DNSSECOk:         opts.DNSSECOk,
	})

	ctx := context.Background()
	ans, err := client.Request(ctx, msg)
	if err != nil {
		return errors.Wrapf(err, "query for %s failed", q.name)
	}

	var ver *dnsvet.Verification
	if opts.Verify {
		ver, err = verifyAnswer(ctx, opts, msg, ans)
		if err != nil {
			// The primary answer stays valid even when verification cannot
			// complete.
			log.Warnf("could not verify answer for %s: %v", q.name, err)
		}
	}

	if opts.JSON {
		return printJSONQuery(opts, q, ans, ver)
	}
	printTextQuery(ans, ver, opts.Verify)
	return nil
}

// verifyAnswer rebuilds the discovery chain over the system servers and
// re-asks the question at the zone's own nameservers.
func verifyAnswer(ctx context.Context, opts *Options, msg *dns.Msg, ans *dnsvet.Answer) (*dnsvet.Verification, error) {
	servers, err := dnsvet.SystemServers(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	bl, err := loadBlocklist(opts)
	if err != nil {
		return nil, err
	}
	discovery, err := dnsvet.NewClient(&dnsvet.ClientConfig{Servers: servers, Blocklist: bl})
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(opts.Timeout * float64(time.Second))
	resolver := dnsvet.NewAuthResolver(discovery, timeout, opts.Retries, opts.UDPPayloadSize)
	return dnsvet.Verify(ctx, resolver, msg, ans)
}

func runTransfer(opts *Options, args []string) error {
	if len(args) != 1 {
		return errors.New("a zone transfer takes exactly one argument, the zone name")
	}
	zone := args[0]
	if !opts.Force && !util.IsStringValidDomainName(zone) {
		return errors.Errorf("%q does not look like a zone name (use --force to transfer it anyway)", zone)
	}

	tr := transport(opts)
	if tr == dnsvet.TransportUDPTCP {
		// Transfers default to TCP; there is no truncation fallback to speak
		// of when the response spans messages.
		tr = dnsvet.TransportTCP
	}

	var msg *dns.Msg
	if opts.AXFR {
		msg = dnsvet.NewAxfrQuery(zone)
	} else {
		serial, err := strconv.ParseUint(opts.IXFR, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "invalid IXFR serial %q", opts.IXFR)
		}
		msg = dnsvet.NewIxfrQuery(zone, uint32(serial))
	}

	if tr == dnsvet.TransportUDP {
		if opts.AXFR {
			return errors.New("a full zone transfer cannot use UDP")
		}
		// An incremental transfer over UDP is a single-message exchange; the
		// server answers with the full delta or just the current SOA.
		return runTransferUDP(opts, zone, msg)
	}

	client, err := newClient(opts, tr)
	if err != nil {
		return err
	}
	stream, err := client.RequestMulti(context.Background(), msg)
	if err != nil {
		return errors.Wrapf(err, "zone transfer for %s failed", zone)
	}

	var records []dns.RR
	for {
		rrs, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if opts.JSON {
			records = append(records, rrs...)
			continue
		}
		printTextRecords(rrs)
	}
	if opts.JSON {
		return printJSONTransfer(opts, zone, records, stream.Stats())
	}
	printTextFooter(stream.Stats())
	return nil
}

func runTransferUDP(opts *Options, zone string, msg *dns.Msg) error {
	client, err := newClient(opts, dnsvet.TransportUDP)
	if err != nil {
		return err
	}
	ans, err := client.Request(context.Background(), msg)
	if err != nil {
		return errors.Wrapf(err, "zone transfer for %s failed", zone)
	}
	if opts.JSON {
		return printJSONTransfer(opts, zone, ans.Msg().Answer, ans.Stats())
	}
	printTextRecords(ans.Msg().Answer)
	printTextFooter(ans.Stats())
	return nil
}
