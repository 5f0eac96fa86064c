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

// Package dnsvet implements the query engine behind the dnsvet tool: a
// multi-transport DNS client with ordered failover across servers, an
// authoritative-nameserver discovery chain, and a set-based answer diff used
// to verify responses against the servers that should be giving them.
package dnsvet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zmap/zcrypto/tls"
	"github.com/zmap/zcrypto/x509"

	"github.com/dnsvet/dnsvet/src/internal/blocklist"
	"github.com/dnsvet/dnsvet/src/internal/util"
)

var (
	// ErrNoServers is returned when a client is asked to dispatch a query
	// without any candidate servers. This is a configuration error and is
	// raised before any network traffic.
	ErrNoServers = errors.New("no servers to query")

	// ErrMissingTLSHostname is returned when a server is configured for TLS
	// transport without the hostname needed for SNI and certificate
	// verification. Raised before connecting.
	ErrMissingTLSHostname = errors.New("tls transport requires a tls hostname for SNI and certificate verification")

	// ErrStreamTransport is returned when a multi-response query is requested
	// over a transport that cannot carry one.
	ErrStreamTransport = errors.New("multi-response queries require a stream transport (tcp or tls)")
)

// Transport selects how a single server is spoken to.
type Transport int

const (
	// TransportUDPTCP sends the query over UDP and redoes it over TCP exactly
	// once if the response comes back truncated.
	TransportUDPTCP Transport = iota
	TransportUDP
	TransportTCP
	TransportTLS
)

func (t Transport) isValid() (bool, string) {
	if t < TransportUDPTCP || t > TransportTLS {
		return false, fmt.Sprintf("invalid transport: %d", t)
	}
	return true, ""
}

// streamCapable reports whether the transport can carry a multi-message
// response such as a zone transfer.
func (t Transport) streamCapable() bool {
	return t == TransportTCP || t == TransportTLS
}

func (t Transport) String() string {
	switch t {
	case TransportUDPTCP:
		return "udp+tcp"
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	case TransportTLS:
		return "tls"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// Protocol names the wire protocol an individual attempt actually used.
type Protocol string

const (
	UDPProtocol Protocol = "udp"
	TCPProtocol Protocol = "tcp"
	TLSProtocol Protocol = "tls"
)

// Server is one candidate nameserver. Values are immutable once handed to a
// Client; the dispatcher only ever reads them.
type Server struct {
	IP             net.IP
	Port           uint16
	Transport      Transport
	Timeout        time.Duration
	Retries        int
	UDPPayloadSize uint16
	TLSHostname    string // required for TransportTLS only
}

// String returns the address the server is dialed at.
func (s *Server) String() string {
	return net.JoinHostPort(s.IP.String(), strconv.Itoa(int(s.Port)))
}

// Stats records the timing and transport metadata of the attempt that
// produced an answer. It is mutated only by the attempt itself and is
// read-only once the answer is returned.
type Stats struct {
	Start        time.Time     `json:"start_time" groups:"normal,long"`
	Duration     time.Duration `json:"duration" groups:"normal,long"`
	Server       string        `json:"server" groups:"short,normal,long"`
	Protocol     Protocol      `json:"protocol" groups:"short,normal,long"`
	TLSHandshake interface{}   `json:"tls_handshake,omitempty" groups:"long"`
}

func newStats(server string, proto Protocol) Stats {
	return Stats{Start: time.Now(), Server: server, Protocol: proto}
}

// finalize stamps the elapsed duration. Called exactly once, on the success
// path that returns an Answer.
func (s *Stats) finalize() {
	s.Duration = time.Since(s.Start)
}

// Answer is a single response message together with the stats of the attempt
// that produced it.
type Answer struct {
	msg   *dns.Msg
	stats Stats
}

// Msg returns the response message.
func (a *Answer) Msg() *dns.Msg { return a.msg }

// Stats returns the finalized attempt stats.
func (a *Answer) Stats() Stats { return a.stats }

// Exchanger performs one wire exchange with a single server over a concrete
// protocol. The production implementation talks to the network; tests swap in
// a scripted one. Transport metadata for the attempt (the TLS handshake log)
// is folded into stats.
type Exchanger interface {
	Exchange(ctx context.Context, m *dns.Msg, server *Server, proto Protocol, stats *Stats) (*dns.Msg, error)
}

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	// Servers is the ordered candidate list. Must not be empty.
	Servers []Server

	// Blocklist, when set, excludes matching server addresses from dispatch.
	Blocklist *blocklist.Blocklist

	// RootCAs overrides the trust store used for TLS transport. Nil means the
	// system roots.
	RootCAs *x509.CertPool

	// Exchanger overrides the wire exchanger, for tests.
	Exchanger Exchanger
}

func (cc *ClientConfig) isValid() (bool, string) {
	for i := range cc.Servers {
		if ok, reason := cc.Servers[i].Transport.isValid(); !ok {
			return false, reason
		}
	}
	return true, ""
}

// Client dispatches queries across an ordered, immutable list of candidate
// servers. A Client is safe for concurrent use; each attempt owns its own
// connection and the server list is never modified after construction.
type Client struct {
	servers   []Server
	blocklist *blocklist.Blocklist
	rootCAs   *x509.CertPool
	exch      Exchanger
}

// NewClient builds a Client from config. An empty server list is a
// configuration error.
func NewClient(config *ClientConfig) (*Client, error) {
	if len(config.Servers) == 0 {
		return nil, ErrNoServers
	}
	if ok, reason := config.isValid(); !ok {
		return nil, errors.Errorf("invalid client config: %s", reason)
	}
	c := &Client{
		servers:   make([]Server, len(config.Servers)),
		blocklist: config.Blocklist,
		rootCAs:   config.RootCAs,
		exch:      config.Exchanger,
	}
	copy(c.servers, config.Servers)
	if c.exch == nil {
		c.exch = &wireExchanger{rootCAs: config.RootCAs}
	}
	return c, nil
}

// SystemClient builds a Client over the system resolver configuration,
// usually /etc/resolv.conf. An empty path selects the default location.
func SystemClient(path string) (*Client, error) {
	servers, err := SystemServers(path)
	if err != nil {
		return nil, err
	}
	return NewClient(&ClientConfig{Servers: servers})
}

// Servers returns a copy of the client's candidate list.
func (c *Client) Servers() []Server {
	out := make([]Server, len(c.servers))
	copy(out, c.servers)
	return out
}

// Query sends a plain recursion-desired question for name and qtype.
func (c *Client) Query(ctx context.Context, name string, qtype uint16) (*Answer, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return c.Request(ctx, m)
}

// Request dispatches a wire-ready query. Servers are tried strictly in list
// order; the first success wins and the remaining servers are never
// contacted. If every server fails, the last server's error is returned.
// The error kind never influences failover: any failed attempt simply moves
// on to the next server while one remains.
func (c *Client) Request(ctx context.Context, m *dns.Msg) (*Answer, error) {
	if len(c.servers) == 0 {
		return nil, ErrNoServers
	}
	var lastErr error
	for i := range c.servers {
		srv := &c.servers[i]
		if util.HasCtxExpired(ctx) {
			return nil, errors.Wrapf(ctx.Err(), "dispatch aborted before server %s", srv)
		}
		if skip, err := c.blocked(srv); skip {
			lastErr = err
			continue
		}
		ans, err := c.requestServer(ctx, m.Copy(), srv)
		if err == nil {
			return ans, nil
		}
		log.Debugf("query to server %s over %s failed: %v", srv, srv.Transport, err)
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) blocked(srv *Server) (bool, error) {
	if c.blocklist == nil {
		return false, nil
	}
	isBlocked, err := c.blocklist.Contains(srv.IP.String())
	if err != nil {
		return true, errors.Wrapf(err, "could not check blocklist for server %s", srv)
	}
	if isBlocked {
		log.Infof("skipping blocklisted server %s", srv)
		return true, errors.Errorf("server %s is blocklisted", srv)
	}
	return false, nil
}

// requestServer performs one attempt against one server, honoring the
// server's transport and its own fallback before the dispatcher is allowed
// to fail over.
func (c *Client) requestServer(ctx context.Context, m *dns.Msg, srv *Server) (*Answer, error) {
	switch srv.Transport {
	case TransportUDP:
		return c.requestUDP(ctx, m, srv)
	case TransportUDPTCP:
		// The TCP redo must use a pristine copy: the UDP attempt owns and may
		// mutate its message.
		tcpMsg := m.Copy()
		ans, err := c.requestUDP(ctx, m, srv)
		if err != nil {
			return nil, err
		}
		if ans.Msg().Truncated {
			return c.requestTCP(ctx, tcpMsg, srv)
		}
		return ans, nil
	case TransportTCP:
		return c.requestTCP(ctx, m, srv)
	case TransportTLS:
		if srv.TLSHostname == "" {
			return nil, ErrMissingTLSHostname
		}
		return c.requestTLS(ctx, m, srv)
	default:
		return nil, errors.Errorf("invalid transport: %d", srv.Transport)
	}
}

func (c *Client) requestUDP(ctx context.Context, m *dns.Msg, srv *Server) (*Answer, error) {
	stats := newStats(srv.String(), UDPProtocol)
	resp, err := c.exch.Exchange(ctx, m, srv, UDPProtocol, &stats)
	if err != nil {
		return nil, err
	}
	stats.finalize()
	return &Answer{msg: resp, stats: stats}, nil
}

func (c *Client) requestTCP(ctx context.Context, m *dns.Msg, srv *Server) (*Answer, error) {
	stats := newStats(srv.String(), TCPProtocol)
	resp, err := c.exch.Exchange(ctx, m, srv, TCPProtocol, &stats)
	if err != nil {
		return nil, err
	}
	stats.finalize()
	return &Answer{msg: resp, stats: stats}, nil
}

func (c *Client) requestTLS(ctx context.Context, m *dns.Msg, srv *Server) (*Answer, error) {
	stats := newStats(srv.String(), TLSProtocol)
	resp, err := c.exch.Exchange(ctx, m, srv, TLSProtocol, &stats)
	if err != nil {
		return nil, err
	}
	stats.finalize()
	return &Answer{msg: resp, stats: stats}, nil
}

// wireExchanger is the production Exchanger. Connection errors, timeouts and
// decode errors are all folded into one opaque per-attempt error; callers
// never branch on the kind.
type wireExchanger struct {
	rootCAs *x509.CertPool
}

func (w *wireExchanger) Exchange(ctx context.Context, m *dns.Msg, srv *Server, proto Protocol, stats *Stats) (*dns.Msg, error) {
	switch proto {
	case UDPProtocol:
		return w.exchangeUDP(ctx, m, srv)
	case TCPProtocol:
		return w.exchangeTCP(ctx, m, srv)
	case TLSProtocol:
		return w.exchangeTLS(ctx, m, srv, stats)
	default:
		return nil, errors.Errorf("invalid protocol: %s", proto)
	}
}

func (w *wireExchanger) exchangeUDP(ctx context.Context, m *dns.Msg, srv *Server) (*dns.Msg, error) {
	applyUDPPayloadSize(m, srv.UDPPayloadSize)
	client := &dns.Client{Timeout: srv.Timeout}
	attempts := srv.Retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, _, err := client.ExchangeContext(ctx, m, srv.String())
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "udp exchange with %s failed after %d attempts", srv, attempts)
}

func (w *wireExchanger) exchangeTCP(ctx context.Context, m *dns.Msg, srv *Server) (*dns.Msg, error) {
	client := &dns.Client{Net: "tcp", Timeout: srv.Timeout}
	resp, _, err := client.ExchangeContext(ctx, m, srv.String())
	if err != nil {
		return nil, errors.Wrapf(err, "tcp exchange with %s failed", srv)
	}
	return resp, nil
}

func (w *wireExchanger) exchangeTLS(ctx context.Context, m *dns.Msg, srv *Server, stats *Stats) (*dns.Msg, error) {
	tlsConn, err := dialTLS(ctx, srv, w.rootCAs, stats)
	if err != nil {
		return nil, err
	}
	conn := &dns.Conn{Conn: tlsConn}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Debugf("error closing tls connection to %s: %v", srv, cerr)
		}
	}()
	if err := conn.WriteMsg(m); err != nil {
		return nil, errors.Wrapf(err, "could not write query over tls to %s", srv)
	}
	resp, err := conn.ReadMsg()
	if err != nil {
		return nil, errors.Wrapf(err, "could not read tls response from %s", srv)
	}
	return resp, nil
}

// dialTLS establishes a TCP connection and performs the TLS handshake for
// srv, recording the handshake log on stats. The configured hostname is used
// for SNI and certificate verification.
func dialTLS(ctx context.Context, srv *Server, rootCAs *x509.CertPool, stats *Stats) (*tls.Conn, error) {
	dialer := &net.Dialer{Timeout: srv.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", srv.String())
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to %s", srv)
	}
	if srv.Timeout != 0 {
		if derr := raw.SetDeadline(time.Now().Add(srv.Timeout)); derr != nil {
			log.Debugf("could not set deadline on connection to %s: %v", srv, derr)
		}
	}
	tlsConn := tls.Client(raw, &tls.Config{
		ServerName: srv.TLSHostname,
		RootCAs:    rootCAs,
	})
	if err := tlsConn.Handshake(); err != nil {
		if cerr := tlsConn.Close(); cerr != nil {
			log.Debugf("error closing tls connection to %s: %v", srv, cerr)
		}
		return nil, errors.Wrapf(err, "tls handshake with %s failed", srv)
	}
	if stats != nil {
		stats.TLSHandshake = tlsConn.GetHandshakeLog()
	}
	return tlsConn, nil
}

// applyUDPPayloadSize advertises the server's payload size in the OPT record,
// adding one if the request does not already carry EDNS.
func applyUDPPayloadSize(m *dns.Msg, size uint16) {
	if size == 0 {
		return
	}
	if opt := m.IsEdns0(); opt != nil {
		opt.SetUDPSize(size)
		return
	}
	m.SetEdns0(size, false)
}
