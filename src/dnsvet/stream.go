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
	"io"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dnsvet/dnsvet/src/internal/util"
)

// Stream is a pull-based handle over a multi-message response, typically a
// zone transfer. The connection is driven by a reader goroutine that owns the
// socket for the connection's lifetime; the caller and that goroutine
// communicate only through this handle.
type Stream struct {
	env   <-chan *dns.Envelope
	stats Stats
	done  bool
}

// Next returns the records of the next response message. It returns io.EOF
// once the stream has signaled completion, after which the attempt's stats
// are finalized. Any mid-stream failure terminates the stream.
func (s *Stream) Next() ([]dns.RR, error) {
	if s.done {
		return nil, io.EOF
	}
	env, ok := <-s.env
	if !ok {
		s.done = true
		s.stats.finalize()
		return nil, io.EOF
	}
	if env.Error != nil {
		s.done = true
		return nil, errors.Wrap(env.Error, "zone transfer stream failed")
	}
	return env.RR, nil
}

// Stats returns the attempt stats. The duration is only set once the stream
// has completed.
func (s *Stream) Stats() Stats { return s.stats }

// NewAxfrQuery builds a full zone transfer question for name.
func NewAxfrQuery(name string) *dns.Msg {
	m := new(dns.Msg)
	m.SetAxfr(dns.Fqdn(name))
	return m
}

// NewIxfrQuery builds an incremental zone transfer question for name with the
// client's current serial carried in the authority-section SOA.
func NewIxfrQuery(name string, serial uint32) *dns.Msg {
	m := new(dns.Msg)
	m.SetIxfr(dns.Fqdn(name), serial, ".", ".")
	return m
}

// RequestMulti dispatches a query whose response is a sequence of messages.
// Only stream transports can carry one: a registry containing a UDP or
// UDP+TCP server is rejected before any network traffic. Failover across
// servers works as for Request.
func (c *Client) RequestMulti(ctx context.Context, m *dns.Msg) (*Stream, error) {
	if len(c.servers) == 0 {
		return nil, ErrNoServers
	}
	for i := range c.servers {
		if !c.servers[i].Transport.streamCapable() {
			return nil, ErrStreamTransport
		}
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
		stream, err := c.requestMultiServer(ctx, m.Copy(), srv)
		if err == nil {
			return stream, nil
		}
		log.Debugf("transfer from server %s over %s failed: %v", srv, srv.Transport, err)
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) requestMultiServer(ctx context.Context, m *dns.Msg, srv *Server) (*Stream, error) {
	proto := TCPProtocol
	if srv.Transport == TransportTLS {
		if srv.TLSHostname == "" {
			return nil, ErrMissingTLSHostname
		}
		proto = TLSProtocol
	}
	stats := newStats(srv.String(), proto)

	conn, err := c.dialStream(ctx, srv, &stats)
	if err != nil {
		return nil, err
	}
	tr := &dns.Transfer{
		Conn:         conn,
		ReadTimeout:  srv.Timeout,
		WriteTimeout: srv.Timeout,
	}
	// Transfer.In spawns the per-connection reader; it owns the socket until
	// the stream completes.
	env, err := tr.In(m, srv.String())
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			log.Debugf("error closing transfer connection to %s: %v", srv, cerr)
		}
		return nil, errors.Wrapf(err, "could not start zone transfer from %s", srv)
	}
	return &Stream{env: env, stats: stats}, nil
}

func (c *Client) dialStream(ctx context.Context, srv *Server, stats *Stats) (*dns.Conn, error) {
	if srv.Transport == TransportTLS {
		tlsConn, err := dialTLS(ctx, srv, c.rootCAs, stats)
		if err != nil {
			return nil, err
		}
		return &dns.Conn{Conn: tlsConn}, nil
	}
	client := &dns.Client{Net: "tcp", Timeout: srv.Timeout}
	conn, err := client.DialContext(ctx, srv.String())
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to %s", srv)
	}
	return conn, nil
}
