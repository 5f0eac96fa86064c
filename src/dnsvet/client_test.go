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
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/dnsvet/dnsvet/src/internal/blocklist"
)

type exchCall struct {
	server string
	proto  Protocol
}

// mockExchanger replaces the wire exchanger in tests. The handler decides the
// outcome per attempt; every attempt is recorded in order.
type mockExchanger struct {
	mu      sync.Mutex
	calls   []exchCall
	handler func(m *dns.Msg, srv *Server, proto Protocol) (*dns.Msg, error)
}

func (e *mockExchanger) Exchange(_ context.Context, m *dns.Msg, srv *Server, proto Protocol, _ *Stats) (*dns.Msg, error) {
	e.mu.Lock()
	e.calls = append(e.calls, exchCall{server: srv.String(), proto: proto})
	e.mu.Unlock()
	return e.handler(m, srv, proto)
}

func (e *mockExchanger) recorded() []exchCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchCall, len(e.calls))
	copy(out, e.calls)
	return out
}

func testServer(ip string, tr Transport) Server {
	return Server{
		IP:             net.ParseIP(ip),
		Port:           DefaultDNSPort,
		Transport:      tr,
		Timeout:        time.Second,
		Retries:        0,
		UDPPayloadSize: 1232,
	}
}

func replyTo(m *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(m)
	return resp
}

func newTestClient(t *testing.T, exch Exchanger, servers ...Server) *Client {
	t.Helper()
	c, err := NewClient(&ClientConfig{Servers: servers, Exchanger: exch})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("empty server list", func(t *testing.T) {
		_, err := NewClient(&ClientConfig{})
		require.ErrorIs(t, err, ErrNoServers)
	})
	t.Run("invalid transport", func(t *testing.T) {
		srv := testServer("192.0.2.1", Transport(42))
		_, err := NewClient(&ClientConfig{Servers: []Server{srv}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid transport")
	})
	t.Run("server list is copied", func(t *testing.T) {
		servers := []Server{testServer("192.0.2.1", TransportUDP)}
		c, err := NewClient(&ClientConfig{Servers: servers})
		require.NoError(t, err)
		servers[0].IP = net.ParseIP("198.51.100.1")
		require.Equal(t, "192.0.2.1", c.Servers()[0].IP.String())
	})
}

func TestRequestOrderedFailover(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, srv *Server, _ Protocol) (*dns.Msg, error) {
		if srv.IP.String() != "192.0.2.3" {
			return nil, errors.Errorf("server %s unreachable", srv)
		}
		return replyTo(m), nil
	}}
	c := newTestClient(t, exch,
		testServer("192.0.2.1", TransportUDP),
		testServer("192.0.2.2", TransportUDP),
		testServer("192.0.2.3", TransportUDP),
	)

	ans, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.NoError(t, err)
	require.Equal(t, "192.0.2.3:53", ans.Stats().Server)

	calls := exch.recorded()
	require.Len(t, calls, 3)
	require.Equal(t, "192.0.2.1:53", calls[0].server)
	require.Equal(t, "192.0.2.2:53", calls[1].server)
	require.Equal(t, "192.0.2.3:53", calls[2].server)
}

func TestRequestFirstSuccessStopsDispatch(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		return replyTo(m), nil
	}}
	c := newTestClient(t, exch,
		testServer("192.0.2.1", TransportUDP),
		testServer("192.0.2.2", TransportUDP),
	)

	_, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.NoError(t, err)
	require.Len(t, exch.recorded(), 1)
}

func TestRequestReturnsLastError(t *testing.T) {
	exch := &mockExchanger{handler: func(_ *dns.Msg, srv *Server, _ Protocol) (*dns.Msg, error) {
		return nil, errors.Errorf("server %s unreachable", srv)
	}}
	c := newTestClient(t, exch,
		testServer("192.0.2.1", TransportUDP),
		testServer("192.0.2.2", TransportUDP),
	)

	_, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.Error(t, err)
	require.Contains(t, err.Error(), "192.0.2.2")
}

func TestRequestExpiredContext(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		return replyTo(m), nil
	}}
	c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDP))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Query(ctx, "example.com", dns.TypeA)
	require.Error(t, err)
	require.Empty(t, exch.recorded())
}

func TestRequestDoesNotMutateQuery(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		m.Question[0].Name = "mutated.example.com."
		return replyTo(m), nil
	}}
	c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDP))

	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeA)
	_, err := c.Request(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, "example.com.", m.Question[0].Name)
}

func TestUDPTCPTruncationRetry(t *testing.T) {
	t.Run("truncated answer redone over tcp", func(t *testing.T) {
		exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, proto Protocol) (*dns.Msg, error) {
			resp := replyTo(m)
			if proto == UDPProtocol {
				resp.Truncated = true
			}
			return resp, nil
		}}
		c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDPTCP))

		ans, err := c.Query(context.Background(), "example.com", dns.TypeTXT)
		require.NoError(t, err)
		require.False(t, ans.Msg().Truncated)
		require.Equal(t, TCPProtocol, ans.Stats().Protocol)

		calls := exch.recorded()
		require.Len(t, calls, 2)
		require.Equal(t, UDPProtocol, calls[0].proto)
		require.Equal(t, TCPProtocol, calls[1].proto)
	})

	t.Run("clean answer stays on udp", func(t *testing.T) {
		exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
			return replyTo(m), nil
		}}
		c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDPTCP))

		ans, err := c.Query(context.Background(), "example.com", dns.TypeA)
		require.NoError(t, err)
		require.Equal(t, UDPProtocol, ans.Stats().Protocol)
		require.Len(t, exch.recorded(), 1)
	})

	t.Run("tcp answer returned even if still truncated", func(t *testing.T) {
		exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
			resp := replyTo(m)
			resp.Truncated = true
			return resp, nil
		}}
		c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDPTCP))

		ans, err := c.Query(context.Background(), "example.com", dns.TypeTXT)
		require.NoError(t, err)
		require.True(t, ans.Msg().Truncated)
		require.Len(t, exch.recorded(), 2)
	})

	t.Run("udp failure fails the server", func(t *testing.T) {
		exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, proto Protocol) (*dns.Msg, error) {
			if proto == UDPProtocol {
				return nil, errors.New("udp timeout")
			}
			return replyTo(m), nil
		}}
		c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDPTCP))

		_, err := c.Query(context.Background(), "example.com", dns.TypeA)
		require.Error(t, err)
		require.Len(t, exch.recorded(), 1)
	})
}

func TestTLSRequiresHostname(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		return replyTo(m), nil
	}}
	srv := testServer("192.0.2.1", TransportTLS)
	srv.Port = DefaultDoTPort
	c := newTestClient(t, exch, srv)

	_, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.ErrorIs(t, err, ErrMissingTLSHostname)
	require.Empty(t, exch.recorded())
}

func TestTLSDispatch(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		return replyTo(m), nil
	}}
	srv := testServer("192.0.2.1", TransportTLS)
	srv.Port = DefaultDoTPort
	srv.TLSHostname = "dns.example.com"
	c := newTestClient(t, exch, srv)

	ans, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.NoError(t, err)
	require.Equal(t, TLSProtocol, ans.Stats().Protocol)
	require.Equal(t, "192.0.2.1:853", ans.Stats().Server)
}

func TestRequestSkipsBlocklistedServers(t *testing.T) {
	bl := blocklist.New()
	require.NoError(t, bl.Add("192.0.2.0/24"))

	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		return replyTo(m), nil
	}}
	c, err := NewClient(&ClientConfig{
		Servers: []Server{
			testServer("192.0.2.1", TransportUDP),
			testServer("198.51.100.1", TransportUDP),
		},
		Blocklist: bl,
		Exchanger: exch,
	})
	require.NoError(t, err)

	ans, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.NoError(t, err)
	require.Equal(t, "198.51.100.1:53", ans.Stats().Server)
	require.Len(t, exch.recorded(), 1)
}

func TestRequestAllServersBlocklisted(t *testing.T) {
	bl := blocklist.New()
	require.NoError(t, bl.Add("192.0.2.0/24"))

	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		return replyTo(m), nil
	}}
	c, err := NewClient(&ClientConfig{
		Servers:   []Server{testServer("192.0.2.1", TransportUDP)},
		Blocklist: bl,
		Exchanger: exch,
	})
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "example.com", dns.TypeA)
	require.Error(t, err)
	require.Contains(t, err.Error(), "blocklisted")
	require.Empty(t, exch.recorded())
}

func TestStatsFinalized(t *testing.T) {
	exch := &mockExchanger{handler: func(m *dns.Msg, _ *Server, _ Protocol) (*dns.Msg, error) {
		time.Sleep(time.Millisecond)
		return replyTo(m), nil
	}}
	c := newTestClient(t, exch, testServer("192.0.2.1", TransportUDP))

	ans, err := c.Query(context.Background(), "example.com", dns.TypeA)
	require.NoError(t, err)
	require.False(t, ans.Stats().Start.IsZero())
	require.Greater(t, ans.Stats().Duration, time.Duration(0))
	require.Equal(t, UDPProtocol, ans.Stats().Protocol)
}

func TestApplyUDPPayloadSize(t *testing.T) {
	t.Run("adds OPT record", func(t *testing.T) {
		m := new(dns.Msg)
		m.SetQuestion("example.com.", dns.TypeA)
		applyUDPPayloadSize(m, 4096)
		opt := m.IsEdns0()
		require.NotNil(t, opt)
		require.Equal(t, uint16(4096), opt.UDPSize())
	})
	t.Run("updates existing OPT record", func(t *testing.T) {
		m := new(dns.Msg)
		m.SetQuestion("example.com.", dns.TypeA)
		m.SetEdns0(512, true)
		applyUDPPayloadSize(m, 1232)
		opt := m.IsEdns0()
		require.NotNil(t, opt)
		require.Equal(t, uint16(1232), opt.UDPSize())
		require.True(t, opt.Do())
	})
	t.Run("zero size leaves the message alone", func(t *testing.T) {
		m := new(dns.Msg)
		m.SetQuestion("example.com.", dns.TypeA)
		applyUDPPayloadSize(m, 0)
		require.Nil(t, m.IsEdns0())
	})
}
