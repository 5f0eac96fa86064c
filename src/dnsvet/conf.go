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
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultDNSPort uint16 = 53
	DefaultDoTPort uint16 = 853

	defaultTimeout        = 5 * time.Second
	defaultRetries        = 2
	defaultUDPPayloadSize = 1232

	// DefaultNameServerConfigFile is where the system resolver configuration
	// is read from when no path is given.
	DefaultNameServerConfigFile = "/etc/resolv.conf"
)

// DefaultExternalServers are well-known public resolvers used when the system
// resolver configuration cannot be read.
var DefaultExternalServers = []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1"}

// DefaultTimeout, DefaultRetries and DefaultUDPPayloadSize expose the
// built-in per-server knobs to the command layer.
const (
	DefaultTimeout        = defaultTimeout
	DefaultRetries        = defaultRetries
	DefaultUDPPayloadSize = uint16(defaultUDPPayloadSize)
)

// SystemServers loads the system default server list from a resolv.conf style
// file. Per-server timeout and attempt counts from the file are honored; the
// UDP payload size uses the built-in default. If the file cannot be read the
// well-known public resolvers are used instead.
func SystemServers(path string) ([]Server, error) {
	if path == "" {
		path = DefaultNameServerConfigFile
	}
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		log.Warnf("unable to parse resolver config %s, using defaults: %v", path, err)
		return fallbackServers(), nil
	}

	timeout := defaultTimeout
	if conf.Timeout > 0 {
		timeout = time.Duration(conf.Timeout) * time.Second
	}
	retries := defaultRetries
	if conf.Attempts > 0 {
		retries = conf.Attempts
	}
	port := DefaultDNSPort
	if p, perr := strconv.Atoi(conf.Port); perr == nil && p > 0 {
		port = uint16(p)
	}

	servers := make([]Server, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		ip := net.ParseIP(s)
		if ip == nil {
			log.Warnf("skipping unparseable nameserver %q from %s", s, path)
			continue
		}
		servers = append(servers, Server{
			IP:             ip,
			Port:           port,
			Transport:      TransportUDPTCP,
			Timeout:        timeout,
			Retries:        retries,
			UDPPayloadSize: defaultUDPPayloadSize,
		})
	}
	if len(servers) == 0 {
		log.Warnf("no usable nameservers in %s, using defaults", path)
		return fallbackServers(), nil
	}
	return servers, nil
}

func fallbackServers() []Server {
	servers := make([]Server, 0, len(DefaultExternalServers))
	for _, s := range DefaultExternalServers {
		servers = append(servers, Server{
			IP:             net.ParseIP(s),
			Port:           DefaultDNSPort,
			Transport:      TransportUDPTCP,
			Timeout:        defaultTimeout,
			Retries:        defaultRetries,
			UDPPayloadSize: defaultUDPPayloadSize,
		})
	}
	return servers
}
