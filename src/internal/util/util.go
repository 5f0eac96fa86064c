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

package util

import (
	"context"
	"net"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var domainRegex = regexp.MustCompile(`^(?i)[a-z0-9_]([a-z0-9-_]{0,61}[a-z0-9_])?(\.[a-z0-9_]([a-z0-9-_]{0,61}[a-z0-9_])?)*\.?$`)

// SplitHostPort splits an address of the form "host:port" and validates the
// host as an IP address.
func SplitHostPort(inAddr string) (net.IP, int, error) {
	host, port, err := net.SplitHostPort(inAddr)
	if err != nil {
		return nil, 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, errors.Errorf("invalid IP address: %s", host)
	}
	portInt, err := strconv.Atoi(port)
	if err != nil {
		return nil, 0, errors.Wrap(err, "invalid port")
	}
	return ip, portInt, nil
}

// AddDefaultPortToDNSServerName appends the standard DNS port to an IP
// address that does not already carry one.
func AddDefaultPortToDNSServerName(inAddr string) (string, error) {
	host, port, err := net.SplitHostPort(inAddr)
	if err != nil {
		// might mean there's no port specified
		host = inAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", errors.New("invalid IP address")
	}
	if port == "" {
		port = "53"
	}
	return net.JoinHostPort(ip.String(), port), nil
}

// IsStringValidDomainName checks whether the given string looks like a domain
// name.
func IsStringValidDomainName(domain string) bool {
	return domain != "" && domain != "." && domainRegex.MatchString(domain)
}

// HasCtxExpired checks if the context has expired.
func HasCtxExpired(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
