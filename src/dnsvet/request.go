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

import "github.com/miekg/dns"

// QueryFlags are the query-level header and EDNS flags a caller can set on a
// request.
type QueryFlags struct {
	RecursionDesired bool
	CheckingDisabled bool
	AuthenticData    bool
	DNSSECOk         bool
}

// NewQuery builds a wire-ready query for name and qtype with the given flags.
// The OPT record is only created when the DNSSEC OK bit is requested; the
// per-server payload size is advertised later by the UDP transport.
func NewQuery(name string, qtype uint16, flags QueryFlags) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = flags.RecursionDesired
	m.CheckingDisabled = flags.CheckingDisabled
	m.AuthenticatedData = flags.AuthenticData
	if flags.DNSSECOk {
		m.SetEdns0(defaultUDPPayloadSize, true)
	}
	return m
}
