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

// Package cli is the command layer of dnsvet: flag parsing, server list
// construction and output rendering around the core query engine.
package cli

import (
	"os"

	log "github.com/sirupsen/logrus"
	flags "github.com/zmap/zflags"
)

// Options are the command line options. Positional arguments are the query
// name and, optionally, the query type.
type Options struct {
	Server      string `short:"s" long:"server" value-name:"ADDR_OR_HOST" description:"The server to send the query to. System servers used if missing"`
	Port        int    `short:"p" long:"port" description:"The port of the server to send the query to"`
	TCP         bool   `short:"t" long:"tcp" description:"Use only TCP"`
	UDP         bool   `short:"u" long:"udp" description:"Use only UDP"`
	TLS         bool   `long:"tls" description:"Use DNS over TLS"`
	TLSHostname string `long:"tls-hostname" description:"The name of the server for SNI and certificate verification"`
	IPv4        bool   `short:"4" long:"ipv4" description:"Use only IPv4 for communication"`
	IPv6        bool   `short:"6" long:"ipv6" description:"Use only IPv6 for communication"`

	Timeout        float64 `long:"timeout" value-name:"SECONDS" default:"5" description:"Timeout for a query"`
	Retries        int     `long:"retries" default:"2" description:"Number of retries over UDP"`
	UDPPayloadSize uint16  `long:"udp-payload-size" default:"1232" description:"Advertised UDP payload size"`

	NoRD     bool `long:"no-rd" description:"Do not set the Recursion Desired (RD) flag in the request"`
	CD       bool `long:"cd" description:"Set the Checking Disabled (CD) flag in the request"`
	AD       bool `long:"ad" description:"Set the Authentic Data (AD) flag in the request"`
	DNSSECOk bool `long:"do" description:"Set the DNSSEC OK (DO) flag in the EDNS OPT record of the request"`

	Verify bool   `long:"verify" description:"Verify the answer against the zone's authoritative servers"`
	AXFR   bool   `long:"axfr" description:"Request a full zone transfer instead of a regular query"`
	IXFR   string `long:"ixfr" value-name:"SERIAL" description:"Request an incremental zone transfer from SERIAL"`
	Force  bool   `short:"f" long:"force" description:"Disable all sanity checks"`

	JSON            bool   `long:"json" description:"Emit the result as JSON"`
	ResultVerbosity string `long:"result-verbosity" default:"normal" description:"Verbosity of the JSON result. Options: short, normal, long"`

	ConfigFile    string `long:"conf-file" default:"/etc/resolv.conf" description:"Config file for the system DNS servers"`
	BlocklistFile string `long:"blocklist-file" description:"File of CIDR ranges never to query"`
	Verbosity     int    `long:"verbosity" default:"3" description:"Log verbosity: 1 (lowest)--5 (highest)"`
}

var (
	parser *flags.Parser
	opts   Options
)

func init() {
	parser = flags.NewParser(&opts, flags.Default)
}

// Execute parses the command line and runs the query. Called by main.main().
func Execute() {
	posArgs, _, _, err := parser.ParseCommandLine(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}
	if err := Run(&opts, posArgs); err != nil {
		log.Fatal(err)
	}
}

func setLogLevel(verbosity int) {
	switch {
	case verbosity <= 1:
		log.SetLevel(log.ErrorLevel)
	case verbosity == 2:
		log.SetLevel(log.WarnLevel)
	case verbosity == 3:
		log.SetLevel(log.InfoLevel)
	case verbosity == 4:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.TraceLevel)
	}
}
