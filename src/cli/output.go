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
	"encoding/json"
	"fmt"
	"time"

	"github.com/liip/sheriff"
	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/dnsvet/dnsvet/src/dnsvet"
)

// queryResult is the JSON shape of a single query. Fields are filtered by the
// --result-verbosity group before marshaling.
type queryResult struct {
	Name         string              `json:"name" groups:"short,normal,long"`
	Type         string              `json:"type" groups:"short,normal,long"`
	Rcode        string              `json:"rcode" groups:"short,normal,long"`
	Answers      []string            `json:"answers" groups:"short,normal,long"`
	Authority    []string            `json:"authority,omitempty" groups:"normal,long"`
	Additional   []string            `json:"additional,omitempty" groups:"long"`
	Stats        dnsvet.Stats        `json:"stats" groups:"normal,long"`
	Verification *verificationResult `json:"verification,omitempty" groups:"short,normal,long"`
}

type verificationResult struct {
	Matches bool              `json:"matches" groups:"short,normal,long"`
	Diff    []dnsvet.DiffItem `json:"diff,omitempty" groups:"normal,long"`
}

type transferResult struct {
	Zone        string       `json:"zone" groups:"short,normal,long"`
	RecordCount int          `json:"record_count" groups:"short,normal,long"`
	Records     []string     `json:"records" groups:"normal,long"`
	Stats       dnsvet.Stats `json:"stats" groups:"normal,long"`
}

func printTextQuery(ans *dnsvet.Answer, ver *dnsvet.Verification, verified bool) {
	fmt.Println(ans.Msg().String())
	printTextFooter(ans.Stats())
	if !verified {
		return
	}
	if ver == nil {
		fmt.Println(";; Verification did not complete.")
		return
	}
	printTextVerification(ver)
}

func printTextFooter(stats dnsvet.Stats) {
	fmt.Printf(";; Query time: %v\n", stats.Duration)
	fmt.Printf(";; SERVER: %s (%s)\n", stats.Server, stats.Protocol)
	fmt.Printf(";; WHEN: %s\n", stats.Start.Format(time.RFC1123))
}

func printTextVerification(ver *dnsvet.Verification) {
	if ver.Matches() {
		fmt.Println(";; Authoritative answer matches.")
		return
	}
	fmt.Println(";; Authoritative answer does not match:")
	for _, item := range ver.Diff {
		fmt.Println(item.String())
	}
}

func printTextRecords(rrs []dns.RR) {
	for _, rr := range rrs {
		fmt.Println(rr.String())
	}
}

func printJSONQuery(opts *Options, q question, ans *dnsvet.Answer, ver *dnsvet.Verification) error {
	msg := ans.Msg()
	result := queryResult{
		Name:       q.name,
		Type:       dns.Type(q.qtype).String(),
		Rcode:      dns.RcodeToString[msg.Rcode],
		Answers:    renderSection(msg.Answer),
		Authority:  renderSection(msg.Ns),
		Additional: renderSection(msg.Extra),
		Stats:      ans.Stats(),
	}
	if ver != nil {
		result.Verification = &verificationResult{
			Matches: ver.Matches(),
			Diff:    ver.Diff,
		}
	}
	return printJSON(opts.ResultVerbosity, result)
}

func printJSONTransfer(opts *Options, zone string, records []dns.RR, stats dnsvet.Stats) error {
	return printJSON(opts.ResultVerbosity, transferResult{
		Zone:        zone,
		RecordCount: len(records),
		Records:     renderSection(records),
		Stats:       stats,
	})
}

// printJSON applies the verbosity group filter and writes the indented
// result to stdout.
func printJSON(verbosity string, result interface{}) error {
	data, err := sheriff.Marshal(&sheriff.Options{Groups: []string{verbosity}}, result)
	if err != nil {
		return errors.Wrap(err, "could not filter result for output")
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not marshal result")
	}
	fmt.Println(string(out))
	return nil
}

func renderSection(rrs []dns.RR) []string {
	if len(rrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, rr.String())
	}
	return out
}
