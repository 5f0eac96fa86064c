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

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Verification is the outcome of checking a primary answer against the
// zone's own nameservers.
type Verification struct {
	// Answer is the response obtained from the authoritative servers.
	Answer *Answer

	// Diff is nil when the authoritative answer section and the primary one
	// are set-equal; otherwise it holds the classified, sorted difference.
	Diff []DiffItem
}

// Matches reports whether the two answers agreed.
func (v *Verification) Matches() bool { return v.Diff == nil }

// Verify re-asks the question in req at the nameservers discovered for its
// query name and diffs the authoritative answer section against the primary
// one. A verification failure never invalidates the primary answer the
// caller already holds; it is reported as an error alongside it.
func Verify(ctx context.Context, resolver *AuthResolver, req *dns.Msg, primary *Answer) (*Verification, error) {
	if len(req.Question) == 0 {
		return nil, errors.New("request carries no question to verify")
	}
	q := req.Question[0]

	servers, err := resolver.Resolve(ctx, q.Name)
	if err != nil {
		return nil, err
	}
	log.Debugf("verifying %s against %d authoritative servers", q.Name, len(servers))

	// The authoritative client inherits everything from the discovery client
	// except the registry itself.
	authClient, err := NewClient(&ClientConfig{
		Servers:   servers,
		Blocklist: resolver.client.blocklist,
		RootCAs:   resolver.client.rootCAs,
		Exchanger: resolver.client.exch,
	})
	if err != nil {
		return nil, err
	}
	authAnswer, err := authClient.Request(ctx, req.Copy())
	if err != nil {
		return nil, errors.Wrap(err, "authoritative dispatch failed")
	}
	return &Verification{
		Answer: authAnswer,
		Diff:   Diff(authAnswer.Msg(), primary.Msg()),
	}, nil
}
