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
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// Action classifies one row of an answer diff.
type Action int

const (
	ActionUnchanged Action = iota
	ActionRemoved
	ActionAdded
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "+ "
	case ActionRemoved:
		return "- "
	default:
		return "  "
	}
}

// recordKey identifies a record for comparison purposes. The TTL is
// deliberately excluded: TTL-only differences do not count as a difference.
// The key is built from rendered text rather than the decoded record types so
// comparison never depends on their equality semantics.
type recordKey struct {
	Owner string
	Class string
	Type  string
	Data  string
}

func (k recordKey) less(o recordKey) bool {
	if k.Owner != o.Owner {
		return k.Owner < o.Owner
	}
	if k.Class != o.Class {
		return k.Class < o.Class
	}
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	return k.Data < o.Data
}

// DiffItem is one classified row of an answer diff.
type DiffItem struct {
	Action Action `json:"action" groups:"normal,long"`
	Owner  string `json:"owner" groups:"normal,long"`
	Class  string `json:"class" groups:"normal,long"`
	Type   string `json:"type" groups:"normal,long"`
	Data   string `json:"data" groups:"normal,long"`
}

func (d DiffItem) String() string {
	return fmt.Sprintf("%s%s %s %s %s", d.Action, d.Owner, d.Class, d.Type, d.Data)
}

func (d DiffItem) key() recordKey {
	return recordKey{Owner: d.Owner, Class: d.Class, Type: d.Type, Data: d.Data}
}

// Diff compares the answer sections of two messages as sets of
// (owner, class, data) records. It returns nil when the two sides are
// set-equal; otherwise every record of both sides is returned, classified and
// sorted by owner, class and data, with rows interleaved by sort key rather
// than grouped by action.
func Diff(left, right *dns.Msg) []DiffItem {
	leftSet := answerSet(left)
	rightSet := answerSet(right)

	diff := make([]DiffItem, 0, len(leftSet)+len(rightSet))
	changed := false
	for key := range leftSet {
		if _, ok := rightSet[key]; ok {
			diff = append(diff, newDiffItem(ActionUnchanged, key))
		} else {
			diff = append(diff, newDiffItem(ActionRemoved, key))
			changed = true
		}
	}
	for key := range rightSet {
		if _, ok := leftSet[key]; !ok {
			diff = append(diff, newDiffItem(ActionAdded, key))
			changed = true
		}
	}
	if !changed {
		return nil
	}
	sort.Slice(diff, func(i, j int) bool {
		return diff[i].key().less(diff[j].key())
	})
	return diff
}

func newDiffItem(action Action, key recordKey) DiffItem {
	return DiffItem{Action: action, Owner: key.Owner, Class: key.Class, Type: key.Type, Data: key.Data}
}

// answerSet collects the comparison keys of a message's answer section. A nil
// message or an absent section yields an empty set, and individual records
// that do not render are dropped rather than failing the comparison.
func answerSet(m *dns.Msg) map[recordKey]struct{} {
	set := make(map[recordKey]struct{})
	if m == nil {
		return set
	}
	for _, rr := range m.Answer {
		h := rr.Header()
		data, ok := rdataText(rr)
		if !ok {
			continue
		}
		set[recordKey{
			Owner: strings.ToLower(h.Name),
			Class: dns.Class(h.Class).String(),
			Type:  dns.Type(h.Rrtype).String(),
			Data:  data,
		}] = struct{}{}
	}
	return set
}

// rdataText renders a record's data portion. The presentation format is
// "owner\tttl\tclass\ttype\trdata"; everything after the fourth tab is the
// data.
func rdataText(rr dns.RR) (string, bool) {
	parts := strings.SplitN(rr.String(), "\t", 5)
	if len(parts) < 5 {
		return "", false
	}
	return parts[4], true
}
