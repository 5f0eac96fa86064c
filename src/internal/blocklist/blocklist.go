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

// Package blocklist wraps an IP tree in a lock so concurrent dispatchers can
// check which nameserver addresses the operator has excluded from querying.
package blocklist

import (
	"sync"

	"github.com/zmap/go-iptree/blacklist"
)

type Blocklist struct {
	tree *blacklist.Blacklist
	mu   sync.RWMutex
}

func New() *Blocklist {
	return &Blocklist{tree: blacklist.New()}
}

// FromFile loads a blocklist of CIDR entries, one per line.
func FromFile(path string) (*Blocklist, error) {
	b := New()
	if err := b.tree.ParseFromFile(path); err != nil {
		return nil, err
	}
	return b, nil
}

// Add inserts a CIDR entry.
func (b *Blocklist) Add(cidr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.AddEntry(cidr)
}

// Contains reports whether ip falls inside any blocked range.
func (b *Blocklist) Contains(ip string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.IsBlacklisted(ip)
}
