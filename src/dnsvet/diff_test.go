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
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func msgWithAnswers(t *testing.T, rrs ...string) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	for _, s := range rrs {
		m.Answer = append(m.Answer, mustRR(t, s))
	}
	return m
}

func TestDiffEqualSets(t *testing.T) {
	left := msgWithAnswers(t,
		"example.com. 3600 IN A 93.184.216.34",
		"example.com. 3600 IN AAAA 2606:2800:220:1:248:1893:25c8:1946",
	)
	right := msgWithAnswers(t,
		"example.com. 3600 IN AAAA 2606:2800:220:1:248:1893:25c8:1946",
		"example.com. 3600 IN A 93.184.216.34",
	)
	require.Nil(t, Diff(left, right))
}

func TestDiffIgnoresTTL(t *testing.T) {
	left := msgWithAnswers(t, "example.com. 3600 IN A 93.184.216.34")
	right := msgWithAnswers(t, "example.com. 60 IN A 93.184.216.34")
	require.Nil(t, Diff(left, right))
}

func TestDiffIgnoresOwnerCase(t *testing.T) {
	left := msgWithAnswers(t, "EXAMPLE.com. 3600 IN A 93.184.216.34")
	right := msgWithAnswers(t, "example.com. 3600 IN A 93.184.216.34")
	require.Nil(t, Diff(left, right))
}

func TestDiffIgnoresDuplicates(t *testing.T) {
	left := msgWithAnswers(t,
		"example.com. 3600 IN A 93.184.216.34",
		"example.com. 3600 IN A 93.184.216.34",
	)
	right := msgWithAnswers(t, "example.com. 3600 IN A 93.184.216.34")
	require.Nil(t, Diff(left, right))
}

func TestDiffAddedRecord(t *testing.T) {
	left := msgWithAnswers(t, "example.com. 3600 IN A 93.184.216.34")
	right := msgWithAnswers(t,
		"example.com. 3600 IN A 93.184.216.34",
		"example.com. 3600 IN A 93.184.216.35",
	)

	diff := Diff(left, right)
	require.Len(t, diff, 2)
	require.Equal(t, ActionUnchanged, diff[0].Action)
	require.Equal(t, "93.184.216.34", diff[0].Data)
	require.Equal(t, ActionAdded, diff[1].Action)
	require.Equal(t, "93.184.216.35", diff[1].Data)
}

func TestDiffRemovedRecord(t *testing.T) {
	left := msgWithAnswers(t,
		"example.com. 3600 IN A 93.184.216.34",
		"example.com. 3600 IN A 93.184.216.35",
	)
	right := msgWithAnswers(t, "example.com. 3600 IN A 93.184.216.35")

	diff := Diff(left, right)
	require.Len(t, diff, 2)
	require.Equal(t, ActionRemoved, diff[0].Action)
	require.Equal(t, "93.184.216.34", diff[0].Data)
	require.Equal(t, ActionUnchanged, diff[1].Action)
	require.Equal(t, "93.184.216.35", diff[1].Data)
}

func TestDiffInterleavesBySortKey(t *testing.T) {
	left := msgWithAnswers(t,
		"a.example.com. 3600 IN A 192.0.2.1",
		"c.example.com. 3600 IN A 192.0.2.3",
	)
	right := msgWithAnswers(t,
		"b.example.com. 3600 IN A 192.0.2.2",
		"c.example.com. 3600 IN A 192.0.2.3",
	)

	diff := Diff(left, right)
	require.Len(t, diff, 3)
	require.Equal(t, ActionRemoved, diff[0].Action)
	require.Equal(t, "a.example.com.", diff[0].Owner)
	require.Equal(t, ActionAdded, diff[1].Action)
	require.Equal(t, "b.example.com.", diff[1].Owner)
	require.Equal(t, ActionUnchanged, diff[2].Action)
	require.Equal(t, "c.example.com.", diff[2].Owner)
}

func TestDiffEmptyMessages(t *testing.T) {
	t.Run("both nil", func(t *testing.T) {
		require.Nil(t, Diff(nil, nil))
	})
	t.Run("both empty", func(t *testing.T) {
		require.Nil(t, Diff(new(dns.Msg), new(dns.Msg)))
	})
	t.Run("nil against records", func(t *testing.T) {
		right := msgWithAnswers(t, "example.com. 3600 IN A 93.184.216.34")
		diff := Diff(nil, right)
		require.Len(t, diff, 1)
		require.Equal(t, ActionAdded, diff[0].Action)
	})
}

func TestDiffItemString(t *testing.T) {
	item := DiffItem{Action: ActionAdded, Owner: "example.com.", Class: "IN", Type: "A", Data: "93.184.216.35"}
	require.Equal(t, "+ example.com. IN A 93.184.216.35", item.String())

	item.Action = ActionUnchanged
	require.Equal(t, "  example.com. IN A 93.184.216.35", item.String())
}
