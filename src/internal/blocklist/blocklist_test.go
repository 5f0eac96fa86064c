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

package blocklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndContains(t *testing.T) {
	bl := New()
	require.NoError(t, bl.Add("192.0.2.0/24"))

	blocked, err := bl.Contains("192.0.2.7")
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = bl.Contains("198.51.100.1")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.conf")
	require.NoError(t, os.WriteFile(path, []byte("192.0.2.0/24\n10.0.0.0/8\n"), 0o644))

	bl, err := FromFile(path)
	require.NoError(t, err)

	blocked, err := bl.Contains("10.1.2.3")
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = bl.Contains("203.0.113.5")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
