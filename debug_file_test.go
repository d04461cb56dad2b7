// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package accurate

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanupSessionLog ensures session log state is clean after tests.
func cleanupSessionLog(t *testing.T) {
	t.Helper()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	sessionID = ""
}

//nolint:paralleltest // mutates package-level session log state
func TestInitSessionLog_CreatesFileInDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { cleanupSessionLog(t) })

	path, err := InitSessionLog(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	_, err = os.Stat(path)
	require.NoError(t, err, "log file should exist")

	matched, err := regexp.MatchString(`^accurate_\d{8}_\d{6}_[0-9a-f]{8}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected log file name %s", path)
	assert.Equal(t, path, GetSessionLogPath())

	_, err = uuid.Parse(GetSessionID())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(GetSessionID(), filepath.Base(path)[25:33]))
}

//nolint:paralleltest // mutates package-level session log state
func TestSessionLog_HeaderBodyFooter(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { cleanupSessionLog(t) })

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	id := GetSessionID()

	Debugf("configured %d registers", 32)
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	text := string(content)

	assert.True(t, strings.HasPrefix(text, "=== ACCURATE Session Log ==="))
	assert.Contains(t, text, "Session: "+id)
	for _, field := range []string{"Started:", "PID:", "OS:", "Go Version:", "Command Line:"} {
		assert.Contains(t, text, field)
	}
	assert.Contains(t, text, "DEBUG: configured 32 registers")
	assert.Contains(t, text, "=== Session ended ===")

	assert.Empty(t, GetSessionLogPath())
	assert.Empty(t, GetSessionID())
	assert.Nil(t, sessionLogWriter)
}

//nolint:paralleltest // mutates package-level session log state
func TestCloseSessionLog_NoFile(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })
	cleanupSessionLog(t)

	assert.NoError(t, CloseSessionLog())
}

//nolint:paralleltest // mutates package-level session log state
func TestInitSessionLog_MissingDirectory(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "does", "not", "exist"))
	require.Error(t, err)
	assert.Empty(t, GetSessionLogPath())
}

//nolint:paralleltest // mutates package-level session log state
func TestSessionLog_MultipleCycles(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { cleanupSessionLog(t) })

	ids := make(map[string]bool)
	for range 3 {
		_, err := InitSessionLog(dir)
		require.NoError(t, err)
		ids[GetSessionID()] = true
		require.NoError(t, CloseSessionLog())
	}
	assert.Len(t, ids, 3, "every session gets its own identifier")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
