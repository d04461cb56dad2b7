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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionClock = "15:04:05.000"

// The open session log, guarded by logMu.
var (
	sessionLogFile   *os.File
	sessionLogWriter io.Writer
	sessionLogPath   string
	sessionID        string
)

// InitSessionLog opens a fresh session log in dir (the working directory
// when empty) and returns its path. Every debug line from then on is
// appended with a timestamp, whether or not debug mode is on.
func InitSessionLog(dir string) (string, error) {
	id := uuid.NewString()
	name := fmt.Sprintf("accurate_%s_%s.log", time.Now().Format("20060102_150405"), id[:8])
	path := filepath.Join(dir, name)

	f, err := os.Create(path) //nolint:gosec // name is generated here
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	logMu.Lock()
	defer logMu.Unlock()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile, sessionLogWriter = f, f
	sessionLogPath, sessionID = path, id

	_, _ = io.WriteString(f, sessionHeader(id))
	return path, nil
}

// CloseSessionLog writes the footer and closes the session log. It is a
// no-op when no log is open.
func CloseSessionLog() error {
	logMu.Lock()
	defer logMu.Unlock()
	if sessionLogFile == nil {
		return nil
	}

	_, _ = fmt.Fprintf(sessionLogWriter, "\n%s === Session ended ===\n", time.Now().Format(sessionClock))
	err := sessionLogFile.Close()
	sessionLogFile, sessionLogWriter = nil, nil
	sessionLogPath, sessionID = "", ""
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log path, or "".
func GetSessionLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	return sessionLogPath
}

// GetSessionID returns the identifier of the open session, or "". Capture
// files carry it so a recording can be matched to its log.
func GetSessionID() string {
	logMu.Lock()
	defer logMu.Unlock()
	return sessionID
}

func sessionHeader(id string) string {
	fields := [][2]string{
		{"Session", id},
		{"Started", time.Now().Format(time.RFC3339)},
		{"PID", strconv.Itoa(os.Getpid())},
		{"OS", runtime.GOOS + "/" + runtime.GOARCH},
		{"Go Version", runtime.Version()},
	}
	if exe, err := os.Executable(); err == nil {
		fields = append(fields, [2]string{"Executable", exe})
	}
	fields = append(fields, [2]string{"Command Line", strings.Join(os.Args, " ")})

	var b strings.Builder
	b.WriteString("=== ACCURATE Session Log ===\n")
	for _, f := range fields {
		b.WriteString(f[0] + ": " + f[1] + "\n")
	}
	b.WriteString(strings.Repeat("=", 28) + "\n\n")
	return b.String()
}
