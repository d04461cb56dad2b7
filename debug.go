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
	"strings"
	"time"

	"github.com/ZaparooProject/go-accurate/internal/syncutil"
)

var (
	// debugEnabled mirrors debug lines to debugOutput
	debugEnabled           = os.Getenv("ACCURATE_DEBUG") != "" || os.Getenv("DEBUG") != ""
	debugOutput  io.Writer = os.Stdout
	logMu        syncutil.Mutex
)

// Debugf logs a formatted debug line. The line always goes to the session
// log when one is open; the console only sees it in debug mode.
func Debugf(format string, args ...any) {
	emit("DEBUG", fmt.Sprintf(format, args...))
}

// Debugln logs its operands like fmt.Sprint.
func Debugln(args ...any) {
	emit("DEBUG", fmt.Sprint(args...))
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	debugEnabled = enabled
	logMu.Unlock()
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return debugEnabled
}

func emit(level, message string) {
	message = strings.TrimRight(message, "\n")

	logMu.Lock()
	defer logMu.Unlock()
	if sessionLogWriter != nil {
		_, _ = fmt.Fprintf(sessionLogWriter, "%s %s: %s\n", time.Now().Format(sessionClock), level, message)
	}
	if debugEnabled && debugOutput != nil {
		_, _ = fmt.Fprintf(debugOutput, "%s: %s\n", level, message)
	}
}
