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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ZaparooProject/go-accurate/capture"
	"github.com/chzyer/readline"
)

// shell reads command lines and runs them through the control loop.
type shell struct {
	rl       *readline.Instance
	out      io.Writer
	exec     func(ctx context.Context, line string) (string, error)
	recorder *capture.Recorder
}

func newShell() (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "accurate> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that does not clobber the prompt.
func (s *shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads lines until EOF, "exit" or ctx ends, then cancels.
func (s *shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer func() { _ = s.rl.Close() }()
	_, _ = fmt.Fprintln(s.out, "Type HELP? for the command tree, exit to quit")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			_, _ = fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if s.handleLine(ctx, line) {
			cancel()
			return
		}
	}
}

// handleLine runs one line and reports whether the shell should quit.
func (s *shell) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch strings.ToLower(input) {
	case "":
		return false
	case "exit", "quit":
		_, _ = fmt.Fprintln(s.out, "Exiting...")
		return true
	}

	reply, err := s.exec(ctx, input)
	if s.recorder != nil {
		_ = s.recorder.RecordCommand(input, reply, err)
	}
	switch {
	case reply != "":
		_, _ = fmt.Fprintln(s.out, reply)
	case err != nil:
		_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
	default:
		_, _ = fmt.Fprintln(s.out, "OK")
	}
	return false
}
