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
	"fmt"
	"io"
	"os"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/capture"
	"github.com/ZaparooProject/go-accurate/polling"
)

// console prints decoded frames and feeds the measurement log and the
// capture recorder. It runs on the control loop goroutine.
type console struct {
	out      io.Writer
	mlog     *accurate.MeasurementLog
	recorder *capture.Recorder
	average  accurate.RunningAverage
	quiet    bool
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) openMeasurementLog(path string, verbose bool) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // operator-chosen log file
	if err != nil {
		return nil, fmt.Errorf("open measurement log: %w", err)
	}
	mlog, err := accurate.NewMeasurementLog(f, verbose)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	c.mlog = mlog
	return func() { _ = f.Close() }, nil
}

func (c *console) callbacks() polling.Callbacks {
	return polling.Callbacks{
		OnFrame:         c.onFrame,
		OnDecodeFailure: c.onDecodeFailure,
		OnStateChange:   c.onStateChange,
	}
}

func (c *console) onFrame(f accurate.DecodedFrame) error {
	if c.recorder != nil {
		if err := c.recorder.RecordFrame(f); err != nil {
			return err
		}
	}

	if current, ok := f.Current(); ok {
		mean := c.average.Add(current)
		if c.mlog != nil {
			if err := c.mlog.Record(f); err != nil {
				return err
			}
		}
		if !c.quiet {
			_, _ = fmt.Fprintf(c.out, "Current: %s  Average: %s\n",
				accurate.FormatCurrent(current), accurate.FormatCurrent(mean))
		}
	}

	if env, ok := f.Env(); ok && !c.quiet {
		_, _ = fmt.Fprintf(c.out, "Temperature: %s  Humidity: %s\n", env.Temperature, env.Humidity)
	}
	return nil
}

func (*console) onDecodeFailure(err error) {
	accurate.Debugf("console: %v", err)
}

func (c *console) onStateChange(state polling.LoopState) {
	switch state {
	case polling.StateRecovering:
		_, _ = fmt.Fprintln(c.out, "Device lost, reconnecting...")
	case polling.StateFailed:
		_, _ = fmt.Fprintln(c.out, "Device lost")
	default:
		accurate.Debugf("console: loop %s", state)
	}
}

func (c *console) summary(m polling.Metrics) {
	_, _ = fmt.Fprintf(c.out, "%d frames, %d decode failures, %d commands, %d recoveries\n",
		m.Frames, m.DecodeFailures, m.Commands, m.Recoveries)
	if c.average.Count() > 0 {
		_, _ = fmt.Fprintf(c.out, "Average current over %d samples: %s\n",
			c.average.Count(), accurate.FormatCurrent(c.average.Mean()))
	}
}
