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
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RunningAverage accumulates the mean current since it was last reset.
type RunningAverage struct {
	sum   float64
	count int
}

// Add folds in one sample and returns the new mean.
func (a *RunningAverage) Add(sample float64) float64 {
	a.sum += sample
	a.count++
	return a.Mean()
}

// Mean returns the current average, zero before any sample.
func (a *RunningAverage) Mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Count returns the number of samples folded in.
func (a *RunningAverage) Count() int {
	return a.count
}

// Reset discards all samples.
func (a *RunningAverage) Reset() {
	a.sum = 0
	a.count = 0
}

// MeasurementLog writes measurement frames as comma separated lines:
// timestamp, instantaneous current (fA), average current (fA) and, when
// verbose, the raw frame bytes in hex.
type MeasurementLog struct {
	w       io.Writer
	now     func() time.Time
	average RunningAverage
	verbose bool
}

// NewMeasurementLog writes the column header and start time to w.
func NewMeasurementLog(w io.Writer, verbose bool) (*MeasurementLog, error) {
	header := "Timestamp, Instantaneous current (fA), Average current (fA)"
	if verbose {
		header += ", Serial data"
	}
	start := time.Now()
	if _, err := fmt.Fprintf(w, "%s\nStart time: %s\n-----------------------------\n",
		header, start.Format("2006-01-02 15:04:05")); err != nil {
		return nil, fmt.Errorf("write measurement log header: %w", err)
	}
	return &MeasurementLog{w: w, verbose: verbose, now: time.Now}, nil
}

// Record logs one frame. Frames without a charge field are ignored.
func (l *MeasurementLog) Record(f DecodedFrame) error {
	current, ok := f.Current()
	if !ok {
		return nil
	}
	mean := l.average.Add(current)
	line := fmt.Sprintf("%s, %.2f, %.2f", l.now().Format("2006-01-02 15:04:05.000000"), current, mean)
	if l.verbose {
		line += ", " + hex.EncodeToString(f.Raw)
	}
	if _, err := fmt.Fprintln(l.w, line); err != nil {
		return fmt.Errorf("write measurement: %w", err)
	}
	return nil
}

// Average returns the running average of logged currents.
func (l *MeasurementLog) Average() *RunningAverage {
	return &l.average
}
