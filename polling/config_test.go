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

package polling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepRecoveryConfig_DetectSleep(t *testing.T) {
	t.Parallel()

	cfg := DefaultSleepRecoveryConfig()
	poll := 10 * time.Millisecond

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "on time", elapsed: poll, want: false},
		{name: "late but awake", elapsed: time.Second, want: false},
		{name: "exactly at threshold", elapsed: poll + 2*time.Second, want: false},
		{name: "slept", elapsed: 30 * time.Second, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cfg.DetectSleep(tt.elapsed, poll))
		})
	}
}

func TestSleepRecoveryConfig_DetectSleepDisabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultSleepRecoveryConfig()
	cfg.Enabled = false
	assert.False(t, cfg.DetectSleep(time.Hour, 10*time.Millisecond))
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	assert.Equal(t, 10*time.Millisecond, config.PollInterval)
	assert.True(t, config.ConfigureOnStart)
	assert.Positive(t, config.CommandTimeout)
	assert.Positive(t, config.CommandQueue)
	assert.True(t, config.SleepRecovery.Enabled)
}

func TestLoopState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "configuring", StateConfiguring.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "recovering", StateRecovering.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", LoopState(42).String())
}
