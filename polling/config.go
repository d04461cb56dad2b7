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
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
)

// SleepRecoveryConfig detects host suspend from gaps between ticks. A
// USB-serial bridge is often re-enumerated on wake and the front-end may
// have been power cycled, so the loop hands over to its Recoverer.
type SleepRecoveryConfig struct {
	// WakeThreshold is how far past the poll interval a tick may arrive
	// before the gap counts as a suspend
	WakeThreshold time.Duration
	Enabled       bool
}

// DefaultSleepRecoveryConfig treats a tick more than two seconds late as a
// wake from suspend.
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{Enabled: true, WakeThreshold: 2 * time.Second}
}

// DetectSleep reports whether elapsed, the time since the previous tick,
// exceeds pollInterval by more than WakeThreshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	return cfg.Enabled && elapsed > pollInterval+cfg.WakeThreshold
}

// Config holds control loop options.
type Config struct {
	// PollInterval is the time between decode passes
	PollInterval time.Duration
	// CommandTimeout bounds one host command, including its register push
	CommandTimeout time.Duration
	// CommandQueue is the number of host commands that may wait for the loop
	CommandQueue int
	// ConfigureOnStart pushes the whole register table before the first tick
	ConfigureOnStart bool
	SleepRecovery    SleepRecoveryConfig
}

// DefaultConfig polls every 10ms and configures the device on start.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     accurate.DefaultPollInterval,
		CommandTimeout:   2 * time.Second,
		CommandQueue:     8,
		ConfigureOnStart: true,
		SleepRecovery:    DefaultSleepRecoveryConfig(),
	}
}
