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

import "time"

// Start-up configuration retry constants control how the full register set
// is pushed when an instrument is first configured.
const (
	// ConfigurationRetries is the number of bulk push attempts.
	ConfigurationRetries = 3
	// ConfigurationInitialBackoff is the initial delay between attempts.
	ConfigurationInitialBackoff = 100 * time.Millisecond
	// ConfigurationMaxBackoff is the maximum delay between attempts.
	ConfigurationMaxBackoff = 1 * time.Second
	// ConfigurationBackoffMultiplier is the exponential backoff multiplier.
	ConfigurationBackoffMultiplier = 2.0
	// ConfigurationJitter is the random jitter factor (0.0-1.0).
	ConfigurationJitter = 0.1
	// ConfigurationRetryTimeout bounds all attempts together. A bulk push of
	// the default table with 200ms acknowledge waits fits several times over.
	ConfigurationRetryTimeout = 30 * time.Second
)

// Acknowledge timing for register writes.
const (
	// DefaultAckTimeout is how long a single write waits for its status byte.
	DefaultAckTimeout = 200 * time.Millisecond
	// DefaultAckPollInterval is how often the source is polled while waiting.
	DefaultAckPollInterval = 1 * time.Millisecond
)

// Serial link defaults.
const (
	// DefaultBaudRate matches the device UART.
	DefaultBaudRate = 115200
	// DefaultPollInterval is the decode drain period of the control loop.
	DefaultPollInterval = 10 * time.Millisecond
)
