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
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-accurate/internal/syncutil"
)

// Recoverer brings the device back after it was lost or the host slept.
// On success the loop continues with Instrument(), which may be a new one.
type Recoverer interface {
	AttemptRecovery(ctx context.Context) error
	Instrument() Instrument
}

// ReopenFunc opens a fresh instrument, typically on a re-enumerated
// serial port.
type ReopenFunc func(ctx context.Context) (Instrument, error)

// ReconnectRecoverer first pushes the register table again over the
// existing connection. If that fails and a ReopenFunc is set, it closes the
// instrument and configures a freshly opened one instead.
type ReconnectRecoverer struct {
	inst        Instrument
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewReconnectRecoverer makes up to maxAttempts rounds (default 3), backoff
// apart (default 500ms). A nil reopenFunc limits it to reconfiguration.
func NewReconnectRecoverer(
	inst Instrument,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *ReconnectRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &ReconnectRecoverer{
		inst:        inst,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery returns the error of the last failed round.
func (r *ReconnectRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error

	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		// The port may have survived, as after a brief front-end reset.
		err := r.inst.Configure(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if r.reopenFunc == nil {
			continue
		}
		if lastErr = r.reopen(ctx); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// reopen drops the current instrument and configures a new one. A failed
// reopen keeps the old instrument so the next round can retry it.
func (r *ReconnectRecoverer) reopen(ctx context.Context) error {
	_ = r.inst.Close()
	fresh, err := r.reopenFunc(ctx)
	if err != nil {
		return fmt.Errorf("reopen: %w", err)
	}
	r.inst = fresh
	if err := fresh.Configure(ctx); err != nil {
		return fmt.Errorf("configure after reopen: %w", err)
	}
	return nil
}

// Instrument returns the instrument recovery last left in use.
func (r *ReconnectRecoverer) Instrument() Instrument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inst
}
