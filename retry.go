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
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig is an exponential backoff policy. Only errors for which
// IsRetryable is true are attempted again.
type RetryConfig struct {
	// MaxAttempts counts the first try; zero or less runs once with no policy
	MaxAttempts int
	// InitialBackoff is the wait after the first failure
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after every failure
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the wait at random
	Jitter float64
	// RetryTimeout bounds all attempts together; zero means no bound
	RetryTimeout time.Duration
}

// DefaultRetryConfig suits a single register push.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// ConfigurationRetryConfig is the policy used when pushing the full register
// set to the device at start-up.
func ConfigurationRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       ConfigurationRetries,
		InitialBackoff:    ConfigurationInitialBackoff,
		MaxBackoff:        ConfigurationMaxBackoff,
		BackoffMultiplier: ConfigurationBackoffMultiplier,
		Jitter:            ConfigurationJitter,
		RetryTimeout:      ConfigurationRetryTimeout,
	}
}

// RetryWithConfig calls op until it succeeds, fails with a non-retryable
// error or the policy runs out. A nil config uses DefaultRetryConfig.
//
// When ctx ends between attempts the last failure is returned, so callers
// see the device error rather than the cancellation.
func RetryWithConfig(ctx context.Context, config *RetryConfig, op func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return op()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	wait := config.InitialBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		lastErr = op()
		if lastErr == nil || !IsRetryable(lastErr) || attempt >= config.MaxAttempts {
			return lastErr
		}

		timer := time.NewTimer(calculateJitteredSleep(wait, config.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
		wait = calculateNextBackoff(wait, config)
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(backoff) * config.BackoffMultiplier)
	return min(next, config.MaxBackoff)
}

// calculateJitteredSleep returns base plus a random share of up to
// factor*base.
func calculateJitteredSleep(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	return base + time.Duration(rand.Float64()*factor*float64(base))
}
