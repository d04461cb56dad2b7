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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestRetryConfig_Defaults(t *testing.T) {
	t.Parallel()

	for name, config := range map[string]*RetryConfig{
		"default":       DefaultRetryConfig(),
		"configuration": ConfigurationRetryConfig(),
	} {
		assert.Positive(t, config.MaxAttempts, name)
		assert.Greater(t, config.MaxBackoff, config.InitialBackoff, name)
		assert.Greater(t, config.BackoffMultiplier, 1.0, name)
		assert.GreaterOrEqual(t, config.Jitter, 0.0, name)
		assert.LessOrEqual(t, config.Jitter, 1.0, name)
		assert.Positive(t, config.RetryTimeout, name)
	}

	config := ConfigurationRetryConfig()
	assert.Equal(t, ConfigurationRetries, config.MaxAttempts)
	assert.Equal(t, ConfigurationInitialBackoff, config.InitialBackoff)
}

func TestCalculateNextBackoff(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 300 * time.Millisecond}

	tests := []struct {
		name    string
		current time.Duration
		want    time.Duration
	}{
		{name: "doubles", current: 100 * time.Millisecond, want: 200 * time.Millisecond},
		{name: "capped", current: 200 * time.Millisecond, want: 300 * time.Millisecond},
		{name: "already at cap", current: 300 * time.Millisecond, want: 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, calculateNextBackoff(tt.current, config))
		})
	}
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, calculateJitteredSleep(base, 0))

	for range 50 {
		sleep := calculateJitteredSleep(base, 0.5)
		assert.GreaterOrEqual(t, sleep, base)
		assert.Less(t, sleep, base+base/2)
	}
}

func TestRetryWithConfig_SucceedsAfterRetryableErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), quickRetry(3), func() error {
		calls++
		if calls < 3 {
			return NewTimeoutError("ReadExact", "test")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), quickRetry(5), func() error {
		calls++
		return &RegisterError{Name: "VBIAS1", Err: ErrOutOfRange}
	})

	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), quickRetry(4), func() error {
		calls++
		return &WriteError{Address: RegStream, Status: AckTimeout, Err: ErrAckTimeout}
	})

	require.ErrorIs(t, err, ErrAckTimeout)
	assert.Equal(t, 4, calls)
}

func TestRetryWithConfig_NoAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	sentinel := errors.New("once")
	err := RetryWithConfig(context.Background(), quickRetry(0), func() error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithConfig(ctx, quickRetry(3), func() error {
		calls++
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryWithConfig_CancelDuringBackoffReturnsLastError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	config := quickRetry(3)
	config.InitialBackoff = time.Second
	config.MaxBackoff = time.Second

	err := RetryWithConfig(ctx, config, func() error {
		cancel()
		return NewTimeoutError("Write", "test")
	})

	require.ErrorIs(t, err, ErrTransportTimeout)
}
