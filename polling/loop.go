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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/internal/syncutil"
)

// Instrument is the part of *accurate.Instrument the loop drives.
type Instrument interface {
	Configure(ctx context.Context) error
	Poll(onFrame func(accurate.DecodedFrame), onFailure func(error)) (int, error)
	Execute(ctx context.Context, line string) (string, error)
	Close() error
}

// Callbacks receive loop events. They run on the loop goroutine and must
// not block.
type Callbacks struct {
	OnFrame         func(frame accurate.DecodedFrame) error
	OnDecodeFailure func(err error)
	OnStateChange   func(state LoopState)
}

// Metrics tracks operational metrics for a Loop
type Metrics struct {
	PollCycles      int64         // Total number of decode passes
	Frames          int64         // Frames delivered to OnFrame
	DecodeFailures  int64         // Misaligned, unrecognized or corrupt frames
	Commands        int64         // Host commands executed
	CallbackErrors  int64         // OnFrame errors and panics
	Recoveries      int64         // Successful recoveries
	SleepEvents     int64         // Host sleep/wake cycles detected
	LastPollLatency time.Duration // Duration of last decode pass
}

type commandRequest struct {
	ctx   context.Context //nolint:containedctx // carried to the loop goroutine
	reply chan commandResult
	line  string
}

type commandResult struct {
	err   error
	reply string
}

// Loop is the single cooperative control loop. One goroutine owns the
// instrument: it drains decoded frames on every tick and runs host
// commands between passes, so the register store is never shared.
type Loop struct {
	inst      Instrument
	recoverer Recoverer
	runErr    error
	config    *Config
	requests  chan commandRequest
	done      chan struct{}
	cancel    context.CancelFunc
	callbacks Callbacks
	wg        sync.WaitGroup
	mu        syncutil.Mutex
	// Atomic counters for metrics
	pollCycles      atomic.Int64
	frames          atomic.Int64
	decodeFailures  atomic.Int64
	commandCount    atomic.Int64
	callbackErrors  atomic.Int64
	recoveries      atomic.Int64
	sleepEvents     atomic.Int64
	lastPollLatency atomic.Int64 // in nanoseconds
	state           atomic.Int32
	running         atomic.Bool
}

// NewLoop creates a loop over inst. A nil config uses DefaultConfig.
func NewLoop(inst Instrument, config *Config, callbacks Callbacks) *Loop {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = accurate.DefaultPollInterval
	}
	queue := config.CommandQueue
	if queue < 0 {
		queue = 0
	}
	done := make(chan struct{})
	close(done)
	return &Loop{
		inst:      inst,
		config:    config,
		callbacks: callbacks,
		requests:  make(chan commandRequest, queue),
		done:      done,
	}
}

// SetRecoverer installs the strategy used when the device is lost. Without
// one, losing the device ends the loop. Call before Run or Start.
func (l *Loop) SetRecoverer(r Recoverer) {
	l.recoverer = r
}

// Run executes the loop on the calling goroutine until ctx is done or the
// device is lost beyond recovery.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("control loop already running")
	}
	return l.run(ctx, l.begin())
}

// Start runs the loop in a background goroutine. Use Stop to end it.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("control loop already running")
	}
	done := l.begin()
	runCtx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.cancel = cancel
	l.runErr = nil
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.run(runCtx, done); err != nil && !errors.Is(err, context.Canceled) {
			l.mu.Lock()
			l.runErr = err
			l.mu.Unlock()
		}
	}()
	return nil
}

// Stop cancels a loop started with Start, waits for it to exit and
// returns the error that ended it, if any.
func (l *Loop) Stop() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	return l.Err()
}

// Err returns the error that ended a background loop.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runErr
}

// Done is closed when the current run ends.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *Loop) begin() chan struct{} {
	done := make(chan struct{})
	l.mu.Lock()
	l.done = done
	l.mu.Unlock()
	return done
}

func (l *Loop) run(ctx context.Context, done chan struct{}) error {
	defer func() {
		l.running.Store(false)
		close(done)
	}()

	if l.config.ConfigureOnStart {
		l.setState(StateConfiguring)
		if err := l.inst.Configure(ctx); err != nil {
			l.setState(StateFailed)
			return fmt.Errorf("initial configuration: %w", err)
		}
	}
	l.setState(StateRunning)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()
	lastPoll := time.Now()

	for {
		select {
		case <-ctx.Done():
			l.setState(StateStopped)
			return ctx.Err()
		case req := <-l.requests:
			l.handleCommand(req)
		case now := <-ticker.C:
			elapsed := now.Sub(lastPoll)
			lastPoll = now
			if l.config.SleepRecovery.DetectSleep(elapsed, l.config.PollInterval) {
				if err := l.handleSleep(ctx, elapsed); err != nil {
					return err
				}
				continue
			}
			if err := l.pollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// Execute submits one host command line to the loop and waits for the
// reply.
func (l *Loop) Execute(ctx context.Context, line string) (string, error) {
	if !l.running.Load() {
		return "", ErrLoopStopped
	}
	done := l.Done()
	req := commandRequest{ctx: ctx, line: line, reply: make(chan commandResult, 1)}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-done:
		return "", ErrLoopStopped
	}

	select {
	case res := <-req.reply:
		return res.reply, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-done:
		return "", ErrLoopStopped
	}
}

func (l *Loop) handleCommand(req commandRequest) {
	ctx := req.ctx
	if l.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.CommandTimeout)
		defer cancel()
	}
	reply, err := l.inst.Execute(ctx, req.line)
	l.commandCount.Add(1)
	req.reply <- commandResult{reply: reply, err: err}
}

// pollOnce runs one decode pass. Only device loss is returned.
func (l *Loop) pollOnce(ctx context.Context) error {
	start := time.Now()
	_, err := l.inst.Poll(l.deliver, l.decodeFailed)
	l.pollCycles.Add(1)
	l.lastPollLatency.Store(time.Since(start).Nanoseconds())

	if err == nil {
		return nil
	}
	if !accurate.IsFatal(err) {
		accurate.Debugf("loop: poll error (continuing): %v", err)
		return nil
	}
	return l.recover(ctx, err)
}

func (l *Loop) handleSleep(ctx context.Context, elapsed time.Duration) error {
	l.sleepEvents.Add(1)
	accurate.Debugf("loop: %v since last poll, assuming host sleep", elapsed)
	if l.recoverer == nil {
		return nil
	}
	return l.recover(ctx, fmt.Errorf("host sleep of %v", elapsed))
}

func (l *Loop) recover(ctx context.Context, cause error) error {
	if l.recoverer == nil {
		l.setState(StateFailed)
		return fmt.Errorf("device lost: %w", cause)
	}

	l.setState(StateRecovering)
	accurate.Debugf("loop: recovering after: %v", cause)
	if err := l.recoverer.AttemptRecovery(ctx); err != nil {
		l.setState(StateFailed)
		return fmt.Errorf("recovery after %q failed: %w", cause.Error(), err)
	}
	l.inst = l.recoverer.Instrument()
	l.recoveries.Add(1)
	l.setState(StateRunning)
	return nil
}

func (l *Loop) deliver(frame accurate.DecodedFrame) {
	l.frames.Add(1)
	if l.callbacks.OnFrame == nil {
		return
	}
	if err := safeCallCallback(l.callbacks.OnFrame, frame); err != nil {
		l.callbackErrors.Add(1)
		accurate.Debugf("loop: %v", err)
	}
}

func (l *Loop) decodeFailed(err error) {
	l.decodeFailures.Add(1)
	if l.callbacks.OnDecodeFailure != nil {
		l.callbacks.OnDecodeFailure(err)
	}
}

// safeCallCallback executes a callback with panic recovery
func safeCallCallback(callback func(accurate.DecodedFrame) error, frame accurate.DecodedFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame callback panicked: %v", r)
		}
	}()
	if cbErr := callback(frame); cbErr != nil {
		return fmt.Errorf("frame callback failed: %w", cbErr)
	}
	return nil
}

func (l *Loop) setState(s LoopState) {
	if LoopState(l.state.Swap(int32(s))) == s {
		return
	}
	if l.callbacks.OnStateChange != nil {
		l.callbacks.OnStateChange(s)
	}
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// GetMetrics returns current operational metrics
func (l *Loop) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      l.pollCycles.Load(),
		Frames:          l.frames.Load(),
		DecodeFailures:  l.decodeFailures.Load(),
		Commands:        l.commandCount.Load(),
		CallbackErrors:  l.callbackErrors.Load(),
		Recoveries:      l.recoveries.Load(),
		SleepEvents:     l.sleepEvents.Load(),
		LastPollLatency: time.Duration(l.lastPollLatency.Load()),
	}
}
