//go:build deadlock

// Package syncutil provides the mutex types shared by the receive buffer and
// the control loop. This file is compiled when building with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}

// DetectionEnabled reports whether lock ordering and hold times are checked.
const DetectionEnabled = true

// SetLockTimeout sets how long a lock may be waited on before the detector
// reports a potential deadlock. Zero disables the timeout check.
func SetLockTimeout(timeout time.Duration) {
	deadlock.Opts.DeadlockTimeout = timeout
}
