//go:build !deadlock

// Package syncutil provides the mutex types shared by the receive buffer and
// the control loop. By default the standard library locks are used.
// Build with -tags=deadlock to enable detection via github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}

// DetectionEnabled reports whether lock ordering and hold times are checked.
const DetectionEnabled = false

// SetLockTimeout is a no-op without the deadlock build tag.
func SetLockTimeout(time.Duration) {}
