package syncutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutexGuardsCounter(t *testing.T) {
	t.Parallel()
	SetLockTimeout(5 * time.Second)

	var mu Mutex
	counter := 0
	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for range 100 {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	for range 8 {
		<-done
	}
	assert.Equal(t, 800, counter)
}

func TestRWMutexAllowsConcurrentReaders(t *testing.T) {
	t.Parallel()

	var mu RWMutex
	mu.RLock()
	mu.RLock()
	mu.RUnlock()
	mu.RUnlock()
	mu.Lock()
	mu.Unlock()
}
