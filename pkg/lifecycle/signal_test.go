package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownSignalFires(t *testing.T) {
	t.Parallel()

	s := NewShutdownSignal()
	assert.False(t, s.Signaled())

	s.Signal()
	assert.True(t, s.Signaled())

	// Await returns immediately once fired
	done := make(chan struct{})
	go func() {
		s.Await()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Await blocked after Signal")
	}
}

func TestShutdownSignalWakesAllWaiters(t *testing.T) {
	t.Parallel()

	s := NewShutdownSignal()

	const waiters = 5
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			s.Await()
		}()
	}

	s.Signal()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke up")
	}
}

func TestShutdownSignalConcurrentCallers(t *testing.T) {
	t.Parallel()

	s := NewShutdownSignal()

	// Concurrent Signal calls must not panic on double close
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Signal()
		}()
	}
	wg.Wait()

	require.True(t, s.Signaled())
	s.Signal() // still a no-op
}

func TestShutdownSignalDoneSelectable(t *testing.T) {
	t.Parallel()

	s := NewShutdownSignal()

	select {
	case <-s.Done():
		t.Fatal("Done fired before Signal")
	default:
	}

	s.Signal()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not fired after Signal")
	}
}
