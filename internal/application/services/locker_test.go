package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocker_MutualExclusion(t *testing.T) {
	l := newKeyedLocker()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("hold-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	l := newKeyedLocker()

	unlockA := l.Lock("a")
	defer unlockA()

	// A different key must not block.
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestKeyedLocker_EntriesReleased(t *testing.T) {
	l := newKeyedLocker()

	unlock := l.Lock("a")
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}
