package bg_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/hydrate/internal/bg"
)

func TestAsync_WaitBlocksUntilDone(t *testing.T) {
	var a bg.Async
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		a.Do(func() {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
		})
	}
	a.Wait()

	if got := count.Load(); got != 5 {
		t.Errorf("count = %d after Wait, want 5", got)
	}
}

func TestAsync_DoDoesNotBlock(t *testing.T) {
	var a bg.Async
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		a.Do(func() { <-release })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Async.Do blocked on the function")
	}
	close(release)
	a.Wait()
}

func TestSync_RunsInline(t *testing.T) {
	ran := false
	bg.Sync{}.Do(func() { ran = true })
	if !ran {
		t.Error("Sync.Do returned before running fn")
	}
}
