package bg

import "sync"

// Async runs every fn on a new goroutine. Wait blocks until all of them have
// returned; the server calls it during shutdown before closing the store.
type Async struct {
	wg sync.WaitGroup
}

func (a *Async) Do(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *Async) Wait() {
	a.wg.Wait()
}
