package bg

// Sync runs fn in the caller's goroutine.
type Sync struct{}

func (Sync) Do(fn func()) {
	fn()
}
