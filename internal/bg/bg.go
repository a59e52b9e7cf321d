// Package bg runs fire-and-forget work, such as the profile writes on the read path.
//
// Services take a Runner instead of writing "go func()" themselves, so tests can
// pass Sync and observe the write before asserting.
package bg

// Runner executes fn, either inline or on its own goroutine.
type Runner interface {
	Do(fn func())
}
