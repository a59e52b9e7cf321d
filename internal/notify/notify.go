// Package notify delivers local notifications to one client session.
//
// The server cannot pop a notification on the user's device itself. Instead each
// open session gets a Stream that the SSE handler drains, and the client turns
// every event into a system notification, provided the user granted permission.
package notify

import (
	"errors"
	"fmt"
	"time"
)

// Permission mirrors the browser Notification.permission values.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// ParsePermission accepts the three known values. Empty means PermissionDefault.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionGranted, PermissionDenied, PermissionDefault:
		return p, nil
	case "":
		return PermissionDefault, nil
	default:
		return "", fmt.Errorf("notify: unknown permission %q", s)
	}
}

// Granted reports whether notifications may be shown.
func (p Permission) Granted() bool {
	return p == PermissionGranted
}

type Notification struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Sink shows a notification. Implementations must not block.
type Sink interface {
	Show(n Notification) error
}

var (
	ErrClosed = errors.New("notify: stream closed")
	ErrFull   = errors.New("notify: stream buffer full")
)
