package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/notify"
	"github.com/sakif/hydrate/internal/reminder"
)

type sseEvent struct {
	name string
	data string
}

// readEvent returns the next named event, skipping keep-alive comments.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			return ev
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, userID, permission string) (*bufio.Reader, handler.SessionEvent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/reminders/stream?permission="+permission, nil)
	require.NoError(t, err)
	req.Header.Set(testUserHeader, userID)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first := readEvent(t, r)
	require.Equal(t, "session", first.name)
	var sess handler.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(first.data), &sess))
	return r, sess
}

func TestReminderStream_OverdueFiresImmediately(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	rr := h.do(t, http.MethodPatch, "/api/profile", "u1", map[string]any{"remindersEnabled": true, "reminderHours": 2})
	require.Equal(t, http.StatusOK, rr.Code)

	r, sess := openStream(t, srv, "u1", "granted")
	assert.True(t, sess.Enabled)
	assert.Equal(t, 2.0, sess.Hours)
	assert.Equal(t, notify.PermissionGranted, sess.Permission)

	ev := readEvent(t, r)
	require.Equal(t, "reminder", ev.name)
	var n notify.Notification
	require.NoError(t, json.Unmarshal([]byte(ev.data), &n))
	assert.Equal(t, reminder.Title, n.Title)
	assert.Equal(t, "It's been over 2 hours. Time to log some water!", n.Body)
}

func TestReminderStream_Heartbeat(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	// Reminders stay off by default, so nothing fires.
	_, sess := openStream(t, srv, "u1", "default")
	assert.False(t, sess.Enabled)

	s, ok := h.sched.Lookup(sess.ID)
	require.True(t, ok)
	assert.False(t, s.Pending())

	path := "/api/reminders/" + sess.ID.String() + "/heartbeat"

	rr := h.do(t, http.MethodPost, path, "u1", map[string]string{"permission": "granted"})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodPost, path, "someone-else", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/reminders/not-a-uuid/heartbeat", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, path, "u1", map[string]string{"permission": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReminderStream_ClosesSessionOnDisconnect(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/reminders/stream", nil)
	require.NoError(t, err)
	req.Header.Set(testUserHeader, "u1")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	first := readEvent(t, bufio.NewReader(resp.Body))
	var sess handler.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(first.data), &sess))

	cancel()

	assert.Eventually(t, func() bool {
		_, ok := h.sched.Lookup(sess.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReminderStream_RejectsBadPermission(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/reminders/stream?permission=yes-please", "u1", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
