package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/auth"
	"github.com/sakif/hydrate/internal/notify"
	"github.com/sakif/hydrate/internal/reminder"
)

// DefaultKeepAlive is how often an idle reminder stream sends a comment line.
// Each successful write also counts as a heartbeat for the session.
const DefaultKeepAlive = 20 * time.Second

// Sessions is what the reminder handler needs from the scheduler.
type Sessions interface {
	Open(ctx context.Context, userID string, settings reminder.Settings, perm notify.Permission, sink notify.Sink) *reminder.Session
	Lookup(id uuid.UUID) (*reminder.Session, bool)
}

// ReminderHandler streams reminder notifications to one client over
// Server-Sent Events. The reminder session lives exactly as long as the
// connection.
type ReminderHandler struct {
	sessions  Sessions
	profiles  Profiles
	locator   Locator
	keepAlive time.Duration
	logger    *slog.Logger
}

func NewReminderHandler(sessions Sessions, profiles Profiles, locator Locator, keepAlive time.Duration, logger *slog.Logger) *ReminderHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &ReminderHandler{
		sessions:  sessions,
		profiles:  profiles,
		locator:   locator,
		keepAlive: keepAlive,
		logger:    logger,
	}
}

// SessionEvent is the first event on a stream; the client needs the id for heartbeats.
type SessionEvent struct {
	ID         uuid.UUID         `json:"id"`
	Enabled    bool              `json:"enabled"`
	Hours      float64           `json:"hours"`
	Permission notify.Permission `json:"permission"`
}

// HandleStream opens a reminder session and streams its notifications.
//
// HTTP: GET /api/reminders/stream?permission=granted
//
// Events:
//
//	event: session   data: SessionEvent
//	event: reminder  data: notify.Notification
func (h *ReminderHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, loc, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}
	perm, err := notify.ParsePermission(r.URL.Query().Get("permission"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("permission", err.Error()))
		return
	}

	p, err := h.profiles.GetProfile(r.Context(), userID, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	settings := reminder.SettingsFrom(p)

	rc := http.NewResponseController(w)
	// The stream outlives the server's WriteTimeout; drop the deadline.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("reminder stream: cannot clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := notify.NewStream(notify.DefaultBuffer)
	defer stream.Close()
	sess := h.sessions.Open(r.Context(), userID, settings, perm, stream)
	defer sess.Close()

	if err := writeEvent(w, "session", SessionEvent{
		ID:         sess.ID,
		Enabled:    settings.Enabled,
		Hours:      settings.Hours,
		Permission: perm,
	}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("reminder stream: flush unsupported", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			// Reaped or closed by shutdown.
			return
		case n := <-stream.C():
			if err := writeEvent(w, "reminder", n); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			sess.Touch("")
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

type heartbeatRequest struct {
	Permission string `json:"permission,omitempty"`
}

// HandleHeartbeat keeps a session alive and updates the notification
// permission the client reports.
//
// HTTP: POST /api/reminders/{id}/heartbeat {"permission": "granted"}
func (h *ReminderHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("id", "session id must be a UUID"))
		return
	}

	var req heartbeatRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	var perm notify.Permission
	if req.Permission != "" {
		if perm, err = notify.ParsePermission(req.Permission); err != nil {
			writeError(w, apperror.ValidationFailed("permission", err.Error()))
			return
		}
	}

	sess, ok := h.sessions.Lookup(id)
	if !ok || sess.UserID != userID {
		// Another user's session is reported the same as a missing one.
		writeError(w, apperror.NotFound("reminder session", id.String()))
		return
	}
	sess.Touch(perm)

	w.WriteHeader(http.StatusNoContent)
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
