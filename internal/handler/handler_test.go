package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hydrate/internal/auth"
	"github.com/sakif/hydrate/internal/bg"
	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/reminder"
	"github.com/sakif/hydrate/internal/repository/memory"
	"github.com/sakif/hydrate/internal/service"
)

// testUserHeader stands in for the JWT middleware in handler tests.
const testUserHeader = "X-Test-User"

type harness struct {
	store    *memory.Store
	ledger   *service.LedgerService
	profiles *service.ProfileService
	sched    *reminder.Scheduler
	router   chi.Router
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		store: memory.New(),
		now:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.store.Now = clock

	h.sched = reminder.NewScheduler(h.store, logger, reminder.WithClock(clock))
	t.Cleanup(h.sched.Close)
	h.ledger = service.NewLedgerService(h.store, h.sched, logger).WithClock(clock)
	h.profiles = service.NewProfileService(h.store, bg.Sync{}, h.sched, logger, time.Second).WithClock(clock)

	locator := handler.Locator{Default: time.UTC}
	profileH := handler.NewProfileHandler(h.profiles, locator, logger)
	logH := handler.NewLogHandler(h.ledger, locator, logger)
	reminderH := handler.NewReminderHandler(h.sched, h.profiles, locator, 50*time.Millisecond, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if id := req.Header.Get(testUserHeader); id != "" {
					req = req.WithContext(auth.WithUserID(req.Context(), id))
				}
				next.ServeHTTP(w, req)
			})
		})
		r.Get("/profile", profileH.HandleGet)
		r.Patch("/profile", profileH.HandleUpdate)
		r.Post("/logs", logH.HandleCreate)
		r.Get("/logs", logH.HandleList)
		r.Get("/logs/latest", logH.HandleLatest)
		r.Get("/history", logH.HandleHistory)
		r.Get("/reminders/stream", reminderH.HandleStream)
		r.Post("/reminders/{id}/heartbeat", reminderH.HandleHeartbeat)
	})
	h.router = r
	return h
}

// do sends a request as userID ("" for anonymous) and returns the recorder.
func (h *harness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func (h *harness) doWithHeader(t *testing.T, method, path, userID string, body any, key, value string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(testUserHeader, userID)
	req.Header.Set(key, value)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}
