package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/notify"
)

// LogSource is the one query the scheduler needs.
type LogSource interface {
	LatestLog(ctx context.Context, userID string) (*model.WaterLog, error)
}

// Timer is the part of *time.Timer a session uses.
type Timer interface {
	Stop() bool
}

// AfterFunc matches time.AfterFunc; tests substitute a manual version.
type AfterFunc func(d time.Duration, f func()) Timer

// lookupTimeout bounds the LatestLog query made outside a request.
const lookupTimeout = 5 * time.Second

// Scheduler tracks open sessions by id and by user.
type Scheduler struct {
	logs      LogSource
	logger    *slog.Logger
	now       func() time.Time
	afterFunc AfterFunc

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	byUser   map[string]map[uuid.UUID]*Session
	cron     *cron.Cron
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

func NewScheduler(logs LogSource, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logs:   logs,
		logger: logger,
		now:    time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		sessions: make(map[uuid.UUID]*Session),
		byUser:   make(map[string]map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open registers a session and arms its first timer from the latest log.
func (s *Scheduler) Open(ctx context.Context, userID string, settings Settings, perm notify.Permission, sink notify.Sink) *Session {
	sess := &Session{
		ID:         uuid.New(),
		UserID:     userID,
		sched:      s,
		sink:       sink,
		settings:   settings,
		permission: perm,
		lastSeen:   s.now(),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[uuid.UUID]*Session)
	}
	s.byUser[userID][sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("reminder session opened",
		"session", sess.ID,
		"user_id", userID,
		"enabled", settings.Enabled,
		"hours", settings.Hours,
		"permission", perm,
	)
	sess.reschedule(ctx)
	return sess
}

// Lookup finds an open session.
func (s *Scheduler) Lookup(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Scheduler) userSessions(userID string) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.byUser[userID]))
	for _, sess := range s.byUser[userID] {
		out = append(out, sess)
	}
	return out
}

// LogRecorded re-arms every session of userID after a new log committed.
func (s *Scheduler) LogRecorded(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	for _, sess := range s.userSessions(userID) {
		sess.reschedule(ctx)
	}
}

// SettingsChanged applies new reminder settings to every session of userID.
func (s *Scheduler) SettingsChanged(userID string, enabled bool, hours float64) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	settings := Settings{Enabled: enabled, Hours: hours}
	for _, sess := range s.userSessions(userID) {
		sess.mu.Lock()
		sess.settings = settings
		sess.mu.Unlock()
		sess.reschedule(ctx)
	}
}

func (s *Scheduler) remove(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID)
	if m := s.byUser[sess.UserID]; m != nil {
		delete(m, sess.ID)
		if len(m) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

// Reap closes sessions with no heartbeat since now-ttl and returns how many.
func (s *Scheduler) Reap(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	var stale []*Session
	for _, sess := range s.sessions {
		if now.Sub(sess.LastSeen()) > ttl {
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Close()
	}
	if len(stale) > 0 {
		s.logger.Info("reaped idle reminder sessions", "count", len(stale), "ttl", ttl)
	}
	return len(stale)
}

// StartReaper runs Reap on a cron schedule such as "@every 1m".
func (s *Scheduler) StartReaper(spec string, ttl time.Duration) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Reap(s.now(), ttl) }); err != nil {
		return fmt.Errorf("reminder: scheduling reaper %q: %w", spec, err)
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	return nil
}

// Close stops the reaper and every open session.
func (s *Scheduler) Close() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, sess := range all {
		sess.Close()
	}
}

// Session is one client's reminder state.
//
// gen increments on every reschedule and on Close. A timer callback carries the
// generation it was armed with and does nothing if that is no longer current,
// so a stopped timer whose callback already started can never notify.
type Session struct {
	ID     uuid.UUID
	UserID string

	sched *Scheduler
	sink  notify.Sink
	done  chan struct{}

	mu         sync.Mutex
	settings   Settings
	permission notify.Permission
	gen        uint64
	timer      Timer
	closed     bool
	lastSeen   time.Time
}

// Done is closed when the session ends, including when it is reaped.
func (sess *Session) Done() <-chan struct{} {
	return sess.done
}

// Touch records a heartbeat and, when perm is non-empty, the client's current
// notification permission.
func (sess *Session) Touch(perm notify.Permission) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = sess.sched.now()
	if perm != "" {
		sess.permission = perm
	}
}

func (sess *Session) LastSeen() time.Time {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastSeen
}

// Pending reports whether a timer is currently armed.
func (sess *Session) Pending() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.timer != nil
}

// Close cancels any pending timer and unregisters the session. Idempotent.
func (sess *Session) Close() {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	sess.gen++
	sess.stopTimerLocked()
	close(sess.done)
	sess.mu.Unlock()

	sess.sched.remove(sess)
	sess.sched.logger.Info("reminder session closed", "session", sess.ID, "user_id", sess.UserID)
}

func (sess *Session) stopTimerLocked() {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}

// reschedule cancels the pending timer, looks up the latest log, and either
// fires now or arms a timer for the remainder.
func (sess *Session) reschedule(ctx context.Context) {
	sess.mu.Lock()
	sess.gen++
	gen := sess.gen
	sess.stopTimerLocked()
	if sess.closed || !sess.settings.Active() {
		sess.mu.Unlock()
		return
	}
	hours := sess.settings.Hours
	sess.mu.Unlock()

	logger := sess.sched.logger.With("session", sess.ID, "user_id", sess.UserID)

	var (
		last   time.Time
		hasLog bool
	)
	latest, err := sess.sched.logs.LatestLog(ctx, sess.UserID)
	switch {
	case err == nil:
		last, hasLog = latest.Timestamp, true
	case errors.Is(err, apperror.ErrNotFound):
	default:
		logger.Error("reminder: fetching latest log", "error", err)
		return
	}

	wait, fireNow := Delay(sess.sched.now(), last, hasLog, hours)

	sess.mu.Lock()
	if sess.gen != gen || sess.closed {
		sess.mu.Unlock()
		return
	}
	if !fireNow {
		sess.timer = sess.sched.afterFunc(wait, func() { sess.onTimer(gen) })
		sess.mu.Unlock()
		logger.Debug("reminder armed", "in", wait)
		return
	}
	sess.mu.Unlock()

	sess.deliver(gen)
}

func (sess *Session) onTimer(gen uint64) {
	sess.mu.Lock()
	if sess.gen != gen || sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.timer = nil
	sess.mu.Unlock()

	sess.deliver(gen)
}

// deliver shows the reminder if the session is still on generation gen and the
// client granted permission.
func (sess *Session) deliver(gen uint64) {
	sess.mu.Lock()
	if sess.gen != gen || sess.closed {
		sess.mu.Unlock()
		return
	}
	perm := sess.permission
	hours := sess.settings.Hours
	sess.mu.Unlock()

	logger := sess.sched.logger.With("session", sess.ID, "user_id", sess.UserID)
	if !perm.Granted() {
		logger.Debug("reminder due but notifications not granted", "permission", perm)
		return
	}
	if err := sess.sink.Show(Message(hours, sess.sched.now())); err != nil {
		logger.Warn("reminder: showing notification", "error", err)
		return
	}
	logger.Info("reminder sent", "hours", hours)
}
