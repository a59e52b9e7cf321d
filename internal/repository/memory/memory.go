// Package memory is an in-process Store used by service tests and by
// DB_DRIVER=memory for local demos. Nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store keeps every document in maps guarded by mu. Profile writes also hold a
// per-user lock, which RunAtomic keeps for its whole read-modify-write, so a
// plain update never lands between its read and its write.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]model.UserProfile
	logs     map[string][]model.WaterLog // per user, append order == timestamp order
	users    map[string]model.User

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	// Now stamps new logs. Tests replace it to control timestamps.
	Now func() time.Time
	// Fail, when set, is consulted before every operation; a non-nil result
	// is returned as that operation's error. op is "read" or "write".
	Fail func(op apperror.Op, path string) error
}

func New() *Store {
	return &Store{
		profiles: make(map[string]model.UserProfile),
		logs:     make(map[string][]model.WaterLog),
		users:    make(map[string]model.User),
		locks:    make(map[string]*sync.Mutex),
		Now:      time.Now,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) fail(op apperror.Op, path string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op, path)
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if err := s.fail(apperror.OpRead, repository.ProfilePath(userID)); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	if err := s.fail(apperror.OpWrite, repository.ProfilePath(p.ID)); err != nil {
		return err
	}
	l := s.userLock(p.ID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return apperror.Conflict("profile", p.ID)
	}
	s.profiles[p.ID] = *p
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, patch repository.ProfilePatch) error {
	if err := s.fail(apperror.OpWrite, repository.ProfilePath(userID)); err != nil {
		return err
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return apperror.NotFound("profile", userID)
	}
	patch.Apply(&p)
	s.profiles[userID] = p
	return nil
}

func (s *Store) RunAtomic(ctx context.Context, userID string, fn repository.AtomicFunc) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := s.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	m, err := fn(current)
	if err != nil {
		return err
	}

	if m.Profile != nil {
		if err := s.fail(apperror.OpWrite, repository.ProfilePath(userID)); err != nil {
			return err
		}
	}
	if m.Log != nil {
		if err := s.fail(apperror.OpWrite, repository.LogPath(userID, "")); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Profile != nil {
		m.Profile.ID = userID
		s.profiles[userID] = *m.Profile
	}
	if m.Log != nil {
		m.Log.ID = xid.New().String()
		m.Log.UserID = userID
		m.Log.Timestamp = s.Now().UTC()
		s.logs[userID] = append(s.logs[userID], *m.Log)
	}
	return nil
}

// sortedLogs returns a copy of the user's logs ordered oldest first.
func (s *Store) sortedLogs(userID string) []model.WaterLog {
	logs := append([]model.WaterLog(nil), s.logs[userID]...)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})
	return logs
}

func (s *Store) LatestLog(ctx context.Context, userID string) (*model.WaterLog, error) {
	if err := s.fail(apperror.OpRead, repository.LogPath(userID, "")); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.sortedLogs(userID)
	if len(logs) == 0 {
		return nil, apperror.NotFound("water log", userID)
	}
	l := logs[len(logs)-1]
	return &l, nil
}

func (s *Store) ListLogs(ctx context.Context, userID string, opts repository.ListOptions) ([]model.WaterLog, error) {
	if err := s.fail(apperror.OpRead, repository.LogPath(userID, "")); err != nil {
		return nil, err
	}
	opts = opts.Normalize()

	s.mu.RLock()
	logs := s.sortedLogs(userID)
	s.mu.RUnlock()

	out := make([]model.WaterLog, 0, opts.Limit)
	for i := len(logs) - 1 - opts.Offset; i >= 0 && len(out) < opts.Limit; i-- {
		out = append(out, logs[i])
	}
	return out, nil
}

func (s *Store) LogsSince(ctx context.Context, userID string, since time.Time) ([]model.WaterLog, error) {
	if err := s.fail(apperror.OpRead, repository.LogPath(userID, "")); err != nil {
		return nil, err
	}
	s.mu.RLock()
	logs := s.sortedLogs(userID)
	s.mu.RUnlock()

	var out []model.WaterLog
	for _, l := range logs {
		if !l.Timestamp.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Email != "" {
		for _, u := range s.users {
			if strings.EqualFold(u.Email, user.Email) {
				return apperror.Conflict("user", user.Email)
			}
		}
	}
	now := s.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *Store) Upsert(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now().UTC()
	for id, u := range s.users {
		if u.GitHubID == user.GitHubID {
			u.Login = user.Login
			if user.Email != "" {
				u.Email = user.Email
			}
			u.UpdatedAt = now
			s.users[id] = u
			*user = u
			return nil
		}
	}
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email != "" && strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}
