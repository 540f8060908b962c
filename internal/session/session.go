// Package session owns the client-held identity. It is the single reader
// and writer of the persisted session file; every other package goes
// through the Store.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// ErrUnauthenticated is returned by privileged helpers when no user is
// logged in.
var ErrUnauthenticated = errors.New("not authenticated")

// snapshot is the on-disk shape of the session file.
type snapshot struct {
	User *models.User `json:"user"`
}

// Store holds the current authenticated user and mirrors it to a file so
// the session survives restarts. The file is a cache, not a source of
// truth; the backend remains authoritative on every privileged action.
type Store struct {
	mu      sync.Mutex
	path    string
	user    *models.User
	loading bool
	subs    []func(*models.User)
	log     *zap.Logger
}

// New returns a Store persisting to path. The store reports Loading() true
// until Load has run once.
func New(path string, log *zap.Logger) *Store {
	return &Store{path: path, loading: true, log: log}
}

// Load reads the persisted session once at startup. A missing or malformed
// file is treated as "no session", never as a fatal condition.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.loading = false }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("discarding malformed session file", zap.String("path", s.path), zap.Error(err))
		_ = os.Remove(s.path)
		return nil
	}
	s.user = snap.User
	return nil
}

// Login replaces the current user and overwrites the persisted snapshot.
func (s *Store) Login(user models.User) error {
	s.mu.Lock()
	s.user = &user
	err := s.saveLocked()
	subs, u := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, u)
	return err
}

// Logout clears the current user and removes the persisted entry. Requests
// already in flight are unaffected; the next privileged use fails with
// ErrUnauthenticated instead.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.user = nil
	err := os.Remove(s.path)
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	subs, u := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, u)
	return err
}

// Current returns the logged-in user, or false when there is none.
func (s *Store) Current() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// IsAuthenticated reports whether a user is logged in.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// Require returns the logged-in user or ErrUnauthenticated.
func (s *Store) Require() (models.User, error) {
	u, ok := s.Current()
	if !ok {
		return models.User{}, ErrUnauthenticated
	}
	return u, nil
}

// Loading reports whether the persisted session has not been read yet.
// Views must not gate on identity before Loading turns false.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers fn to run after every login and logout. The callback
// receives the new user, or nil on logout.
func (s *Store) Subscribe(fn func(*models.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) saveLocked() error {
	data, err := json.Marshal(snapshot{User: s.user})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

func (s *Store) subscribersLocked() ([]func(*models.User), *models.User) {
	subs := make([]func(*models.User), len(s.subs))
	copy(subs, s.subs)
	var u *models.User
	if s.user != nil {
		cp := *s.user
		u = &cp
	}
	return subs, u
}

func notify(subs []func(*models.User), u *models.User) {
	for _, fn := range subs {
		fn(u)
	}
}
