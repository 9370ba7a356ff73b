// Package accounts holds user identity and roles. Cash and positions live
// in the ledger; password hashing and session handling belong to the
// transport's auth collaborator and are not this package's concern.
package accounts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"vidar/internal/common"
)

type User struct {
	ID        int64
	Username  string
	Role      common.Role
	CreatedAt time.Time
}

type Store struct {
	mu     sync.RWMutex
	byID   map[int64]*User
	byName map[string]int64
	nextID int64
}

func NewStore() *Store {
	return &Store{
		byID:   make(map[int64]*User),
		byName: make(map[string]int64),
	}
}

// Create registers a new account.
func (s *Store) Create(username string, role common.Role) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: empty username", common.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return User{}, fmt.Errorf("%w: username %s taken", common.ErrInvalidInput, username)
	}
	s.nextID++
	user := &User{
		ID:        s.nextID,
		Username:  username,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.byID[user.ID] = user
	s.byName[username] = user.ID
	return *user, nil
}

func (s *Store) Get(id int64) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return User{}, false
	}
	return *user, true
}

func (s *Store) ByName(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[strings.TrimSpace(username)]
	if !ok {
		return User{}, false
	}
	return *s.byID[id], true
}

// Delete removes the account. The last remaining manager is protected.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return common.ErrUnknownUser
	}
	if user.Role == common.RoleManager && s.managerCountLocked() == 1 {
		return common.ErrLastManager
	}
	delete(s.byName, user.Username)
	delete(s.byID, id)
	return nil
}

func (s *Store) ManagerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.managerCountLocked()
}

func (s *Store) managerCountLocked() int {
	n := 0
	for _, user := range s.byID {
		if user.Role == common.RoleManager {
			n++
		}
	}
	return n
}

func (s *Store) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.byID))
	for _, user := range s.byID {
		out = append(out, *user)
	}
	return out
}

// Import replaces the store contents with a persisted snapshot.
func (s *Store) Import(users []User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[int64]*User, len(users))
	s.byName = make(map[string]int64, len(users))
	s.nextID = 0
	for _, u := range users {
		user := u
		s.byID[user.ID] = &user
		s.byName[user.Username] = user.ID
		if user.ID > s.nextID {
			s.nextID = user.ID
		}
	}
}
