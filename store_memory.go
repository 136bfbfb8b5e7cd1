package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a UserStore kept in process memory. Every record handed
// out is a copy, and Update runs under the write lock so read-modify-write
// cycles are serialized.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
	order []uuid.UUID
	now   func() time.Time
}

var _ UserStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[uuid.UUID]*User),
		now:   time.Now,
	}
}

func (s *MemoryStore) FetchByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if username != "" {
		for _, id := range s.order {
			if u := s.users[id]; u.Username == username {
				return u.Clone(), nil
			}
		}
	}
	return nil, notFound("username", username)
}

func (s *MemoryStore) FetchByEmail(_ context.Context, email string) (*User, error) {
	return s.fetchContact(ChannelEmail, email)
}

func (s *MemoryStore) FetchByMobile(_ context.Context, mobile string) (*User, error) {
	return s.fetchContact(ChannelMobile, mobile)
}

func (s *MemoryStore) fetchContact(channel Channel, value string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value != "" {
		for _, id := range s.order {
			u := s.users[id]
			if confirmed, _ := u.Contact(channel); confirmed == value {
				return u.Clone(), nil
			}
		}
		for _, id := range s.order {
			u := s.users[id]
			if _, pending := u.Contact(channel); pending == value {
				return u.Clone(), nil
			}
		}
	}
	return nil, notFound(string(channel), value)
}

func (s *MemoryStore) FetchByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, notFound("id", id.String())
}

func (s *MemoryStore) Create(_ context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := user.Clone()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, exists := s.users[record.ID]; exists {
		return nil, NewValidationError(FieldErrors{"id": {"id_taken"}})
	}
	if err := s.checkUnique(record); err != nil {
		return nil, err
	}

	now := s.now()
	record.CreatedAt = &now
	record.UpdatedAt = &now
	record.Version = 1

	s.users[record.ID] = record
	s.order = append(s.order, record.ID)
	return record.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[id]
	if !ok {
		return nil, notFound("id", id.String())
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = cloneTime(current.CreatedAt)

	if err := s.checkUnique(next); err != nil {
		return nil, err
	}

	now := s.now()
	next.UpdatedAt = &now
	next.Version = current.Version + 1

	s.users[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return notFound("id", id.String())
	}
	delete(s.users, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// checkUnique must be called with the write lock held.
func (s *MemoryStore) checkUnique(record *User) error {
	fields := FieldErrors{}
	for _, other := range s.users {
		if other.ID == record.ID {
			continue
		}
		if record.Username != "" && other.Username == record.Username {
			fields.Add("username", MessageUsernameTaken)
		}
		if record.Email != "" && other.Email == record.Email {
			fields.Add("email", MessageEmailTaken)
		}
		if record.Mobile != "" && other.Mobile == record.Mobile {
			fields.Add("mobile", MessageMobileTaken)
		}
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

func notFound(field, value string) error {
	return withMetadata(ErrIdentityNotFound, map[string]any{
		"lookup": field,
		"value":  value,
	})
}
