package license

import (
	"context"
	"sync"
	"time"
)

type revKey struct {
	kind RevocationKind
	id   string
}

type progressKey struct {
	userID string
	testID string
}

// memoryStore is a mutex-guarded in-memory Store. It is the default backend
// when no database DSN is configured, and the test double.
type memoryStore struct {
	mu          sync.RWMutex
	users       map[string]User
	licenses    map[string]License
	revocations map[revKey]Revocation
	progress    map[progressKey]ProgressRecord
	deviceSeen  map[progressKey]time.Time // userID+deviceID
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		users:       make(map[string]User),
		licenses:    make(map[string]License),
		revocations: make(map[revKey]Revocation),
		progress:    make(map[progressKey]ProgressRecord),
		deviceSeen:  make(map[progressKey]time.Time),
	}
}

func (s *memoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := u
	return &out, nil
}

func (s *memoryStore) UpsertUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		// Identity and creation time are immutable
		existing.DisplayName = user.DisplayName
		existing.ExamDate = user.ExamDate
		s.users[user.ID] = existing
		return nil
	}
	s.users[user.ID] = *user
	return nil
}

func (s *memoryStore) GetLicense(ctx context.Context, key string) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, ok := s.licenses[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := lic
	return &out, nil
}

func (s *memoryStore) PutLicense(ctx context.Context, lic *License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.licenses[lic.Key] = *lic
	return nil
}

func (s *memoryStore) BindDevice(ctx context.Context, key, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[key]
	if !ok {
		return false, ErrRecordNotFound
	}
	if lic.BoundDeviceID != "" {
		return false, nil
	}
	lic.BoundDeviceID = deviceID
	s.licenses[key] = lic
	return true, nil
}

func (s *memoryStore) SetRevocation(ctx context.Context, rev *Revocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revocations[revKey{rev.Kind, rev.TargetID}] = *rev
	return nil
}

func (s *memoryStore) ClearRevocation(ctx context.Context, kind RevocationKind, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.revocations, revKey{kind, targetID})
	return nil
}

func (s *memoryStore) IsRevoked(ctx context.Context, kind RevocationKind, targetID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revocations[revKey{kind, targetID}]
	return ok, nil
}

func (s *memoryStore) GetProgress(ctx context.Context, userID string, testIDs []string) (map[string]*ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*ProgressRecord, len(testIDs))
	for _, testID := range testIDs {
		if rec, ok := s.progress[progressKey{userID, testID}]; ok {
			cp := rec
			cp.RecentAttempts = append([]string(nil), rec.RecentAttempts...)
			out[testID] = &cp
		}
	}
	return out, nil
}

func (s *memoryStore) UpdateProgress(ctx context.Context, userID, testID string, fn func(rec *ProgressRecord) (bool, error)) (*ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{userID, testID}
	rec, ok := s.progress[key]
	if !ok {
		rec = ProgressRecord{UserID: userID, TestID: testID}
	}
	rec.RecentAttempts = append([]string(nil), rec.RecentAttempts...)

	changed, err := fn(&rec)
	if err != nil {
		return nil, err
	}
	if changed {
		s.progress[key] = rec
	}
	out := rec
	return &out, nil
}

func (s *memoryStore) TouchDeviceSeen(ctx context.Context, userID, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deviceSeen[progressKey{userID, deviceID}] = at
	return nil
}
