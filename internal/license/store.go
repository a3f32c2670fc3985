package license

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by stores for missing rows. The engine maps
// it to the public license/user not-found errors.
var ErrRecordNotFound = errors.New("record not found")

// Store is the persistence boundary of the engine. Every implementation
// must keep each multi-step mutation atomic: BindDevice is a compare-and-swap
// on the empty device column and UpdateProgress runs its callback inside a
// transaction (or equivalent) so concurrent duplicate submissions cannot
// produce lost updates.
type Store interface {
	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID string) (*User, error)
	// UpsertUser creates a user or updates its mutable display fields
	UpsertUser(ctx context.Context, user *User) error

	// GetLicense retrieves a license record by its token string
	GetLicense(ctx context.Context, key string) (*License, error)
	// PutLicense inserts or replaces a license record
	PutLicense(ctx context.Context, lic *License) error
	// BindDevice atomically binds an unbound license to deviceID. It
	// returns false when the license is already bound (to any device).
	BindDevice(ctx context.Context, key, deviceID string) (bool, error)

	// SetRevocation adds an overlay deny-list entry
	SetRevocation(ctx context.Context, rev *Revocation) error
	// ClearRevocation removes an overlay deny-list entry
	ClearRevocation(ctx context.Context, kind RevocationKind, targetID string) error
	// IsRevoked reports overlay deny-list membership
	IsRevoked(ctx context.Context, kind RevocationKind, targetID string) (bool, error)

	// GetProgress returns records for the given test IDs; missing test IDs
	// are simply absent from the result.
	GetProgress(ctx context.Context, userID string, testIDs []string) (map[string]*ProgressRecord, error)
	// UpdateProgress loads (or initializes) the record for (userID, testID),
	// applies fn, and persists the record when fn reports a change. The whole
	// step is atomic with respect to concurrent updates of the same record.
	UpdateProgress(ctx context.Context, userID, testID string, fn func(rec *ProgressRecord) (changed bool, err error)) (*ProgressRecord, error)

	// TouchDeviceSeen records the last device observed for a user
	TouchDeviceSeen(ctx context.Context, userID, deviceID string, at time.Time) error
}
