package license

import "time"

// User is the owner of one or more licenses. Identity is immutable;
// display fields may change via admin generate.
type User struct {
	ID          string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	ExamDate    *time.Time `json:"exam_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// License is the persisted record behind a signed token. BoundDeviceID is
// empty until the first successful verify, then fixed forever.
type License struct {
	Key           string    `json:"license_key"`
	OwnerUserID   string    `json:"owner_user_id"`
	BoundDeviceID string    `json:"bound_device_id,omitempty"`
	Expiry        string    `json:"expiry"`
	CreatedAt     time.Time `json:"created_at"`
}

// RevocationKind distinguishes the two overlay deny-lists
type RevocationKind string

const (
	RevokeDevice RevocationKind = "device"
	RevokeUser   RevocationKind = "user"
)

// Revocation is an overlay deny-list entry. It never mutates the license or
// user it targets.
type Revocation struct {
	Kind      RevocationKind `json:"kind"`
	TargetID  string         `json:"target_id"`
	Reason    string         `json:"reason,omitempty"`
	RevokedAt time.Time      `json:"revoked_at"`
}

// ProgressRecord tracks perfect completions of one test module for one user.
// RecentAttempts is a bounded FIFO used to deduplicate client retries.
type ProgressRecord struct {
	UserID         string    `json:"user_id"`
	TestID         string    `json:"test_id"`
	PerfectCount   int       `json:"perfect_count"`
	RecentAttempts []string  `json:"recent_attempts,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeviceSeen records the last device observed for a user. Informational
// only, never consulted by authorization.
type DeviceSeen struct {
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
