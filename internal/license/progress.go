package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// MaxPerfectCount is where the counter saturates
	MaxPerfectCount = 3

	// AttemptRingSize bounds the per-record attempt dedup window
	AttemptRingSize = 20
)

// MarkResult is the outcome of MarkPerfect
type MarkResult struct {
	PerfectCount int  `json:"perfect_count"`
	Percent      int  `json:"percent"`
	Completed    bool `json:"completed"`
	Deduped      bool `json:"deduped,omitempty"`
}

// ProgressStatus is one entry of a GetProgress projection
type ProgressStatus struct {
	PerfectCount int        `json:"perfect_count"`
	Percent      int        `json:"percent"`
	Completed    bool       `json:"completed"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ProgressResult is the outcome of GetProgress
type ProgressResult struct {
	UserID string                     `json:"user_id"`
	Data   map[string]*ProgressStatus `json:"data"`
}

// MarkPerfect records a perfect completion of a test module. It runs the
// full license authorization pipeline first, then performs the
// dedup-then-increment atomically through the store.
//
// An attemptID seen within the record's recent-attempt window makes the call
// a no-op returning the unchanged counter. An empty attemptID always counts.
func (e *Engine) MarkPerfect(ctx context.Context, deviceID, licenseKey, testID, attemptID string) (*MarkResult, error) {
	auth, err := e.authorize(ctx, deviceID, licenseKey)
	if err != nil {
		return nil, err
	}

	deduped := false
	rec, err := e.store.UpdateProgress(ctx, auth.UserID, testID, func(rec *ProgressRecord) (bool, error) {
		if attemptID != "" {
			ring := newAttemptRing(rec.RecentAttempts)
			if ring.contains(attemptID) {
				deduped = true
				return false, nil
			}
			ring.add(attemptID)
			rec.RecentAttempts = ring.ids
		}

		if rec.PerfectCount < MaxPerfectCount {
			rec.PerfectCount++
		}
		rec.UpdatedAt = e.now()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}

	e.logger.InfoContext(ctx, "perfect completion marked",
		slog.String("user_id", auth.UserID),
		slog.String("test_id", testID),
		slog.Int("perfect_count", rec.PerfectCount),
		slog.Bool("deduped", deduped))

	return &MarkResult{
		PerfectCount: rec.PerfectCount,
		Percent:      percentFor(rec.PerfectCount),
		Completed:    rec.PerfectCount >= MaxPerfectCount,
		Deduped:      deduped,
	}, nil
}

// GetProgress projects progress for the given test modules. Never-marked
// test IDs report a zero record.
func (e *Engine) GetProgress(ctx context.Context, deviceID, licenseKey string, testIDs []string) (*ProgressResult, error) {
	auth, err := e.authorize(ctx, deviceID, licenseKey)
	if err != nil {
		return nil, err
	}

	records, err := e.store.GetProgress(ctx, auth.UserID, testIDs)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	data := make(map[string]*ProgressStatus, len(testIDs))
	for _, testID := range testIDs {
		status := &ProgressStatus{}
		if rec, ok := records[testID]; ok {
			updatedAt := rec.UpdatedAt
			status.PerfectCount = rec.PerfectCount
			status.Percent = percentFor(rec.PerfectCount)
			status.Completed = rec.PerfectCount >= MaxPerfectCount
			status.UpdatedAt = &updatedAt
		}
		data[testID] = status
	}

	return &ProgressResult{UserID: auth.UserID, Data: data}, nil
}

// ResetProgress clears a perfect-completion record. This is the only path
// that ever lowers a counter; it is privileged and bypasses the license gate.
func (e *Engine) ResetProgress(ctx context.Context, userID, testID string) error {
	_, err := e.store.UpdateProgress(ctx, userID, testID, func(rec *ProgressRecord) (bool, error) {
		rec.PerfectCount = 0
		rec.RecentAttempts = nil
		rec.UpdatedAt = e.now()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}

	e.logger.InfoContext(ctx, "progress reset",
		slog.String("user_id", userID),
		slog.String("test_id", testID))
	return nil
}

// percentFor is the step function over the saturating counter
func percentFor(count int) int {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return 33
	case count == 2:
		return 67
	default:
		return 100
	}
}

// attemptRing is a fixed-capacity FIFO of attempt IDs with O(1) membership
type attemptRing struct {
	ids  []string
	seen map[string]struct{}
}

func newAttemptRing(ids []string) *attemptRing {
	r := &attemptRing{
		ids:  ids,
		seen: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		r.seen[id] = struct{}{}
	}
	return r
}

func (r *attemptRing) contains(id string) bool {
	_, ok := r.seen[id]
	return ok
}

func (r *attemptRing) add(id string) {
	r.ids = append(r.ids, id)
	r.seen[id] = struct{}{}
	for len(r.ids) > AttemptRingSize {
		delete(r.seen, r.ids[0])
		r.ids = r.ids[1:]
	}
}
