// Package postgres implements license.Store on a pgx connection pool with
// one row per user, license, revocation entry and progress record, so every
// mutation is a row-level transaction instead of a whole-document rewrite.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"examgate/internal/config"
	"examgate/internal/license"
)

// Store implements license.Store backed by PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool and ensures the schema exists
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports database reachability for health checks
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn inside a transaction
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*license.User, error) {
	var u license.User
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, display_name, exam_date, created_at FROM users WHERE user_id = $1`,
		userID,
	).Scan(&u.ID, &u.DisplayName, &u.ExamDate, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, license.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *license.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, display_name, exam_date, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET display_name = EXCLUDED.display_name,
		     exam_date    = EXCLUDED.exam_date`,
		user.ID, user.DisplayName, user.ExamDate, user.CreatedAt,
	)
	return err
}

func (s *Store) GetLicense(ctx context.Context, key string) (*license.License, error) {
	var lic license.License
	var bound *string
	err := s.pool.QueryRow(ctx,
		`SELECT license_key, owner_user_id, bound_device_id, expiry, created_at
		 FROM licenses WHERE license_key = $1`,
		key,
	).Scan(&lic.Key, &lic.OwnerUserID, &bound, &lic.Expiry, &lic.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, license.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if bound != nil {
		lic.BoundDeviceID = *bound
	}
	return &lic, nil
}

func (s *Store) PutLicense(ctx context.Context, lic *license.License) error {
	var bound *string
	if lic.BoundDeviceID != "" {
		bound = &lic.BoundDeviceID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO licenses (license_key, owner_user_id, bound_device_id, expiry, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (license_key) DO UPDATE
		 SET owner_user_id   = EXCLUDED.owner_user_id,
		     bound_device_id = EXCLUDED.bound_device_id,
		     expiry          = EXCLUDED.expiry`,
		lic.Key, lic.OwnerUserID, bound, lic.Expiry, lic.CreatedAt,
	)
	return err
}

// BindDevice is a compare-and-swap on the NULL bound_device_id column
func (s *Store) BindDevice(ctx context.Context, key, deviceID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE licenses SET bound_device_id = $2
		 WHERE license_key = $1 AND bound_device_id IS NULL`,
		key, deviceID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already bound" from "no such license"
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM licenses WHERE license_key = $1)`, key,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, license.ErrRecordNotFound
	}
	return false, nil
}

func (s *Store) SetRevocation(ctx context.Context, rev *license.Revocation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO revocations (kind, target_id, reason, revoked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, target_id) DO UPDATE
		 SET reason = EXCLUDED.reason, revoked_at = EXCLUDED.revoked_at`,
		string(rev.Kind), rev.TargetID, rev.Reason, rev.RevokedAt,
	)
	return err
}

func (s *Store) ClearRevocation(ctx context.Context, kind license.RevocationKind, targetID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM revocations WHERE kind = $1 AND target_id = $2`,
		string(kind), targetID,
	)
	return err
}

func (s *Store) IsRevoked(ctx context.Context, kind license.RevocationKind, targetID string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revocations WHERE kind = $1 AND target_id = $2)`,
		string(kind), targetID,
	).Scan(&revoked)
	return revoked, err
}

func (s *Store) GetProgress(ctx context.Context, userID string, testIDs []string) (map[string]*license.ProgressRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, test_id, perfect_count, recent_attempts, updated_at
		 FROM progress WHERE user_id = $1 AND test_id = ANY($2)`,
		userID, testIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*license.ProgressRecord, len(testIDs))
	for rows.Next() {
		var rec license.ProgressRecord
		if err := rows.Scan(&rec.UserID, &rec.TestID, &rec.PerfectCount, &rec.RecentAttempts, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out[rec.TestID] = &rec
	}
	return out, rows.Err()
}

// UpdateProgress locks the row for the duration of the dedup-then-increment
// so simultaneous duplicate submissions cannot produce lost updates
func (s *Store) UpdateProgress(ctx context.Context, userID, testID string, fn func(rec *license.ProgressRecord) (bool, error)) (*license.ProgressRecord, error) {
	var out license.ProgressRecord

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rec := license.ProgressRecord{UserID: userID, TestID: testID}
		err := tx.QueryRow(ctx,
			`SELECT perfect_count, recent_attempts, updated_at
			 FROM progress WHERE user_id = $1 AND test_id = $2 FOR UPDATE`,
			userID, testID,
		).Scan(&rec.PerfectCount, &rec.RecentAttempts, &rec.UpdatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		changed, err := fn(&rec)
		if err != nil {
			return err
		}
		if changed {
			if _, err := tx.Exec(ctx,
				`INSERT INTO progress (user_id, test_id, perfect_count, recent_attempts, updated_at)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (user_id, test_id) DO UPDATE
				 SET perfect_count   = EXCLUDED.perfect_count,
				     recent_attempts = EXCLUDED.recent_attempts,
				     updated_at      = EXCLUDED.updated_at`,
				userID, testID, rec.PerfectCount, rec.RecentAttempts, rec.UpdatedAt,
			); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) TouchDeviceSeen(ctx context.Context, userID, deviceID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO device_seen (user_id, device_id, last_seen_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, device_id) DO UPDATE
		 SET last_seen_at = EXCLUDED.last_seen_at`,
		userID, deviceID, at,
	)
	return err
}
