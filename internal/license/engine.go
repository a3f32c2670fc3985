package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "examgate/internal/errors"
	"examgate/internal/infrastructure"
)

// Engine is the license authorization engine. It is a pure function of
// (request parameters, persisted state); every operation is a single bounded
// synchronous step.
type Engine struct {
	store  Store
	signer *Signer
	logger *slog.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewEngine creates an engine over the given store and signing secret
func NewEngine(store Store, secret string, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		signer: NewSigner(secret),
		logger: infrastructure.WithComponent(logger, "license_engine"),
		now:    time.Now,
	}
}

// VerifyResult is the successful outcome of Verify
type VerifyResult struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"user_name"`
	ExamDate    *time.Time `json:"exam_date,omitempty"`
	Expiry      string     `json:"expiry"`
	FirstBind   bool       `json:"first_bind"`
}

// Verify validates a license for a device and enforces the binding and
// revocation rules. Absent license records are rejected; there is no
// implicit first registration.
func (e *Engine) Verify(ctx context.Context, deviceID, licenseKey string) (*VerifyResult, error) {
	res, err := e.authorize(ctx, deviceID, licenseKey)
	if err != nil {
		return nil, err
	}

	// Non-authoritative tracking, failure here must not fail the verify
	if err := e.store.TouchDeviceSeen(ctx, res.UserID, deviceID, e.now()); err != nil {
		e.logger.WarnContext(ctx, "failed to record last seen device",
			slog.String("user_id", res.UserID),
			slog.String("error", err.Error()))
	}

	e.logger.InfoContext(ctx, "license verified",
		slog.String("user_id", res.UserID),
		slog.String("expiry", res.Expiry),
		slog.Bool("first_bind", res.FirstBind))

	return res, nil
}

// authorize runs the full verification pipeline without the informational
// side effects. MarkPerfect and GetProgress reuse it as their precondition
// gate.
func (e *Engine) authorize(ctx context.Context, deviceID, licenseKey string) (*VerifyResult, error) {
	tok, err := e.signer.Parse(licenseKey)
	if err != nil {
		return nil, err
	}

	if !e.signer.VerifySignature(deviceID, tok) {
		return nil, apperrors.ErrInvalidSignature
	}

	// Fixed-width YYYYMMDD makes the lexicographic compare a date compare
	if tok.Expiry < e.today() {
		return nil, apperrors.ErrLicenseExpired
	}

	lic, err := e.store.GetLicense(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, apperrors.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("load license: %w", err)
	}

	firstBind := false
	switch lic.BoundDeviceID {
	case "":
		bound, err := e.store.BindDevice(ctx, licenseKey, deviceID)
		if err != nil {
			return nil, fmt.Errorf("bind device: %w", err)
		}
		if !bound {
			// Lost a race; re-read to see who claimed it
			lic, err = e.store.GetLicense(ctx, licenseKey)
			if err != nil {
				return nil, fmt.Errorf("reload license: %w", err)
			}
			if lic.BoundDeviceID != deviceID {
				return nil, apperrors.ErrDeviceMismatch
			}
		} else {
			firstBind = true
		}
	case deviceID:
		// Already bound to this device
	default:
		return nil, apperrors.ErrDeviceMismatch
	}

	// Device check before user check: the coarser block short-circuits first
	if revoked, err := e.store.IsRevoked(ctx, RevokeDevice, deviceID); err != nil {
		return nil, fmt.Errorf("check device revocation: %w", err)
	} else if revoked {
		return nil, apperrors.ErrDeviceRevoked
	}
	if revoked, err := e.store.IsRevoked(ctx, RevokeUser, lic.OwnerUserID); err != nil {
		return nil, fmt.Errorf("check user revocation: %w", err)
	} else if revoked {
		return nil, apperrors.ErrUserRevoked
	}

	user, err := e.store.GetUser(ctx, lic.OwnerUserID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return &VerifyResult{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		ExamDate:    user.ExamDate,
		Expiry:      lic.Expiry,
		FirstBind:   firstBind,
	}, nil
}

// GenerateParams are the inputs to AdminGenerate
type GenerateParams struct {
	DeviceID    string
	Expiry      string
	UserID      string // optional; minted when empty
	DisplayName string
	ExamDate    *time.Time
}

// GenerateResult is the outcome of AdminGenerate
type GenerateResult struct {
	LicenseKey  string     `json:"license"`
	Expiry      string     `json:"expiry"`
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"user_name"`
	ExamDate    *time.Time `json:"exam_date,omitempty"`
}

// AdminGenerate issues a license pre-bound to the given device. It uses the
// same signature function as Verify, so the returned token validates later
// from (deviceID, expiry) alone. Re-generating for the same device and
// expiry replaces the existing record; this is the admin rebind path.
func (e *Engine) AdminGenerate(ctx context.Context, p GenerateParams) (*GenerateResult, error) {
	if !validExpiry(p.Expiry) {
		return nil, apperrors.ErrMalformedLicense
	}

	userID := p.UserID
	if userID == "" {
		userID = uuid.New().String()
	}

	now := e.now()
	user := &User{
		ID:          userID,
		DisplayName: p.DisplayName,
		ExamDate:    p.ExamDate,
		CreatedAt:   now,
	}
	if err := e.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	key := e.signer.Sign(p.DeviceID, p.Expiry)

	switch existing, err := e.store.GetLicense(ctx, key); {
	case err == nil:
		if existing.OwnerUserID != userID {
			e.logger.WarnContext(ctx, "regenerated license changes owner",
				slog.String("previous_owner", existing.OwnerUserID),
				slog.String("new_owner", userID))
		}
	case !errors.Is(err, ErrRecordNotFound):
		// The check is informational; a read failure here must not block
		// issuing, but it is worth surfacing
		e.logger.WarnContext(ctx, "owner change check failed",
			slog.String("error", err.Error()))
	}

	lic := &License{
		Key:           key,
		OwnerUserID:   userID,
		BoundDeviceID: p.DeviceID, // pre-bound, not awaiting first use
		Expiry:        p.Expiry,
		CreatedAt:     now,
	}
	if err := e.store.PutLicense(ctx, lic); err != nil {
		return nil, fmt.Errorf("put license: %w", err)
	}

	e.logger.InfoContext(ctx, "license generated",
		slog.String("user_id", userID),
		slog.String("expiry", p.Expiry))

	return &GenerateResult{
		LicenseKey:  key,
		Expiry:      p.Expiry,
		UserID:      userID,
		DisplayName: p.DisplayName,
		ExamDate:    p.ExamDate,
	}, nil
}

// RevokeDevice adds a device to the revocation overlay
func (e *Engine) RevokeDevice(ctx context.Context, deviceID, reason string) error {
	return e.revoke(ctx, RevokeDevice, deviceID, reason)
}

// UnrevokeDevice removes a device from the revocation overlay
func (e *Engine) UnrevokeDevice(ctx context.Context, deviceID string) error {
	return e.store.ClearRevocation(ctx, RevokeDevice, deviceID)
}

// RevokeUser adds a user to the revocation overlay. Issued licenses and
// devices are not mutated; every later authorization for the user
// short-circuits to UserRevoked.
func (e *Engine) RevokeUser(ctx context.Context, userID, reason string) error {
	return e.revoke(ctx, RevokeUser, userID, reason)
}

// UnrevokeUser removes a user from the revocation overlay
func (e *Engine) UnrevokeUser(ctx context.Context, userID string) error {
	return e.store.ClearRevocation(ctx, RevokeUser, userID)
}

func (e *Engine) revoke(ctx context.Context, kind RevocationKind, targetID, reason string) error {
	rev := &Revocation{
		Kind:      kind,
		TargetID:  targetID,
		Reason:    reason,
		RevokedAt: e.now(),
	}
	if err := e.store.SetRevocation(ctx, rev); err != nil {
		return fmt.Errorf("set revocation: %w", err)
	}

	e.logger.InfoContext(ctx, "revocation recorded",
		slog.String("kind", string(kind)),
		slog.String("target_id", targetID),
		slog.String("reason", reason))
	return nil
}

// today returns the current date in token expiry form
func (e *Engine) today() string {
	return e.now().Format(ExpiryLayout)
}
