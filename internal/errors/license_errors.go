package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// License-specific errors (sentinel errors the engine returns and the
// transport layer maps to HTTP responses)
var (
	ErrMalformedLicense = errors.New("malformed license")
	ErrInvalidSignature = errors.New("invalid license signature")
	ErrLicenseExpired   = errors.New("license expired")
	ErrLicenseNotFound  = errors.New("license not found")
	ErrDeviceMismatch   = errors.New("license bound to a different device")
	ErrDeviceRevoked    = errors.New("device revoked")
	ErrUserRevoked      = errors.New("user revoked")
	ErrUserNotFound     = errors.New("user not found")
)

// Error codes for license operations
const (
	ErrCodeMalformed      = "MALFORMED_LICENSE"
	ErrCodeBadSignature   = "INVALID_SIGNATURE"
	ErrCodeExpired        = "LICENSE_EXPIRED"
	ErrCodeNotFound       = "LICENSE_NOT_FOUND"
	ErrCodeDeviceMismatch = "DEVICE_MISMATCH"
	ErrCodeDeviceRevoked  = "DEVICE_REVOKED"
	ErrCodeUserRevoked    = "USER_REVOKED"
)

// MapLicenseError maps a domain error to an RFC 7807 response. All license
// failures are terminal until server state changes, so nothing here carries
// retry hints.
func MapLicenseError(err error, instance, traceID string) render.Renderer {
	var problem *ProblemDetails

	switch {
	case errors.Is(err, ErrMalformedLicense):
		problem = NewProblemDetails(
			http.StatusBadRequest,
			"/errors/malformed-license",
			"Malformed License",
			"The license string does not match the expected format.",
			instance,
		).WithExtension("code", ErrCodeMalformed)

	case errors.Is(err, ErrInvalidSignature):
		problem = NewProblemDetails(
			http.StatusForbidden,
			"/errors/invalid-signature",
			"Invalid Signature",
			"The license signature does not match this device.",
			instance,
		).WithExtension("code", ErrCodeBadSignature)

	case errors.Is(err, ErrLicenseExpired):
		problem = NewProblemDetails(
			http.StatusForbidden,
			"/errors/license-expired",
			"License Expired",
			"This license has expired. Please renew to continue.",
			instance,
		).WithExtension("code", ErrCodeExpired)

	case errors.Is(err, ErrDeviceMismatch):
		problem = NewProblemDetails(
			http.StatusForbidden,
			"/errors/device-mismatch",
			"Device Mismatch",
			"This license is already registered to a different device.",
			instance,
		).WithExtension("code", ErrCodeDeviceMismatch)

	case errors.Is(err, ErrDeviceRevoked):
		problem = NewProblemDetails(
			http.StatusForbidden,
			"/errors/device-revoked",
			"Device Revoked",
			"Access for this device has been revoked.",
			instance,
		).WithExtension("code", ErrCodeDeviceRevoked)

	case errors.Is(err, ErrUserRevoked):
		problem = NewProblemDetails(
			http.StatusForbidden,
			"/errors/user-revoked",
			"User Revoked",
			"Access for this user has been revoked.",
			instance,
		).WithExtension("code", ErrCodeUserRevoked)

	case errors.Is(err, ErrLicenseNotFound), errors.Is(err, ErrUserNotFound):
		problem = NewProblemDetails(
			http.StatusNotFound,
			"/errors/license-not-found",
			"License Not Found",
			"The specified license was not found. Contact support if you believe this is an error.",
			instance,
		).WithExtension("code", ErrCodeNotFound)

	default:
		problem = NewInternal(instance)
	}

	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}
