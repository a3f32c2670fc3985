package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "examgate/internal/errors"
)

// AdminKeyHeader carries the admin shared secret. It is a separate
// credential from the license signing secret.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth guards admin routes with a shared-secret header. Keys are
// compared as SHA-256 digests so the comparison is constant time regardless
// of length.
func AdminAuth(adminKey string, logger *slog.Logger) func(next http.Handler) http.Handler {
	expected := sha256.Sum256([]byte(adminKey))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminKeyHeader)
			if got == "" {
				render.Render(w, r, apperrors.NewUnauthorized("Missing admin credential.", r.URL.Path))
				return
			}

			presented := sha256.Sum256([]byte(got))
			if subtle.ConstantTimeCompare(expected[:], presented[:]) != 1 {
				logger.WarnContext(r.Context(), "admin key mismatch",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				render.Render(w, r, apperrors.NewUnauthorized("Invalid admin credential.", r.URL.Path))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
