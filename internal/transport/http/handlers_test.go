package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examgate/internal/license"
	custommw "examgate/internal/middleware"
)

const testAdminKey = "test-admin-key"

// newTestServer mirrors the application router with an in-memory store
func newTestServer(t *testing.T) (*httptest.Server, *license.Engine) {
	t.Helper()

	logger := slog.Default()
	engine := license.NewEngine(license.NewMemoryStore(), "handler-test-secret", logger)

	r := chi.NewRouter()
	r.Use(custommw.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/api", func(r chi.Router) {
		r.Mount("/", NewLicenseHandler(engine, logger).Routes())
		r.Mount("/progress", NewProgressHandler(engine, logger).Routes())
		r.Group(func(r chi.Router) {
			r.Use(custommw.AdminAuth(testAdminKey, logger))
			r.Mount("/admin", NewAdminHandler(engine, logger).Routes())
		})
		r.Get("/health", NewHealthHandler(nil, "test").Health)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, engine
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func adminHeaders() map[string]string {
	return map[string]string{custommw.AdminKeyHeader: testAdminKey}
}

func futureExpiry() string {
	return time.Now().AddDate(1, 0, 0).Format(license.ExpiryLayout)
}

func generateLicense(t *testing.T, srv *httptest.Server, deviceID, expiry string) (key, userID string) {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/api/admin/generate", map[string]any{
		"device_id": deviceID,
		"expiry":    expiry,
		"user_name": "Test User",
	}, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode, "generate failed: %v", body)
	return body["license"].(string), body["user_id"].(string)
}

func TestVerifyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	key, userID := generateLicense(t, srv, "device-1", futureExpiry())

	resp, body := postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
		"license":   key,
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, userID, body["user_id"])
	assert.Equal(t, "Test User", body["user_name"])
	assert.Equal(t, true, body["bound"])
	assert.Equal(t, false, body["first_bind"], "admin-generated licenses are pre-bound")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestVerifyMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid Request", body["title"])
}

func TestVerifyUnknownLicense(t *testing.T) {
	srv, _ := newTestServer(t)

	// Signed with a different secret, so the signature check rejects it
	foreign := license.NewSigner("other-secret").Sign("device-1", futureExpiry())
	resp, body := postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
		"license":   foreign,
	}, nil)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "INVALID_SIGNATURE", body["code"])
}

func TestVerifyExpiredLicense(t *testing.T) {
	srv, _ := newTestServer(t)
	past := time.Now().AddDate(0, 0, -1).Format(license.ExpiryLayout)
	key, _ := generateLicense(t, srv, "device-1", past)

	resp, body := postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
		"license":   key,
	}, nil)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "LICENSE_EXPIRED", body["code"])
}

func TestAdminRequiresKey(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := map[string]any{
		"device_id": "device-1",
		"expiry":    futureExpiry(),
		"user_name": "Test User",
	}

	resp, _ := postJSON(t, srv.URL+"/api/admin/generate", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/admin/generate", payload,
		map[string]string{custommw.AdminKeyHeader: "wrong-key"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminGenerateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/admin/generate", map[string]any{
		"device_id": "device-1",
		"expiry":    "not-a-date",
		"user_name": "Test User",
	}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRevokeUserBlocksVerify(t *testing.T) {
	srv, _ := newTestServer(t)
	key, userID := generateLicense(t, srv, "device-1", futureExpiry())

	resp, _ := postJSON(t, srv.URL+"/api/admin/revoke-user", map[string]any{
		"user_id": userID,
		"reason":  "refund",
	}, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
		"license":   key,
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "USER_REVOKED", body["code"])

	resp, _ = postJSON(t, srv.URL+"/api/admin/unrevoke-user", map[string]any{
		"user_id": userID,
	}, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
		"license":   key,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRevokeDeviceBlocksVerify(t *testing.T) {
	srv, _ := newTestServer(t)
	key, _ := generateLicense(t, srv, "device-1", futureExpiry())

	resp, _ := postJSON(t, srv.URL+"/api/admin/revoke-device", map[string]any{
		"device_id": "device-1",
	}, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/api/verify", map[string]any{
		"device_id": "device-1",
		"license":   key,
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "DEVICE_REVOKED", body["code"])
}

func TestMarkPerfectFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	key, _ := generateLicense(t, srv, "device-1", futureExpiry())

	mark := func(attemptID string) (int, map[string]any) {
		resp, body := postJSON(t, srv.URL+"/api/progress/mark-perfect", map[string]any{
			"device_id":  "device-1",
			"license":    key,
			"test_id":    "algebra",
			"attempt_id": attemptID,
		}, nil)
		return resp.StatusCode, body
	}

	for i, want := range []struct {
		count   float64
		percent float64
	}{{1, 33}, {2, 67}, {3, 100}} {
		status, body := mark(fmt.Sprintf("attempt-%d", i))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, want.count, body["perfect_count"])
		assert.Equal(t, want.percent, body["percent"])
		assert.Equal(t, want.count == 3, body["completed"])
	}

	// Retry with an already-recorded attempt id
	status, body := mark("attempt-2")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["perfect_count"])
	assert.Equal(t, true, body["deduped"])
}

func TestAdminResetProgress(t *testing.T) {
	srv, _ := newTestServer(t)
	key, userID := generateLicense(t, srv, "device-1", futureExpiry())

	for i := 0; i < 3; i++ {
		resp, _ := postJSON(t, srv.URL+"/api/progress/mark-perfect", map[string]any{
			"device_id":  "device-1",
			"license":    key,
			"test_id":    "algebra",
			"attempt_id": fmt.Sprintf("attempt-%d", i),
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := postJSON(t, srv.URL+"/api/admin/reset-progress", map[string]any{
		"user_id": userID,
		"test_id": "algebra",
	}, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = postJSON(t, srv.URL+"/api/progress/get", map[string]any{
		"device_id": "device-1",
		"license":   key,
		"test_ids":  []string{"algebra"},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	algebra := body["data"].(map[string]any)["algebra"].(map[string]any)
	assert.Equal(t, float64(0), algebra["perfect_count"])
	assert.Equal(t, false, algebra["completed"])
}

func TestProgressGet(t *testing.T) {
	srv, _ := newTestServer(t)
	key, userID := generateLicense(t, srv, "device-1", futureExpiry())

	resp, _ := postJSON(t, srv.URL+"/api/progress/mark-perfect", map[string]any{
		"device_id": "device-1",
		"license":   key,
		"test_id":   "algebra",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/api/progress/get", map[string]any{
		"device_id": "device-1",
		"license":   key,
		"test_ids":  []string{"algebra", "geometry"},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, userID, body["user_id"])

	data := body["data"].(map[string]any)
	algebra := data["algebra"].(map[string]any)
	assert.Equal(t, float64(1), algebra["perfect_count"])
	assert.Equal(t, float64(33), algebra["percent"])

	geometry := data["geometry"].(map[string]any)
	assert.Equal(t, float64(0), geometry["perfect_count"])
	assert.Equal(t, false, geometry["completed"])
}

func TestProgressRequiresValidLicense(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/progress/mark-perfect", map[string]any{
		"device_id": "device-1",
		"license":   "garbage",
		"test_id":   "algebra",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Store)
}
