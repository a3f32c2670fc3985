package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "examgate/internal/errors"
	"examgate/internal/infrastructure"
	"examgate/internal/license"
)

// AdminHandler handles privileged license management endpoints. The router
// mounts it behind the admin-key middleware.
type AdminHandler struct {
	engine *license.Engine
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(engine *license.Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		engine: engine,
		logger: logger.With(slog.String("handler", "admin")),
	}
}

// Routes returns a chi router for admin endpoints
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate", h.Generate)
	r.Post("/revoke-device", h.RevokeDevice)
	r.Post("/unrevoke-device", h.UnrevokeDevice)
	r.Post("/revoke-user", h.RevokeUser)
	r.Post("/unrevoke-user", h.UnrevokeUser)
	r.Post("/reset-progress", h.ResetProgress)
	return r
}

// Generate handles POST /api/admin/generate
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("admin-handler")

	ctx, span := tracer.Start(ctx, "admin_handler.generate",
		trace.WithAttributes(attribute.String("http.route", "/api/admin/generate")),
	)
	defer span.End()

	data := &GenerateRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path).
			WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)))
		return
	}

	result, err := h.engine.AdminGenerate(ctx, license.GenerateParams{
		DeviceID:    data.DeviceID,
		Expiry:      data.Expiry,
		UserID:      data.UserID,
		DisplayName: data.UserName,
		ExamDate:    data.ParsedExamDate(),
	})
	if err != nil {
		span.RecordError(err)
		h.logger.ErrorContext(ctx, "license generation failed",
			slog.String("device_id", data.DeviceID),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	h.logger.InfoContext(ctx, "license generated",
		slog.String("user_id", result.UserID),
		slog.String("expiry", result.Expiry))

	render.JSON(w, r, result)
}

// RevocationResponse acknowledges a revocation toggle
type RevocationResponse struct {
	Success  bool   `json:"success"`
	TargetID string `json:"target_id"`
	Revoked  bool   `json:"revoked"`
}

// RevokeDevice handles POST /api/admin/revoke-device
func (h *AdminHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	h.toggleDevice(w, r, true)
}

// UnrevokeDevice handles POST /api/admin/unrevoke-device
func (h *AdminHandler) UnrevokeDevice(w http.ResponseWriter, r *http.Request) {
	h.toggleDevice(w, r, false)
}

func (h *AdminHandler) toggleDevice(w http.ResponseWriter, r *http.Request, revoke bool) {
	ctx := r.Context()

	data := &RevokeDeviceRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path))
		return
	}

	var err error
	if revoke {
		err = h.engine.RevokeDevice(ctx, data.DeviceID, data.Reason)
	} else {
		err = h.engine.UnrevokeDevice(ctx, data.DeviceID)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "device revocation toggle failed",
			slog.String("device_id", data.DeviceID),
			slog.Bool("revoke", revoke),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewInternal(r.URL.Path))
		return
	}

	render.JSON(w, r, RevocationResponse{Success: true, TargetID: data.DeviceID, Revoked: revoke})
}

// RevokeUser handles POST /api/admin/revoke-user
func (h *AdminHandler) RevokeUser(w http.ResponseWriter, r *http.Request) {
	h.toggleUser(w, r, true)
}

// UnrevokeUser handles POST /api/admin/unrevoke-user
func (h *AdminHandler) UnrevokeUser(w http.ResponseWriter, r *http.Request) {
	h.toggleUser(w, r, false)
}

func (h *AdminHandler) toggleUser(w http.ResponseWriter, r *http.Request, revoke bool) {
	ctx := r.Context()

	data := &RevokeUserRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path))
		return
	}

	var err error
	if revoke {
		err = h.engine.RevokeUser(ctx, data.UserID, data.Reason)
	} else {
		err = h.engine.UnrevokeUser(ctx, data.UserID)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "user revocation toggle failed",
			slog.String("user_id", data.UserID),
			slog.Bool("revoke", revoke),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewInternal(r.URL.Path))
		return
	}

	render.JSON(w, r, RevocationResponse{Success: true, TargetID: data.UserID, Revoked: revoke})
}

// ResetProgressResponse acknowledges a progress reset
type ResetProgressResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	TestID  string `json:"test_id"`
}

// ResetProgress handles POST /api/admin/reset-progress
func (h *AdminHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &ResetProgressRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path))
		return
	}

	if err := h.engine.ResetProgress(ctx, data.UserID, data.TestID); err != nil {
		h.logger.ErrorContext(ctx, "progress reset failed",
			slog.String("user_id", data.UserID),
			slog.String("test_id", data.TestID),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewInternal(r.URL.Path))
		return
	}

	render.JSON(w, r, ResetProgressResponse{Success: true, UserID: data.UserID, TestID: data.TestID})
}
