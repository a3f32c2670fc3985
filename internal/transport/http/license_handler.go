package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "examgate/internal/errors"
	"examgate/internal/infrastructure"
	"examgate/internal/license"
	custommw "examgate/internal/middleware"
)

// LicenseHandler handles license verification requests
type LicenseHandler struct {
	engine *license.Engine
	logger *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(engine *license.Engine, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		engine: engine,
		logger: logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/verify", h.Verify)
	return r
}

// VerifyResponse is the success payload of POST /api/verify
type VerifyResponse struct {
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name"`
	ExamDate  *time.Time `json:"exam_date,omitempty"`
	Expiry    string     `json:"expiry"`
	Bound     bool       `json:"bound"`
	FirstBind bool       `json:"first_bind"`
}

// Verify handles POST /api/verify
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := custommw.GetReqID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.verify",
		trace.WithAttributes(
			attribute.String("http.route", "/api/verify"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &VerifyRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path).
			WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)))
		return
	}

	span.SetAttributes(attribute.String("license.device_id", data.DeviceID))

	result, err := h.engine.Verify(ctx, data.DeviceID, data.License)
	if err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "verify rejected",
			slog.String("device_id", data.DeviceID),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	span.SetAttributes(
		attribute.Bool("license.first_bind", result.FirstBind),
		attribute.String("license.user_id", result.UserID),
	)

	render.JSON(w, r, VerifyResponse{
		UserID:    result.UserID,
		UserName:  result.DisplayName,
		ExamDate:  result.ExamDate,
		Expiry:    result.Expiry,
		Bound:     true,
		FirstBind: result.FirstBind,
	})
}
