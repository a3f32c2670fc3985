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

// ProgressHandler handles perfect-completion progress endpoints. Both
// endpoints run the full license authorization pipeline before touching
// progress state.
type ProgressHandler struct {
	engine *license.Engine
	logger *slog.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(engine *license.Engine, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{
		engine: engine,
		logger: logger.With(slog.String("handler", "progress")),
	}
}

// Routes returns a chi router for progress endpoints
func (h *ProgressHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/get", h.Get)
	r.Post("/mark-perfect", h.MarkPerfect)
	return r
}

// Get handles POST /api/progress/get
func (h *ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &ProgressGetRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path))
		return
	}

	result, err := h.engine.GetProgress(ctx, data.DeviceID, data.License, data.TestIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "progress read rejected",
			slog.String("device_id", data.DeviceID),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	render.JSON(w, r, result)
}

// MarkPerfect handles POST /api/progress/mark-perfect
func (h *ProgressHandler) MarkPerfect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("progress-handler")

	ctx, span := tracer.Start(ctx, "progress_handler.mark_perfect",
		trace.WithAttributes(attribute.String("http.route", "/api/progress/mark-perfect")),
	)
	defer span.End()

	data := &MarkPerfectRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		render.Render(w, r, apperrors.NewInvalidRequest(err.Error(), r.URL.Path))
		return
	}

	span.SetAttributes(attribute.String("progress.test_id", data.TestID))

	result, err := h.engine.MarkPerfect(ctx, data.DeviceID, data.License, data.TestID, data.AttemptID)
	if err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "mark perfect rejected",
			slog.String("device_id", data.DeviceID),
			slog.String("test_id", data.TestID),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	span.SetAttributes(
		attribute.Int("progress.perfect_count", result.PerfectCount),
		attribute.Bool("progress.deduped", result.Deduped),
	)

	render.JSON(w, r, result)
}
