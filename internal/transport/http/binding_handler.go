// Package http provides the HTTP transport layer: the binding API, the
// audit endpoints and health checks.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wsbind/internal/binding"
	apierrors "wsbind/internal/errors"
	"wsbind/internal/services"
	"wsbind/internal/store"
	"wsbind/pkg/contracts/domain"
)

var validate = validator.New()

// BindingHandler handles binding API requests
type BindingHandler struct {
	service services.BindingService
	logger  *slog.Logger
}

// NewBindingHandler creates a new binding handler
func NewBindingHandler(service services.BindingService, logger *slog.Logger) *BindingHandler {
	return &BindingHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "binding")),
	}
}

// Routes returns a chi router for the binding endpoints
func (h *BindingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Post("/bindings", h.Bind)
	r.Delete("/bindings", h.Unbind)
	r.Post("/bindings/validate", h.Validate)
	r.Get("/businesses/{license}/bindings", h.ListBindings)

	return r
}

// bindRequestPayload wraps the contract type to implement render.Binder
type bindRequestPayload struct {
	domain.BindRequest
}

// Bind implements the render.Binder interface
func (p *bindRequestPayload) Bind(r *http.Request) error {
	return validate.Struct(&p.BindRequest)
}

type validateRequestPayload struct {
	domain.ValidateRequest
}

// Bind implements the render.Binder interface
func (p *validateRequestPayload) Bind(r *http.Request) error {
	return validate.Struct(&p.ValidateRequest)
}

type unbindRequestPayload struct {
	domain.UnbindRequest
}

// Bind implements the render.Binder interface
func (p *unbindRequestPayload) Bind(r *http.Request) error {
	return validate.Struct(&p.UnbindRequest)
}

// Bind handles POST /api/bindings
func (h *BindingHandler) Bind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("binding-handler")
	ctx, span := tracer.Start(ctx, "binding_handler.bind",
		trace.WithAttributes(attribute.String("http.route", "/api/bindings")),
	)
	defer span.End()

	payload := &bindRequestPayload{}
	if err := render.Bind(r, payload); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	resp, err := h.service.Bind(ctx, payload.BindRequest)
	if err != nil {
		h.renderBindingError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Validate handles POST /api/bindings/validate
func (h *BindingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload := &validateRequestPayload{}
	if err := render.Bind(r, payload); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	resp, err := h.service.Validate(ctx, payload.ValidateRequest)
	if err != nil {
		h.renderBindingError(w, r, err)
		return
	}

	render.JSON(w, r, resp)
}

// Unbind handles DELETE /api/bindings
func (h *BindingHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload := &unbindRequestPayload{}
	if err := render.Bind(r, payload); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	if err := h.service.Unbind(ctx, payload.UnbindRequest); err != nil {
		h.renderBindingError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{"success": true})
}

// ListBindings handles GET /api/businesses/{license}/bindings
func (h *BindingHandler) ListBindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	license := chi.URLParam(r, "license")
	if license == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInvalidRequest))
		return
	}

	bindings, err := h.service.ListBindings(ctx, license)
	if err != nil {
		h.renderBindingError(w, r, err)
		return
	}
	if bindings == nil {
		bindings = []domain.WorkshopBinding{}
	}

	render.JSON(w, r, map[string]any{
		"business_license": license,
		"bindings":         bindings,
	})
}

// renderBindingError maps typed engine errors to API error responses. No
// internal hashes or stack traces are exposed; the reason string is the
// operator-facing explanation.
func (h *BindingHandler) renderBindingError(w http.ResponseWriter, r *http.Request, err error) {
	bindingErr, ok := binding.AsError(err)
	if !ok {
		h.logger.ErrorContext(r.Context(), "unexpected binding failure",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	var apiErr *apierrors.APIError
	switch bindingErr.Kind {
	case binding.KindBusinessNotVerified:
		apiErr = apierrors.New(http.StatusPreconditionFailed, apierrors.CodeBusinessNotVerified, bindingErr.Reason)
	case binding.KindFingerprintMalformed:
		apiErr = apierrors.New(http.StatusBadRequest, apierrors.CodeFingerprintMalformed, bindingErr.Reason)
	case binding.KindBindingConflict:
		apiErr = apierrors.New(http.StatusConflict, apierrors.CodeBindingConflict, bindingErr.Reason)
	case binding.KindIssuanceFailed:
		apiErr = apierrors.New(http.StatusInternalServerError, apierrors.CodeIssuanceFailed, "license token issuance failed")
	case binding.KindNotBound:
		apiErr = apierrors.New(http.StatusNotFound, apierrors.CodeNotBound, bindingErr.Reason)
	case binding.KindSuspended:
		apiErr = apierrors.New(http.StatusLocked, apierrors.CodeSuspended, bindingErr.Reason)
	case binding.KindInvalid:
		apiErr = apierrors.NewWithDetails(http.StatusUnauthorized, apierrors.CodeInvalidBinding,
			"binding validation failed", map[string]string{"reason": bindingErr.Reason})
	case binding.KindGatewayUnavailable:
		apiErr = apierrors.ErrGatewayUnavailable
	default:
		apiErr = apierrors.ErrInternalServer
	}

	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

// parseLimit parses the limit query parameter with a default
func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	return limit
}

// auditFilterFromRequest builds an audit filter from query parameters
func auditFilterFromRequest(r *http.Request) store.AuditFilter {
	return store.AuditFilter{
		WorkshopCode:    r.URL.Query().Get("workshop_code"),
		BusinessLicense: r.URL.Query().Get("business_license"),
		Limit:           parseLimit(r, 100),
	}
}
