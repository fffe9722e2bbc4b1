package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	apierrors "wsbind/internal/errors"
	"wsbind/internal/services"
	"wsbind/pkg/contracts/domain"
)

// AuditStream is the live side of the audit trail consumed by the
// websocket endpoint
type AuditStream interface {
	Subscribe() (<-chan domain.BindingEvent, func())
}

// AuditHandler exposes the append-only audit trail to compliance
// consumers: a paged listing and a live websocket stream. Consumers get no
// write access.
type AuditHandler struct {
	service  services.BindingService
	stream   AuditStream
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(service services.BindingService, stream AuditStream, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		stream:  stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With(slog.String("handler", "audit")),
	}
}

// Routes returns a chi router for the audit endpoints
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.ListEvents)
	r.Get("/stream", h.Stream)
	return r
}

// ListEvents handles GET /api/audit/events
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.AuditEvents(r.Context(), auditFilterFromRequest(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list audit events",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	if events == nil {
		events = []domain.BindingEvent{}
	}
	render.JSON(w, r, map[string]any{"events": events})
}

const (
	streamWriteWait = 10 * time.Second
	streamPingEvery = 30 * time.Second
)

// Stream handles GET /api/audit/stream: upgrades to a websocket and pushes
// binding events as they are recorded.
func (h *AuditHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	events, cancel := h.stream.Subscribe()
	defer cancel()

	// Drain client frames so close messages are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.DebugContext(r.Context(), "audit stream client gone",
					slog.String("error", err.Error()),
				)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
