// Package audit provides the append-only binding event trail. Recording is
// best-effort: a failure to persist or deliver an event never fails the
// binding operation that produced it.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wsbind/internal/store"
	"wsbind/pkg/contracts/domain"
)

// Store is the persistence the trail needs
type Store interface {
	AppendAuditEvent(ctx context.Context, event domain.BindingEvent) error
	AuditEvents(ctx context.Context, filter store.AuditFilter) ([]domain.BindingEvent, error)
}

// Trail is the audit event sink. It persists events, logs them, and fans
// them out to live subscribers (the websocket stream).
type Trail struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan domain.BindingEvent
	nextID int
}

// NewTrail creates an audit trail over the given store
func NewTrail(st Store, logger *slog.Logger) *Trail {
	return &Trail{
		store:  st,
		logger: logger.With(slog.String("component", "audit_trail")),
		subs:   make(map[int]chan domain.BindingEvent),
	}
}

// Record appends an event to the trail. Missing ID and timestamp are filled
// in. Store failures are logged and swallowed; audit durability is secondary
// to binding correctness.
func (t *Trail) Record(ctx context.Context, event domain.BindingEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := t.store.AppendAuditEvent(ctx, event); err != nil {
		t.logger.ErrorContext(ctx, "failed to persist audit event",
			slog.String("event_id", event.ID),
			slog.String("action", string(event.Action)),
			slog.String("error", err.Error()),
		)
	}

	t.logger.InfoContext(ctx, "binding event",
		slog.String("event_id", event.ID),
		slog.String("workshop_code", event.WorkshopCode),
		slog.String("business_license", event.BusinessLicense),
		slog.String("action", string(event.Action)),
	)

	t.mu.Lock()
	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block the engine.
		}
	}
	t.mu.Unlock()
}

// List returns recorded events matching the filter, newest first
func (t *Trail) List(ctx context.Context, filter store.AuditFilter) ([]domain.BindingEvent, error) {
	return t.store.AuditEvents(ctx, filter)
}

// Subscribe registers a live event subscriber. The returned cancel function
// must be called to release the subscription.
func (t *Trail) Subscribe() (<-chan domain.BindingEvent, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan domain.BindingEvent, 16)
	t.subs[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existing, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}
