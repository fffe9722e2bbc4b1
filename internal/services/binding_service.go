// Package services provides the business-logic layer between the HTTP
// transport and the binding engine.
package services

import (
	"context"
	"log/slog"
	"time"

	"wsbind/internal/binding"
	"wsbind/internal/store"
	"wsbind/pkg/contracts/domain"
)

// BindingService is the operation surface exposed to the transport layer
type BindingService interface {
	Bind(ctx context.Context, req domain.BindRequest) (*domain.BindResponse, error)
	Validate(ctx context.Context, req domain.ValidateRequest) (*domain.ValidateResponse, error)
	Unbind(ctx context.Context, req domain.UnbindRequest) error
	ListBindings(ctx context.Context, businessLicense string) ([]domain.WorkshopBinding, error)
	AuditEvents(ctx context.Context, filter store.AuditFilter) ([]domain.BindingEvent, error)
}

// bindingService is the engine-backed implementation
type bindingService struct {
	engine *binding.Engine
	trail  AuditReader
	logger *slog.Logger
}

// AuditReader is the read side of the audit trail used for reporting
type AuditReader interface {
	List(ctx context.Context, filter store.AuditFilter) ([]domain.BindingEvent, error)
}

// NewBindingService creates a binding service over the engine
func NewBindingService(engine *binding.Engine, trail AuditReader, logger *slog.Logger) BindingService {
	return &bindingService{
		engine: engine,
		trail:  trail,
		logger: logger.With(slog.String("service", "binding")),
	}
}

// Bind performs a bind and shapes the response for the API
func (s *bindingService) Bind(ctx context.Context, req domain.BindRequest) (*domain.BindResponse, error) {
	issued, err := s.engine.Bind(ctx, req.WorkshopCode, req.BusinessLicense, req.WorkshopDisplayName, req.Fingerprint)
	if err != nil {
		s.logger.WarnContext(ctx, "bind failed",
			slog.String("workshop_code", req.WorkshopCode),
			slog.String("business_license", req.BusinessLicense),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return &domain.BindResponse{
		WorkshopCode:    req.WorkshopCode,
		BusinessLicense: req.BusinessLicense,
		Token:           issued.Signed,
		TokenHash:       issued.Hash,
		ExpiresAt:       issued.ExpiresAt,
		BoundAt:         time.Now().UTC(),
	}, nil
}

// Validate performs a validation and shapes the response for the API
func (s *bindingService) Validate(ctx context.Context, req domain.ValidateRequest) (*domain.ValidateResponse, error) {
	result, err := s.engine.Validate(ctx, req.WorkshopCode, req.BusinessLicense, req.Fingerprint)
	if err != nil {
		return nil, err
	}

	return &domain.ValidateResponse{
		Valid:       true,
		Match:       result.Match.String(),
		ValidatedAt: result.ValidatedAt,
	}, nil
}

// Unbind removes the binding and revokes its tokens
func (s *bindingService) Unbind(ctx context.Context, req domain.UnbindRequest) error {
	return s.engine.Unbind(ctx, req.WorkshopCode, req.BusinessLicense, req.Reason)
}

// ListBindings returns the business's bindings for reporting
func (s *bindingService) ListBindings(ctx context.Context, businessLicense string) ([]domain.WorkshopBinding, error) {
	return s.engine.ListBindings(ctx, businessLicense)
}

// AuditEvents lists audit events for compliance reporting
func (s *bindingService) AuditEvents(ctx context.Context, filter store.AuditFilter) ([]domain.BindingEvent, error) {
	return s.trail.List(ctx, filter)
}
