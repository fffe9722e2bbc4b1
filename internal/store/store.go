// Package store defines the persistence boundary of the binding engine and
// provides SQLite-backed and in-memory implementations. The logical layout
// is one collection for businesses, one for workshop bindings keyed by
// workshop code, the issued-token index, the append-only revocation set and
// the audit event log.
package store

import (
	"context"
	"errors"

	"wsbind/pkg/contracts/domain"
)

// ErrDuplicateBinding indicates a binding row already exists for the
// workshop+business pair
var ErrDuplicateBinding = errors.New("store: binding already exists")

// ErrBindingNotFound indicates the requested binding row does not exist
var ErrBindingNotFound = errors.New("store: binding not found")

// AuditFilter narrows an audit event listing. Zero values match everything.
type AuditFilter struct {
	WorkshopCode    string
	BusinessLicense string
	Limit           int
}

// Store is the full persistence interface of the engine. Getters return
// (nil, nil) when the record does not exist; errors are reserved for
// storage failures.
type Store interface {
	// Businesses
	Business(ctx context.Context, licenseNumber string) (*domain.BusinessEntity, error)
	PutBusiness(ctx context.Context, business *domain.BusinessEntity) error

	// Workshop bindings
	Binding(ctx context.Context, workshopCode, businessLicense string) (*domain.WorkshopBinding, error)
	ActiveBindingForWorkshop(ctx context.Context, workshopCode string) (*domain.WorkshopBinding, error)
	ActiveBindingCount(ctx context.Context, businessLicense string) (int, error)
	BindingsForBusiness(ctx context.Context, businessLicense string) ([]domain.WorkshopBinding, error)
	CreateBinding(ctx context.Context, binding *domain.WorkshopBinding) error
	UpdateBinding(ctx context.Context, binding *domain.WorkshopBinding) error
	DeleteBinding(ctx context.Context, workshopCode, businessLicense string) error

	// Issued tokens and revocations
	RecordIssuedToken(ctx context.Context, issued domain.IssuedToken) error
	IssuedToken(ctx context.Context, tokenHash string) (*domain.IssuedToken, error)
	IssuedTokenHashes(ctx context.Context, workshopCode, businessLicense string) ([]string, error)
	AddRevocation(ctx context.Context, record domain.RevocationRecord) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)

	// Audit trail
	AppendAuditEvent(ctx context.Context, event domain.BindingEvent) error
	AuditEvents(ctx context.Context, filter AuditFilter) ([]domain.BindingEvent, error)

	Close() error
}
