// Package binding implements the workshop-to-business license binding
// engine: the state machine that ties a workshop installation to a verified
// business through a hardware fingerprint and a signed token, and that
// enforces the one-business-per-workshop and bounded-workshops-per-business
// invariants.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wsbind/internal/audit"
	"wsbind/internal/fingerprint"
	"wsbind/internal/infrastructure"
	"wsbind/internal/registry"
	"wsbind/internal/store"
	"wsbind/internal/token"
	"wsbind/pkg/contracts/domain"
)

// TokenIssuer is the slice of the token service the engine depends on.
// Injected so tests can force issuance failures to exercise rollback.
type TokenIssuer interface {
	Issue(ctx context.Context, claims token.Claims, ttl time.Duration) (*token.Token, error)
	Verify(ctx context.Context, tokenHash string, presented token.Claims) error
	Revoke(ctx context.Context, tokenHash, reason string) error
	RevokeAllForBinding(ctx context.Context, workshopCode, businessLicense, reason string) (int, error)
}

// Config holds the engine's policy knobs
type Config struct {
	MaxWorkshopBindings   int
	MaxValidationFailures int
	MatchPolicy           fingerprint.MatchPolicy
	TokenTTL              time.Duration
}

// ValidationResult is the outcome of a successful validation
type ValidationResult struct {
	Match       fingerprint.MatchResult
	ValidatedAt time.Time
}

// Engine owns the lifecycle of workshop bindings. All mutating operations
// on a workshop code are serialized through per-key locks; the conflict
// check and the binding write execute as one atomic unit with respect to
// other operations on the same workshop or business.
type Engine struct {
	store   store.Store
	tokens  TokenIssuer
	gateway registry.Gateway
	trail   *audit.Trail
	cfg     Config
	clock   token.Clock
	locks   *keyedMutex
	metrics *infrastructure.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewEngine creates a binding engine. All collaborators are injected; pass
// fakes (fixed clock, failing issuer, static gateway) in tests.
func NewEngine(
	st store.Store,
	tokens TokenIssuer,
	gateway registry.Gateway,
	trail *audit.Trail,
	cfg Config,
	clock token.Clock,
	metrics *infrastructure.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:   st,
		tokens:  tokens,
		gateway: gateway,
		trail:   trail,
		cfg:     cfg,
		clock:   clock,
		locks:   newKeyedMutex(),
		metrics: metrics,
		tracer:  otel.Tracer("binding-engine"),
		logger:  logger.With(slog.String("component", "binding_engine")),
	}
}

// lockPair acquires the workshop lock, then the business lock. The order is
// fixed across all operations so cross-entity locking cannot deadlock.
func (e *Engine) lockPair(workshopCode, businessLicense string) func() {
	unlockWorkshop := e.locks.Lock("workshop:" + workshopCode)
	unlockBusiness := e.locks.Lock("business:" + businessLicense)
	return func() {
		unlockBusiness()
		unlockWorkshop()
	}
}

// Bind ties the workshop to the business, secured by the fingerprint, and
// issues a license token. Either the whole sequence succeeds or no state
// survives: a token issuance failure rolls back the tentative binding row.
func (e *Engine) Bind(ctx context.Context, workshopCode, businessLicense, displayName string, fp domain.Fingerprint) (*token.Token, error) {
	ctx, span := e.tracer.Start(ctx, "engine.bind",
		trace.WithAttributes(
			attribute.String("workshop_code", workshopCode),
			attribute.String("business_license", businessLicense),
		),
	)
	defer span.End()
	start := time.Now()

	unlock := e.lockPair(workshopCode, businessLicense)
	defer unlock()

	business, err := e.verifiedBusiness(ctx, businessLicense)
	if err != nil {
		e.observeBind(err)
		if KindOf(err) == KindBusinessNotVerified {
			e.trail.Record(ctx, domain.BindingEvent{
				WorkshopCode:    workshopCode,
				BusinessLicense: businessLicense,
				Action:          domain.ActionBindRejected,
				Metadata:        map[string]string{"reason": "business_not_verified"},
			})
		}
		return nil, err
	}

	if !fp.WellFormed() {
		err := NewError(KindFingerprintMalformed, "fingerprint is missing required fields")
		e.observeBind(err)
		return nil, err
	}

	activeBinding, err := e.store.ActiveBindingForWorkshop(ctx, workshopCode)
	if err != nil {
		e.observeBind(err)
		return nil, fmt.Errorf("failed to check workshop bindings: %w", err)
	}
	activeCount, err := e.store.ActiveBindingCount(ctx, businessLicense)
	if err != nil {
		e.observeBind(err)
		return nil, fmt.Errorf("failed to count business bindings: %w", err)
	}

	decision := CheckBindAllowed(workshopCode, businessLicense, ConflictState{
		ActiveBinding:       activeBinding,
		ActiveBindingCount:  activeCount,
		MaxWorkshopBindings: business.MaxWorkshopBindings,
	})
	if !decision.Allowed {
		err := NewError(KindBindingConflict, decision.Reason)
		e.observeBind(err)
		e.trail.Record(ctx, domain.BindingEvent{
			WorkshopCode:    workshopCode,
			BusinessLicense: businessLicense,
			Action:          domain.ActionBindRejected,
			Metadata:        map[string]string{"reason": decision.Reason},
		})
		return nil, err
	}

	// An existing row for the same pair, Active included, does not survive a
	// fresh bind: the re-bind replaces it and the new binding starts with a
	// clean failure counter. The replaced token is revoked once the new one
	// commits.
	var supersededTokenHash string
	if existing, err := e.store.Binding(ctx, workshopCode, businessLicense); err != nil {
		e.observeBind(err)
		return nil, fmt.Errorf("failed to check existing binding: %w", err)
	} else if existing != nil {
		supersededTokenHash = existing.LicenseKeyHash
		if err := e.store.DeleteBinding(ctx, workshopCode, businessLicense); err != nil {
			e.observeBind(err)
			return nil, fmt.Errorf("failed to replace existing binding: %w", err)
		}
	}

	digest := fingerprint.DigestOf(fp)
	now := e.clock.Now().UTC()
	newBinding := &domain.WorkshopBinding{
		WorkshopCode:        workshopCode,
		BusinessLicense:     businessLicense,
		WorkshopDisplayName: displayName,
		FingerprintDigest:   digest,
		Status:              domain.BindingStatusActive,
		ValidationFailures:  0,
		CreatedAt:           now,
	}
	if err := e.store.CreateBinding(ctx, newBinding); err != nil {
		e.observeBind(err)
		return nil, fmt.Errorf("failed to create binding: %w", err)
	}

	issued, err := e.tokens.Issue(ctx, token.Claims{
		WorkshopCode:    workshopCode,
		BusinessLicense: businessLicense,
		HardwareHash:    digest.PrimaryHash,
		BindingType:     "workshop",
	}, e.cfg.TokenTTL)
	if err != nil {
		// Two-phase commit over two stores: the binding row must not
		// outlive a failed issuance.
		if rollbackErr := e.store.DeleteBinding(ctx, workshopCode, businessLicense); rollbackErr != nil {
			e.logger.ErrorContext(ctx, "rollback failed after issuance failure",
				slog.String("workshop_code", workshopCode),
				slog.String("business_license", businessLicense),
				slog.String("error", rollbackErr.Error()),
			)
		}
		wrapped := WrapError(KindIssuanceFailed, "token issuance failed", err)
		e.observeBind(wrapped)
		e.trail.Record(ctx, domain.BindingEvent{
			WorkshopCode:    workshopCode,
			BusinessLicense: businessLicense,
			Action:          domain.ActionBindRejected,
			Metadata:        map[string]string{"reason": "issuance_failed"},
		})
		return nil, wrapped
	}

	newBinding.LicenseKeyHash = issued.Hash
	if err := e.store.UpdateBinding(ctx, newBinding); err != nil {
		if revokeErr := e.tokens.Revoke(ctx, issued.Hash, "bind commit failed"); revokeErr != nil {
			e.logger.ErrorContext(ctx, "failed to revoke token after commit failure",
				slog.String("token_hash", issued.Hash),
				slog.String("error", revokeErr.Error()),
			)
		}
		if rollbackErr := e.store.DeleteBinding(ctx, workshopCode, businessLicense); rollbackErr != nil {
			e.logger.ErrorContext(ctx, "rollback failed after commit failure",
				slog.String("workshop_code", workshopCode),
				slog.String("error", rollbackErr.Error()),
			)
		}
		e.observeBind(err)
		return nil, fmt.Errorf("failed to commit binding: %w", err)
	}

	if supersededTokenHash != "" && supersededTokenHash != issued.Hash {
		if err := e.tokens.Revoke(ctx, supersededTokenHash, "superseded by rebind"); err != nil {
			e.logger.WarnContext(ctx, "failed to revoke superseded token",
				slog.String("token_hash", supersededTokenHash),
				slog.String("error", err.Error()),
			)
		}
	}

	e.trail.Record(ctx, domain.BindingEvent{
		WorkshopCode:    workshopCode,
		BusinessLicense: businessLicense,
		Action:          domain.ActionBound,
		Metadata: map[string]string{
			"token_hash":   issued.Hash,
			"display_name": displayName,
		},
	})

	if e.metrics != nil {
		e.metrics.BindsTotal.WithLabelValues("success").Inc()
		e.metrics.TokensIssued.Inc()
		e.metrics.BindDuration.Observe(time.Since(start).Seconds())
	}

	e.logger.InfoContext(ctx, "workshop bound",
		slog.String("workshop_code", workshopCode),
		slog.String("business_license", businessLicense),
		slog.String("token_hash", issued.Hash),
		slog.Time("expires_at", issued.ExpiresAt),
	)

	return issued, nil
}

// Validate re-checks the workshop's fingerprint and token against the
// stored binding. Fingerprint drift within policy passes as tolerant; token
// failures count against the binding exactly like an unrecognized device.
func (e *Engine) Validate(ctx context.Context, workshopCode, businessLicense string, fp domain.Fingerprint) (*ValidationResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.validate",
		trace.WithAttributes(
			attribute.String("workshop_code", workshopCode),
			attribute.String("business_license", businessLicense),
		),
	)
	defer span.End()

	unlock := e.locks.Lock("workshop:" + workshopCode)
	defer unlock()

	binding, err := e.store.Binding(ctx, workshopCode, businessLicense)
	if err != nil {
		e.observeValidation("error")
		return nil, fmt.Errorf("failed to load binding: %w", err)
	}
	if binding == nil {
		e.observeValidation("not_bound")
		e.trail.Record(ctx, domain.BindingEvent{
			WorkshopCode:    workshopCode,
			BusinessLicense: businessLicense,
			Action:          domain.ActionValidationFailed,
			Metadata:        map[string]string{"reason": "not_bound"},
		})
		return nil, NewError(KindNotBound, "no binding exists for this workshop and business")
	}

	// A suspended binding never silently re-activates, even from a later
	// correct fingerprint. Reinstatement is an external admin operation.
	if binding.Status == domain.BindingStatusSuspended {
		e.observeValidation("suspended")
		e.trail.Record(ctx, domain.BindingEvent{
			WorkshopCode:    workshopCode,
			BusinessLicense: businessLicense,
			Action:          domain.ActionValidationFailed,
			Metadata:        map[string]string{"reason": "suspended"},
		})
		return nil, NewError(KindSuspended, "binding suspended after repeated validation failures")
	}

	// Malformed input is a caller error, not device drift; it does not
	// touch the failure counter.
	if !fp.WellFormed() {
		e.observeValidation("malformed")
		return nil, NewError(KindFingerprintMalformed, "fingerprint is missing required fields")
	}

	match := fingerprint.Match(binding.FingerprintDigest, fp, e.cfg.MatchPolicy)
	if !match.Pass() {
		return nil, e.recordValidationFailure(ctx, binding, ReasonMismatch)
	}

	if err := e.tokens.Verify(ctx, binding.LicenseKeyHash, token.Claims{
		WorkshopCode:    workshopCode,
		BusinessLicense: businessLicense,
		HardwareHash:    binding.FingerprintDigest.PrimaryHash,
	}); err != nil {
		reason, ok := tokenFailureReason(err)
		if !ok {
			e.observeValidation("error")
			return nil, fmt.Errorf("token verification failed: %w", err)
		}
		// A revoked or expired token is treated identically to an
		// unrecognized device for trust purposes.
		return nil, e.recordValidationFailure(ctx, binding, reason)
	}

	now := e.clock.Now().UTC()
	binding.LastValidatedAt = &now
	// validation_failures is deliberately not reset here: failures
	// accumulate until the next successful bind or an explicit admin
	// action.
	if err := e.store.UpdateBinding(ctx, binding); err != nil {
		e.observeValidation("error")
		return nil, fmt.Errorf("failed to record validation: %w", err)
	}

	e.observeValidation(match.String())
	e.logger.DebugContext(ctx, "binding validated",
		slog.String("workshop_code", workshopCode),
		slog.String("business_license", businessLicense),
		slog.String("match", match.String()),
	)

	return &ValidationResult{Match: match, ValidatedAt: now}, nil
}

// recordValidationFailure increments the failure counter, suspends the
// binding when the ceiling is reached, and returns the Invalid error for
// the caller.
func (e *Engine) recordValidationFailure(ctx context.Context, binding *domain.WorkshopBinding, reason string) error {
	binding.ValidationFailures++
	suspended := false
	if binding.ValidationFailures >= e.cfg.MaxValidationFailures {
		binding.Status = domain.BindingStatusSuspended
		suspended = true
	}

	if err := e.store.UpdateBinding(ctx, binding); err != nil {
		e.observeValidation("error")
		return fmt.Errorf("failed to record validation failure: %w", err)
	}

	metadata := map[string]string{
		"reason":   reason,
		"failures": fmt.Sprintf("%d", binding.ValidationFailures),
	}
	e.trail.Record(ctx, domain.BindingEvent{
		WorkshopCode:    binding.WorkshopCode,
		BusinessLicense: binding.BusinessLicense,
		Action:          domain.ActionValidationFailed,
		Metadata:        metadata,
	})

	if suspended {
		e.trail.Record(ctx, domain.BindingEvent{
			WorkshopCode:    binding.WorkshopCode,
			BusinessLicense: binding.BusinessLicense,
			Action:          domain.ActionSuspended,
			Metadata:        metadata,
		})
		if e.metrics != nil {
			e.metrics.SuspensionsTotal.Inc()
		}
		e.logger.WarnContext(ctx, "binding suspended",
			slog.String("workshop_code", binding.WorkshopCode),
			slog.String("business_license", binding.BusinessLicense),
			slog.Int("failures", binding.ValidationFailures),
		)
	}

	e.observeValidation(reason)
	return NewError(KindInvalid, reason)
}

// Unbind revokes every token issued for the pair and removes the binding.
// Unbinding an already-unbound pair fails with NotBound; callers that
// cannot distinguish "never bound" from "already unbound" must treat that
// as non-fatal.
func (e *Engine) Unbind(ctx context.Context, workshopCode, businessLicense, reason string) error {
	ctx, span := e.tracer.Start(ctx, "engine.unbind",
		trace.WithAttributes(
			attribute.String("workshop_code", workshopCode),
			attribute.String("business_license", businessLicense),
		),
	)
	defer span.End()

	unlock := e.lockPair(workshopCode, businessLicense)
	defer unlock()

	binding, err := e.store.Binding(ctx, workshopCode, businessLicense)
	if err != nil {
		e.observeUnbind("error")
		return fmt.Errorf("failed to load binding: %w", err)
	}
	if binding == nil {
		e.observeUnbind("not_bound")
		return NewError(KindNotBound, "no binding exists for this workshop and business")
	}

	if reason == "" {
		reason = "unbound"
	}

	// Sweep every token ever issued for the pair, not just the current
	// license_key_hash, in case an older token was never rotated out.
	revoked, err := e.tokens.RevokeAllForBinding(ctx, workshopCode, businessLicense, reason)
	if err != nil {
		e.observeUnbind("error")
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}

	if err := e.store.DeleteBinding(ctx, workshopCode, businessLicense); err != nil {
		e.observeUnbind("error")
		return fmt.Errorf("failed to remove binding: %w", err)
	}

	e.trail.Record(ctx, domain.BindingEvent{
		WorkshopCode:    workshopCode,
		BusinessLicense: businessLicense,
		Action:          domain.ActionUnbound,
		Metadata: map[string]string{
			"reason":         reason,
			"tokens_revoked": fmt.Sprintf("%d", revoked),
		},
	})

	if e.metrics != nil {
		e.metrics.UnbindsTotal.WithLabelValues("success").Inc()
		e.metrics.TokensRevoked.Add(float64(revoked))
	}

	e.logger.InfoContext(ctx, "workshop unbound",
		slog.String("workshop_code", workshopCode),
		slog.String("business_license", businessLicense),
		slog.Int("tokens_revoked", revoked),
	)

	return nil
}

// ListBindings returns the business's bindings for read-only reporting
func (e *Engine) ListBindings(ctx context.Context, businessLicense string) ([]domain.WorkshopBinding, error) {
	return e.store.BindingsForBusiness(ctx, businessLicense)
}

// verifiedBusiness consults the gateway and the local business record. The
// gateway is authoritative for the verification status; the local record
// carries the binding limit policy and is created on first successful
// verification.
func (e *Engine) verifiedBusiness(ctx context.Context, businessLicense string) (*domain.BusinessEntity, error) {
	result, err := e.gateway.Verify(ctx, businessLicense)
	if err != nil {
		if errors.Is(err, registry.ErrUnavailable) {
			return nil, WrapError(KindGatewayUnavailable, "verification gateway unavailable", err)
		}
		return nil, fmt.Errorf("gateway verification failed: %w", err)
	}
	if result.Status != registry.StatusVerified {
		return nil, NewError(KindBusinessNotVerified,
			fmt.Sprintf("business %s is %s", businessLicense, result.Status))
	}

	business, err := e.store.Business(ctx, businessLicense)
	if err != nil {
		return nil, fmt.Errorf("failed to load business: %w", err)
	}

	now := e.clock.Now().UTC()
	if business == nil {
		business = &domain.BusinessEntity{
			LicenseNumber:       businessLicense,
			BusinessName:        result.BusinessName,
			VerificationStatus:  domain.VerificationVerified,
			MaxWorkshopBindings: e.cfg.MaxWorkshopBindings,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := e.store.PutBusiness(ctx, business); err != nil {
			return nil, fmt.Errorf("failed to store business: %w", err)
		}
		return business, nil
	}

	if business.VerificationStatus != domain.VerificationVerified {
		business.VerificationStatus = domain.VerificationVerified
		business.UpdatedAt = now
		if err := e.store.PutBusiness(ctx, business); err != nil {
			return nil, fmt.Errorf("failed to update business: %w", err)
		}
	}
	return business, nil
}

// tokenFailureReason maps token verification errors to validation failure
// reasons. Returns false for storage-level errors that should propagate.
func tokenFailureReason(err error) (string, bool) {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ReasonExpired, true
	case errors.Is(err, token.ErrRevoked):
		return ReasonRevoked, true
	case errors.Is(err, token.ErrClaimMismatch), errors.Is(err, token.ErrUnknownToken):
		return ReasonClaimMismatch, true
	default:
		return "", false
	}
}

func (e *Engine) observeBind(err error) {
	if e.metrics == nil {
		return
	}
	result := "error"
	if kind := KindOf(err); kind != "" {
		result = string(kind)
	}
	e.metrics.BindsTotal.WithLabelValues(result).Inc()
}

func (e *Engine) observeValidation(result string) {
	if e.metrics != nil {
		e.metrics.ValidationsTotal.WithLabelValues(result).Inc()
	}
}

func (e *Engine) observeUnbind(result string) {
	if e.metrics != nil {
		e.metrics.UnbindsTotal.WithLabelValues(result).Inc()
	}
}
