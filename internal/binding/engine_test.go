package binding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsbind/internal/audit"
	"wsbind/internal/fingerprint"
	"wsbind/internal/infrastructure"
	"wsbind/internal/registry"
	"wsbind/internal/shared/testutil"
	"wsbind/internal/store"
	"wsbind/internal/token"
	"wsbind/pkg/contracts/domain"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyIssuer wraps the real token service and fails Issue on demand
type flakyIssuer struct {
	*token.Service
	failIssue bool
}

func (f *flakyIssuer) Issue(ctx context.Context, claims token.Claims, ttl time.Duration) (*token.Token, error) {
	if f.failIssue {
		return nil, errors.New("signing backend offline")
	}
	return f.Service.Issue(ctx, claims, ttl)
}

// unavailableGateway always reports an outage
type unavailableGateway struct{}

func (unavailableGateway) Verify(context.Context, string) (registry.VerificationResult, error) {
	return registry.VerificationResult{}, registry.ErrUnavailable
}

type fixture struct {
	store   *store.MemoryStore
	gateway *registry.StaticGateway
	tokens  *token.Service
	issuer  *flakyIssuer
	clock   *fixedClock
	engine  *Engine
	handler *testutil.BufferedSlogHandler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore()

	tokens, err := token.NewService("test-master-key-material", "binding-tokens-v1", st, clock, logger)
	require.NoError(t, err)

	gateway := registry.NewStaticGateway(map[string]string{
		"1234567": "verified",
		"7654321": "verified",
		"5550001": "pending",
		"5550002": "rejected",
	})

	issuer := &flakyIssuer{Service: tokens}
	trail := audit.NewTrail(st, logger)
	metrics := infrastructure.NewMetrics(prometheus.NewRegistry())

	engine := NewEngine(st, issuer, gateway, trail, cfg, clock, metrics, logger)
	return &fixture{
		store:   st,
		gateway: gateway,
		tokens:  tokens,
		issuer:  issuer,
		clock:   clock,
		engine:  engine,
		handler: handler,
	}
}

func defaultConfig() Config {
	return Config{
		MaxWorkshopBindings:   10,
		MaxValidationFailures: 10,
		MatchPolicy:           fingerprint.MatchPolicy{MaxComponentDrift: 1},
		TokenTTL:              time.Hour,
	}
}

func deviceFingerprint(cpu, mac string) domain.Fingerprint {
	stable := []domain.Component{
		{Name: "cpu_id", Value: cpu},
		{Name: "hostname", Value: "workshop-pc"},
		{Name: "os", Value: "linux"},
		{Name: "platform", Value: "amd64"},
	}
	volatile := []domain.Component{
		{Name: "mac_address", Value: mac},
	}
	return domain.Fingerprint{
		PrimaryHash:   fingerprint.HashComponents(stable),
		SecondaryHash: fingerprint.HashComponents(volatile),
		Components:    append(stable, volatile...),
	}
}

func (fx *fixture) auditActions(t *testing.T) []domain.BindingAction {
	t.Helper()
	events, err := fx.store.AuditEvents(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	actions := make([]domain.BindingAction, len(events))
	for i, event := range events {
		actions[i] = event.Action
	}
	return actions
}

func TestBindSuccess(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa:bb:cc:dd:ee:ff")

	issued, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Main Street Garage", fp)
	require.NoError(t, err)
	require.NotNil(t, issued)
	assert.NotEmpty(t, issued.Signed)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, domain.BindingStatusActive, binding.Status)
	assert.Equal(t, issued.Hash, binding.LicenseKeyHash)
	assert.Equal(t, 0, binding.ValidationFailures)
	assert.Equal(t, fp.PrimaryHash, binding.FingerprintDigest.PrimaryHash)
	assert.Equal(t, "Main Street Garage", binding.WorkshopDisplayName)

	// The business record is created on first verified bind
	business, err := fx.store.Business(ctx, "1234567")
	require.NoError(t, err)
	require.NotNil(t, business)
	assert.Equal(t, domain.VerificationVerified, business.VerificationStatus)
	assert.Equal(t, 10, business.MaxWorkshopBindings)

	assert.Contains(t, fx.auditActions(t), domain.ActionBound)
}

func TestBindBusinessNotVerified(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa:bb:cc:dd:ee:ff")

	tests := []struct {
		name    string
		license string
	}{
		{"pending business", "5550001"},
		{"rejected business", "5550002"},
		{"unknown business", "9999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.engine.Bind(ctx, "WS-001", tt.license, "Garage", fp)
			require.Error(t, err)
			assert.Equal(t, KindBusinessNotVerified, KindOf(err))

			binding, err := fx.store.Binding(ctx, "WS-001", tt.license)
			require.NoError(t, err)
			assert.Nil(t, binding)
		})
	}

	assert.Contains(t, fx.auditActions(t), domain.ActionBindRejected)
}

func TestBindGatewayUnavailable(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	logger, _ := testutil.NewTestLogger(t)
	trail := audit.NewTrail(fx.store, logger)
	engine := NewEngine(fx.store, fx.issuer, unavailableGateway{}, trail, defaultConfig(), fx.clock, nil, logger)

	_, err := engine.Bind(context.Background(), "WS-001", "1234567", "Garage", deviceFingerprint("cpu-a", "aa"))
	require.Error(t, err)
	assert.Equal(t, KindGatewayUnavailable, KindOf(err))
	assert.ErrorIs(t, err, registry.ErrUnavailable)

	// An outage is not a rejection and leaves no audit trace
	events, listErr := fx.store.AuditEvents(context.Background(), store.AuditFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, events)
}

func TestBindMalformedFingerprint(t *testing.T) {
	fx := newFixture(t, defaultConfig())

	_, err := fx.engine.Bind(context.Background(), "WS-001", "1234567", "Garage", domain.Fingerprint{
		PrimaryHash: "only-primary",
	})
	require.Error(t, err)
	assert.Equal(t, KindFingerprintMalformed, KindOf(err))
}

func TestBindWorkshopConflict(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa:bb:cc:dd:ee:ff")

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	// Same workshop, different business
	_, err = fx.engine.Bind(ctx, "WS-001", "7654321", "Garage", fp)
	require.Error(t, err)
	assert.Equal(t, KindBindingConflict, KindOf(err))
	assert.Contains(t, err.Error(), "already bound to business 1234567")

	// The original binding is untouched
	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, domain.BindingStatusActive, binding.Status)
}

func TestRebindSamePairRotatesToken(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa:bb:cc:dd:ee:ff")

	first, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	// Binding the same pair again needs no unbind; the row is replaced and
	// a fresh token is issued
	fx.clock.Advance(time.Minute)
	second, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, second.Hash, binding.LicenseKeyHash)
	assert.Equal(t, 0, binding.ValidationFailures)

	claims := token.Claims{
		WorkshopCode:    "WS-001",
		BusinessLicense: "1234567",
		HardwareHash:    fp.PrimaryHash,
	}
	assert.ErrorIs(t, fx.tokens.Verify(ctx, first.Hash, claims), token.ErrRevoked)
	assert.NoError(t, fx.tokens.Verify(ctx, second.Hash, claims))

	result, err := fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.MatchExact, result.Match)
}

func TestBindBusinessLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxWorkshopBindings = 2
	fx := newFixture(t, cfg)
	ctx := context.Background()

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "A", deviceFingerprint("cpu-a", "aa"))
	require.NoError(t, err)
	_, err = fx.engine.Bind(ctx, "WS-002", "1234567", "B", deviceFingerprint("cpu-b", "bb"))
	require.NoError(t, err)

	_, err = fx.engine.Bind(ctx, "WS-003", "1234567", "C", deviceFingerprint("cpu-c", "cc"))
	require.Error(t, err)
	assert.Equal(t, KindBindingConflict, KindOf(err))
	assert.Contains(t, err.Error(), "workshop limit reached (2/2)")

	count, err := fx.store.ActiveBindingCount(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBindRollbackOnIssuanceFailure(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fx.issuer.failIssue = true

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", deviceFingerprint("cpu-a", "aa"))
	require.Error(t, err)
	assert.Equal(t, KindIssuanceFailed, KindOf(err))

	// The tentative binding row must not survive the failed issuance
	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Nil(t, binding)

	count, err := fx.store.ActiveBindingCount(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Contains(t, fx.auditActions(t), domain.ActionBindRejected)

	// The same pair binds cleanly once issuance recovers
	fx.issuer.failIssue = false
	_, err = fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", deviceFingerprint("cpu-a", "aa"))
	require.NoError(t, err)
}

func TestValidateExactMatch(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa:bb:cc:dd:ee:ff")

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	fx.clock.Advance(10 * time.Minute)
	result, err := fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.MatchExact, result.Match)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	require.NotNil(t, binding.LastValidatedAt)
	assert.Equal(t, fx.clock.Now().UTC(), *binding.LastValidatedAt)
	assert.Equal(t, 0, binding.ValidationFailures)
}

func TestValidateTolerantMatch(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", deviceFingerprint("cpu-a", "aa:bb:cc:dd:ee:ff"))
	require.NoError(t, err)

	// Replaced NIC: one component drifted, within tolerance
	result, err := fx.engine.Validate(ctx, "WS-001", "1234567", deviceFingerprint("cpu-a", "11:22:33:44:55:66"))
	require.NoError(t, err)
	assert.Equal(t, fingerprint.MatchTolerant, result.Match)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, 0, binding.ValidationFailures)
}

func TestValidateMismatchIncrementsFailures(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", deviceFingerprint("cpu-a", "aa"))
	require.NoError(t, err)

	// Entirely different machine
	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", deviceFingerprint("cpu-z", "zz"))
	require.Error(t, err)
	bindingErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalid, bindingErr.Kind)
	assert.Equal(t, ReasonMismatch, bindingErr.Reason)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, 1, binding.ValidationFailures)
	assert.Equal(t, domain.BindingStatusActive, binding.Status)
	assert.Contains(t, fx.auditActions(t), domain.ActionValidationFailed)
}

func TestValidateSuccessDoesNotResetFailures(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = fx.engine.Validate(ctx, "WS-001", "1234567", deviceFingerprint("cpu-z", "zz"))
		require.Error(t, err)
	}

	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.NoError(t, err)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, 2, binding.ValidationFailures)
}

func TestValidateMalformedFingerprintDoesNotCount(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", deviceFingerprint("cpu-a", "aa"))
	require.NoError(t, err)

	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", domain.Fingerprint{})
	require.Error(t, err)
	assert.Equal(t, KindFingerprintMalformed, KindOf(err))

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, 0, binding.ValidationFailures)
}

func TestValidateNotBound(t *testing.T) {
	fx := newFixture(t, defaultConfig())

	_, err := fx.engine.Validate(context.Background(), "WS-404", "1234567", deviceFingerprint("cpu-a", "aa"))
	require.Error(t, err)
	assert.Equal(t, KindNotBound, KindOf(err))
	assert.Contains(t, fx.auditActions(t), domain.ActionValidationFailed)
}

func TestValidateRevokedToken(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	issued, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)
	require.NoError(t, fx.tokens.Revoke(ctx, issued.Hash, "compromised"))

	// Correct fingerprint, dead token: still a validation failure
	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.Error(t, err)
	bindingErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalid, bindingErr.Kind)
	assert.Equal(t, ReasonRevoked, bindingErr.Reason)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, 1, binding.ValidationFailures)
}

func TestValidateExpiredToken(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	fx.clock.Advance(2 * time.Hour)
	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.Error(t, err)
	bindingErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonExpired, bindingErr.Reason)
}

func TestSuspensionThreshold(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxValidationFailures = 10
	fx := newFixture(t, cfg)
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")
	wrong := deviceFingerprint("cpu-z", "zz")

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		_, err = fx.engine.Validate(ctx, "WS-001", "1234567", wrong)
		require.Error(t, err)

		binding, loadErr := fx.store.Binding(ctx, "WS-001", "1234567")
		require.NoError(t, loadErr)
		assert.Equal(t, i, binding.ValidationFailures)

		if i < 10 {
			assert.Equal(t, KindInvalid, KindOf(err))
			assert.Equal(t, domain.BindingStatusActive, binding.Status)
		} else {
			// The 10th failure flips the binding to suspended
			assert.Equal(t, domain.BindingStatusSuspended, binding.Status)
		}
	}

	assert.Contains(t, fx.auditActions(t), domain.ActionSuspended)

	// Suspension is terminal: even the correct fingerprint is refused now
	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.Error(t, err)
	assert.Equal(t, KindSuspended, KindOf(err))

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, 10, binding.ValidationFailures)
}

func TestUnbind(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	issued, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	require.NoError(t, fx.engine.Unbind(ctx, "WS-001", "1234567", ""))

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Nil(t, binding)

	// Every token for the pair is dead
	err = fx.tokens.Verify(ctx, issued.Hash, token.Claims{
		WorkshopCode:    "WS-001",
		BusinessLicense: "1234567",
		HardwareHash:    fp.PrimaryHash,
	})
	assert.ErrorIs(t, err, token.ErrRevoked)

	assert.Contains(t, fx.auditActions(t), domain.ActionUnbound)

	// Second unbind reports NotBound
	err = fx.engine.Unbind(ctx, "WS-001", "1234567", "")
	require.Error(t, err)
	assert.Equal(t, KindNotBound, KindOf(err))
}

func TestRebindAfterUnbind(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	first, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)
	require.NoError(t, fx.engine.Unbind(ctx, "WS-001", "1234567", "ownership transfer"))

	// The workshop is free to bind to a different business
	second, err := fx.engine.Bind(ctx, "WS-001", "7654321", "Garage", fp)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)

	result, err := fx.engine.Validate(ctx, "WS-001", "7654321", fp)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.MatchExact, result.Match)
}

func TestRebindReplacesSuspendedBinding(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxValidationFailures = 1
	fx := newFixture(t, cfg)
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", deviceFingerprint("cpu-z", "zz"))
	require.Error(t, err)

	binding, err := fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	require.Equal(t, domain.BindingStatusSuspended, binding.Status)

	// A suspended row does not hold the workshop hostage; a fresh bind to
	// the same business replaces it with a clean counter.
	fx.clock.Advance(time.Minute)
	_, err = fx.engine.Bind(ctx, "WS-001", "1234567", "Garage", fp)
	require.NoError(t, err)

	binding, err = fx.store.Binding(ctx, "WS-001", "1234567")
	require.NoError(t, err)
	assert.Equal(t, domain.BindingStatusActive, binding.Status)
	assert.Equal(t, 0, binding.ValidationFailures)

	_, err = fx.engine.Validate(ctx, "WS-001", "1234567", fp)
	require.NoError(t, err)
}

func TestConcurrentBindsSameWorkshop(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()
	fp := deviceFingerprint("cpu-a", "aa")

	licenses := []string{"1234567", "7654321"}
	results := make([]error, len(licenses))

	var wg sync.WaitGroup
	for i, license := range licenses {
		wg.Add(1)
		go func(i int, license string) {
			defer wg.Done()
			_, results[i] = fx.engine.Bind(ctx, "WS-001", license, "Garage", fp)
		}(i, license)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, KindBindingConflict, KindOf(err))
		}
	}
	assert.Equal(t, 1, succeeded)

	active, err := fx.store.ActiveBindingForWorkshop(ctx, "WS-001")
	require.NoError(t, err)
	require.NotNil(t, active)
}

func TestConcurrentBindsBusinessLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxWorkshopBindings = 2
	fx := newFixture(t, cfg)
	ctx := context.Background()

	workshops := []string{"WS-001", "WS-002", "WS-003", "WS-004"}
	results := make([]error, len(workshops))

	var wg sync.WaitGroup
	for i, code := range workshops {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, results[i] = fx.engine.Bind(ctx, code, "1234567", "Garage", deviceFingerprint("cpu-"+code, code))
		}(i, code)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded)

	count, err := fx.store.ActiveBindingCount(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListBindings(t *testing.T) {
	fx := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := fx.engine.Bind(ctx, "WS-001", "1234567", "A", deviceFingerprint("cpu-a", "aa"))
	require.NoError(t, err)
	_, err = fx.engine.Bind(ctx, "WS-002", "1234567", "B", deviceFingerprint("cpu-b", "bb"))
	require.NoError(t, err)

	bindings, err := fx.engine.ListBindings(ctx, "1234567")
	require.NoError(t, err)
	assert.Len(t, bindings, 2)

	bindings, err = fx.engine.ListBindings(ctx, "7654321")
	require.NoError(t, err)
	assert.Empty(t, bindings)
}
