// Package token implements the license token service: issuing, verifying
// and revoking the signed, time-bounded assertions that secure a workshop
// binding. Tokens are immutable once issued; revocation is additive via the
// append-only revocation set.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/hkdf"

	"wsbind/pkg/contracts/domain"
)

// Verification error kinds. Callers branch on these rather than parsing
// messages.
var (
	ErrExpired       = errors.New("token expired")
	ErrRevoked       = errors.New("token revoked")
	ErrClaimMismatch = errors.New("token claims do not match")
	ErrUnknownToken  = errors.New("token not recognized")
)

// Claims is the signed claim set of a license token
type Claims struct {
	WorkshopCode    string    `json:"workshop_code"`
	BusinessLicense string    `json:"business_license"`
	HardwareHash    string    `json:"hardware_hash"`
	BindingType     string    `json:"binding_type"`
	IssuedAt        time.Time `json:"issued_at"`
}

// Token is a freshly issued license token. The signed string is handed to
// the caller once; only its hash is ever persisted.
type Token struct {
	Signed    string
	Hash      string
	Claims    Claims
	ExpiresAt time.Time
}

// Store is the persistence the token service needs: the issued-token index
// and the append-only revocation set.
type Store interface {
	RecordIssuedToken(ctx context.Context, issued domain.IssuedToken) error
	IssuedToken(ctx context.Context, tokenHash string) (*domain.IssuedToken, error)
	IssuedTokenHashes(ctx context.Context, workshopCode, businessLicense string) ([]string, error)
	AddRevocation(ctx context.Context, record domain.RevocationRecord) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// Service issues, verifies and revokes license tokens
type Service struct {
	key    []byte
	store  Store
	clock  Clock
	logger *slog.Logger
}

// NewService creates a token service. The HMAC signing key is derived from
// the master key material with HKDF-SHA256 under the given context string,
// so rotating the context invalidates every outstanding token.
func NewService(masterKey, keyContext string, store Store, clock Clock, logger *slog.Logger) (*Service, error) {
	if len(masterKey) < 16 {
		return nil, fmt.Errorf("master key must be at least 16 bytes, got %d", len(masterKey))
	}

	kdf := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(keyContext))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	return &Service{
		key:    key,
		store:  store,
		clock:  clock,
		logger: logger.With(slog.String("component", "token_service")),
	}, nil
}

// Issue signs the claims and records the issued token. The caller is
// responsible for persisting the token hash on the binding; Issue itself has
// no side effect on binding records.
func (s *Service) Issue(ctx context.Context, claims Claims, ttl time.Duration) (*Token, error) {
	if claims.WorkshopCode == "" || claims.BusinessLicense == "" || claims.HardwareHash == "" {
		return nil, fmt.Errorf("incomplete claims: workshop, business and hardware hash are required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = s.clock.Now().UTC()
	}
	if claims.BindingType == "" {
		claims.BindingType = "workshop"
	}
	expiresAt := claims.IssuedAt.Add(ttl)

	payload := canonicalClaims(claims, expiresAt)
	signature := s.sign(payload)
	signed := payload + "." + signature

	hash := sha256.Sum256([]byte(signed))
	tokenHash := hex.EncodeToString(hash[:])

	if err := s.store.RecordIssuedToken(ctx, domain.IssuedToken{
		TokenHash:       tokenHash,
		WorkshopCode:    claims.WorkshopCode,
		BusinessLicense: claims.BusinessLicense,
		HardwareHash:    claims.HardwareHash,
		BindingType:     claims.BindingType,
		IssuedAt:        claims.IssuedAt,
		ExpiresAt:       expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record issued token: %w", err)
	}

	s.logger.InfoContext(ctx, "license token issued",
		slog.String("workshop_code", claims.WorkshopCode),
		slog.String("business_license", claims.BusinessLicense),
		slog.String("token_hash", tokenHash),
		slog.Time("expires_at", expiresAt),
	)

	return &Token{
		Signed:    signed,
		Hash:      tokenHash,
		Claims:    claims,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a previously issued token against the presented claims.
// Read-mostly and lock-free: it only reads the issued-token index and the
// revocation set.
func (s *Service) Verify(ctx context.Context, tokenHash string, presented Claims) error {
	issued, err := s.store.IssuedToken(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to load issued token: %w", err)
	}
	if issued == nil {
		return ErrUnknownToken
	}

	if s.clock.Now().After(issued.ExpiresAt) {
		return ErrExpired
	}

	revoked, err := s.store.IsRevoked(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to check revocation set: %w", err)
	}
	if revoked {
		return ErrRevoked
	}

	if issued.WorkshopCode != presented.WorkshopCode ||
		issued.BusinessLicense != presented.BusinessLicense ||
		issued.HardwareHash != presented.HardwareHash {
		return ErrClaimMismatch
	}

	return nil
}

// Revoke adds the token hash to the revocation set. Revoking an
// already-revoked token is a no-op, not an error.
func (s *Service) Revoke(ctx context.Context, tokenHash, reason string) error {
	if err := s.store.AddRevocation(ctx, domain.RevocationRecord{
		TokenHash: tokenHash,
		RevokedAt: s.clock.Now().UTC(),
		Reason:    reason,
	}); err != nil {
		return fmt.Errorf("failed to record revocation: %w", err)
	}

	s.logger.InfoContext(ctx, "license token revoked",
		slog.String("token_hash", tokenHash),
		slog.String("reason", reason),
	)
	return nil
}

// RevokeAllForBinding revokes every token ever issued for the
// workshop+business pair, including tokens that were never rotated out.
func (s *Service) RevokeAllForBinding(ctx context.Context, workshopCode, businessLicense, reason string) (int, error) {
	hashes, err := s.store.IssuedTokenHashes(ctx, workshopCode, businessLicense)
	if err != nil {
		return 0, fmt.Errorf("failed to list issued tokens: %w", err)
	}

	for _, hash := range hashes {
		if err := s.Revoke(ctx, hash, reason); err != nil {
			return 0, err
		}
	}
	return len(hashes), nil
}

// canonicalClaims serializes claims into the deterministic string that gets
// signed
func canonicalClaims(claims Claims, expiresAt time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		claims.WorkshopCode,
		claims.BusinessLicense,
		claims.HardwareHash,
		claims.BindingType,
		claims.IssuedAt.UTC().Format(time.RFC3339Nano),
		expiresAt.UTC().Format(time.RFC3339Nano),
	)
}

// sign produces the HMAC-SHA256 signature of the payload
func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
