// Package domain contains the core domain models for the workshop license
// binding engine. These types serve as the Single Source of Truth (SSOT) for
// all layers of the application.
package domain

import (
	"time"
)

// VerificationStatus represents the registry verification state of a business
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)

// BusinessEntity represents one verified (or pending) legal business that may
// operate workshops. Records are created by the external verification
// workflow; the binding engine only reads the status and the binding limit.
type BusinessEntity struct {
	LicenseNumber       string             `json:"license_number" db:"license_number" validate:"required"`
	BusinessName        string             `json:"business_name" db:"business_name"`
	VerificationStatus  VerificationStatus `json:"verification_status" db:"verification_status" validate:"required"`
	MaxWorkshopBindings int                `json:"max_workshop_bindings" db:"max_workshop_bindings" validate:"min=1"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
}

// BindingStatus represents the lifecycle status of a workshop binding
type BindingStatus string

const (
	BindingStatusActive    BindingStatus = "active"
	BindingStatusSuspended BindingStatus = "suspended"
	BindingStatusRevoked   BindingStatus = "revoked"
)

// WorkshopBinding is the join record between one workshop installation and
// one business. At most one Active binding may exist per workshop code across
// the whole system; that invariant is enforced by the conflict resolver
// inside the engine's critical section, not by the database alone.
type WorkshopBinding struct {
	WorkshopCode        string            `json:"workshop_code" db:"workshop_code" validate:"required"`
	BusinessLicense     string            `json:"business_license" db:"business_license" validate:"required"`
	WorkshopDisplayName string            `json:"workshop_display_name,omitempty" db:"workshop_display_name"`
	FingerprintDigest   FingerprintDigest `json:"fingerprint_digest" db:"fingerprint_digest"`
	LicenseKeyHash      string            `json:"license_key_hash" db:"license_key_hash"`
	Status              BindingStatus     `json:"status" db:"status"`
	ValidationFailures  int               `json:"validation_failures" db:"validation_failures"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	LastValidatedAt     *time.Time        `json:"last_validated_at,omitempty" db:"last_validated_at"`
}

// Component is one raw device-identifying factor of a hardware fingerprint
type Component struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// Fingerprint is a structured identity snapshot of a device. It is
// well-formed iff the primary hash, the secondary hash and the component
// list are all present and non-empty.
type Fingerprint struct {
	PrimaryHash   string      `json:"primary_hash" validate:"required"`
	SecondaryHash string      `json:"secondary_hash" validate:"required"`
	Components    []Component `json:"components" validate:"required,min=1,dive"`
}

// WellFormed reports whether the fingerprint carries every required part
func (f Fingerprint) WellFormed() bool {
	if f.PrimaryHash == "" || f.SecondaryHash == "" || len(f.Components) == 0 {
		return false
	}
	for _, c := range f.Components {
		if c.Name == "" || c.Value == "" {
			return false
		}
	}
	return true
}

// ComponentDigest is the stored digest of a single fingerprint component,
// retained so a later fingerprint can be re-matched with tolerance.
type ComponentDigest struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// FingerprintDigest is what the engine persists about a fingerprint at bind
// time. Raw component values are never stored.
type FingerprintDigest struct {
	PrimaryHash   string            `json:"primary_hash"`
	SecondaryHash string            `json:"secondary_hash"`
	Components    []ComponentDigest `json:"components"`
}

// IssuedToken is the persisted record of a signed license token. The raw
// signed string is never stored; the token hash keys both the issued-token
// index and the revocation list.
type IssuedToken struct {
	TokenHash       string    `json:"token_hash" db:"token_hash"`
	WorkshopCode    string    `json:"workshop_code" db:"workshop_code"`
	BusinessLicense string    `json:"business_license" db:"business_license"`
	HardwareHash    string    `json:"hardware_hash" db:"hardware_hash"`
	BindingType     string    `json:"binding_type" db:"binding_type"`
	IssuedAt        time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at"`
}

// RevocationRecord marks one token as revoked. The set is append-only;
// revoking an already-revoked token is a no-op.
type RevocationRecord struct {
	TokenHash string    `json:"token_hash" db:"token_hash"`
	RevokedAt time.Time `json:"revoked_at" db:"revoked_at"`
	Reason    string    `json:"reason" db:"reason"`
}

// BindingAction enumerates the auditable actions of the binding engine
type BindingAction string

const (
	ActionBound            BindingAction = "bound"
	ActionUnbound          BindingAction = "unbound"
	ActionBindRejected     BindingAction = "bind_rejected"
	ActionValidationFailed BindingAction = "validation_failed"
	ActionSuspended        BindingAction = "suspended"
)

// BindingEvent is one entry in the append-only audit trail
type BindingEvent struct {
	ID              string            `json:"id" db:"id"`
	WorkshopCode    string            `json:"workshop_code" db:"workshop_code"`
	BusinessLicense string            `json:"business_license" db:"business_license"`
	Action          BindingAction     `json:"action" db:"action"`
	Timestamp       time.Time         `json:"timestamp" db:"timestamp"`
	Metadata        map[string]string `json:"metadata,omitempty" db:"metadata"`
}

// BindRequest is the payload for a bind operation
type BindRequest struct {
	WorkshopCode        string      `json:"workshop_code" validate:"required,min=3"`
	BusinessLicense     string      `json:"business_license" validate:"required,min=5"`
	WorkshopDisplayName string      `json:"workshop_display_name,omitempty"`
	Fingerprint         Fingerprint `json:"fingerprint" validate:"required"`
}

// BindResponse is returned on a successful bind
type BindResponse struct {
	WorkshopCode    string    `json:"workshop_code"`
	BusinessLicense string    `json:"business_license"`
	Token           string    `json:"token"`
	TokenHash       string    `json:"token_hash"`
	ExpiresAt       time.Time `json:"expires_at"`
	BoundAt         time.Time `json:"bound_at"`
}

// ValidateRequest is the payload for a validate operation
type ValidateRequest struct {
	WorkshopCode    string      `json:"workshop_code" validate:"required,min=3"`
	BusinessLicense string      `json:"business_license" validate:"required,min=5"`
	Fingerprint     Fingerprint `json:"fingerprint" validate:"required"`
}

// ValidateResponse reports the outcome of a successful validation
type ValidateResponse struct {
	Valid       bool      `json:"valid"`
	Match       string    `json:"match"` // exact|tolerant
	ValidatedAt time.Time `json:"validated_at"`
}

// UnbindRequest is the payload for an unbind operation
type UnbindRequest struct {
	WorkshopCode    string `json:"workshop_code" validate:"required,min=3"`
	BusinessLicense string `json:"business_license" validate:"required,min=5"`
	Reason          string `json:"reason,omitempty"`
}
