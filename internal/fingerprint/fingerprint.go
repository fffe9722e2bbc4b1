// Package fingerprint derives and matches hardware fingerprints. A
// fingerprint is a structured snapshot of device-identifying components; the
// engine only ever persists digests of it, never raw component values.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"wsbind/pkg/contracts/domain"
)

// DigestOf computes the stored form of a fingerprint: the primary and
// secondary hashes plus a per-component digest used for tolerant
// re-matching.
func DigestOf(fp domain.Fingerprint) domain.FingerprintDigest {
	components := make([]domain.ComponentDigest, 0, len(fp.Components))
	for _, c := range fp.Components {
		components = append(components, domain.ComponentDigest{
			Name:   c.Name,
			Digest: componentDigest(c),
		})
	}
	return domain.FingerprintDigest{
		PrimaryHash:   fp.PrimaryHash,
		SecondaryHash: fp.SecondaryHash,
		Components:    components,
	}
}

// componentDigest hashes a single component. The name is included so two
// components with equal values still produce distinct digests.
func componentDigest(c domain.Component) string {
	hash := sha256.Sum256([]byte(c.Name + "|" + c.Value))
	return hex.EncodeToString(hash[:])
}

// HashComponents produces a digest over an ordered component set. Used by
// the collector to derive primary and secondary hashes.
func HashComponents(components []domain.Component) string {
	h := sha256.New()
	for _, c := range components {
		h.Write([]byte(c.Name))
		h.Write([]byte{'|'})
		h.Write([]byte(c.Value))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
