package fingerprint

import (
	"wsbind/pkg/contracts/domain"
)

// MatchResult classifies how a candidate fingerprint compared against a
// stored digest.
type MatchResult int

const (
	// MatchMismatch means the device does not resemble the bound one
	MatchMismatch MatchResult = iota
	// MatchTolerant means the device drifted within policy (still a pass,
	// but logged distinctly from an exact match)
	MatchTolerant
	// MatchExact means the primary hash and every component digest matched
	MatchExact
)

// String returns the wire representation of the match result
func (r MatchResult) String() string {
	switch r {
	case MatchExact:
		return "exact"
	case MatchTolerant:
		return "tolerant"
	default:
		return "mismatch"
	}
}

// Pass reports whether the result counts as a successful validation
func (r MatchResult) Pass() bool {
	return r == MatchExact || r == MatchTolerant
}

// MatchPolicy controls how much component drift a tolerant match accepts.
// Devices legitimately change one minor component (a NIC, for example)
// without being a different machine; exact-only matching would force
// unnecessary re-binding.
type MatchPolicy struct {
	MaxComponentDrift int
}

// Match compares a candidate fingerprint against the stored digest.
//
// A digest is recomputed per candidate component and disagreements with the
// stored component digests are counted; components present on only one side
// count as drift. Exact requires the primary hash and the full component set
// to agree. The primary hash alone is not enough: it covers only the stable
// components, so volatile drift must still go through the tolerant counter.
func Match(stored domain.FingerprintDigest, candidate domain.Fingerprint, policy MatchPolicy) MatchResult {
	storedByName := make(map[string]string, len(stored.Components))
	for _, c := range stored.Components {
		storedByName[c.Name] = c.Digest
	}

	drift := 0
	seen := make(map[string]bool, len(candidate.Components))
	for _, c := range candidate.Components {
		seen[c.Name] = true
		storedDigest, ok := storedByName[c.Name]
		if !ok || storedDigest != componentDigest(c) {
			drift++
		}
	}
	for name := range storedByName {
		if !seen[name] {
			drift++
		}
	}

	if drift == 0 && candidate.PrimaryHash != "" && candidate.PrimaryHash == stored.PrimaryHash {
		return MatchExact
	}
	if drift <= policy.MaxComponentDrift {
		return MatchTolerant
	}
	return MatchMismatch
}
