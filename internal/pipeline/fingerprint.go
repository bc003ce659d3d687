package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"jobsift/pkg/models"
)

// descriptionFallbackLen bounds how much of the description participates in
// the hash when a candidate has no URL.
const descriptionFallbackLen = 128

// Fingerprint computes the deterministic content hash that serves as the
// idempotency key for one opportunity within one source message. It covers
// the source message id, lower-cased title and company, and the best
// available URL, falling back to a truncated lower-cased description when no
// URL exists. The candidate's raw payload never participates, so re-running
// extraction over the same email yields the same hash.
func Fingerprint(sourceMessageID string, candidate *models.OpportunityCandidate) string {
	anchor := candidate.BestURL()
	if anchor == "" {
		desc := strings.ToLower(candidate.Description)
		if len(desc) > descriptionFallbackLen {
			desc = desc[:descriptionFallbackLen]
		}
		anchor = desc
	}

	h := sha256.New()
	for _, part := range []string{
		sourceMessageID,
		strings.ToLower(candidate.Title),
		strings.ToLower(candidate.Company),
		anchor,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
