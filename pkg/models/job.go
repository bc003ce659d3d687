package models

import "time"

// JobStatus tracks where an opportunity sits in the user's application flow.
// The pipeline only ever writes StatusPrepared; later transitions belong to
// the UI layer.
type JobStatus string

const (
	StatusPrepared  JobStatus = "prepared"
	StatusApplied   JobStatus = "applied"
	StatusInterview JobStatus = "interview"
	StatusRejected  JobStatus = "rejected"
)

// ParseStatus records how the opportunity was obtained from the source email.
type ParseStatus string

const (
	ParseStatusParsed  ParseStatus = "parsed"
	ParseStatusPartial ParseStatus = "partial"
	ParseStatusFailed  ParseStatus = "failed"
	ParseStatusSkipped ParseStatus = "skipped"
)

// OpportunityCandidate is one job opportunity extracted from an email before
// it is persisted. Raw preserves extraction and enrichment metadata for
// auditability and never participates in fingerprinting.
type OpportunityCandidate struct {
	Title       string                 `json:"title"`
	Company     string                 `json:"company"`
	Location    string                 `json:"location,omitempty"`
	Description string                 `json:"description,omitempty"`
	Skills      []string               `json:"skills,omitempty"`
	PostingURL  string                 `json:"posting_url,omitempty"`
	ApplyURL    string                 `json:"apply_url,omitempty"`
	Confidence  *float64               `json:"confidence,omitempty"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

// BestURL returns the most actionable URL for the candidate: apply link
// first, then the posting link.
func (c *OpportunityCandidate) BestURL() string {
	if c.ApplyURL != "" {
		return c.ApplyURL
	}
	return c.PostingURL
}

// Job is the durable record of one opportunity. It is uniquely identified by
// (identity, source message id, fingerprint).
type Job struct {
	ID          string      `json:"id" db:"id"`
	IdentityID  string      `json:"identity_id" db:"identity_id"`
	MessageID   string      `json:"message_id" db:"message_id"`
	Fingerprint string      `json:"fingerprint" db:"fingerprint"`
	Title       string      `json:"title" db:"title"`
	Company     string      `json:"company" db:"company"`
	Location    string      `json:"location,omitempty" db:"location"`
	Description string      `json:"description,omitempty" db:"description"`
	Skills      []string    `json:"skills,omitempty"`
	PostingURL  string      `json:"posting_url,omitempty" db:"posting_url"`
	ApplyURL    string      `json:"apply_url,omitempty" db:"apply_url"`
	Confidence  *float64    `json:"confidence,omitempty" db:"confidence"`
	Status      JobStatus   `json:"status" db:"status"`
	ParseStatus ParseStatus `json:"parse_status" db:"parse_status"`
	Provenance  string      `json:"provenance,omitempty" db:"provenance"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
