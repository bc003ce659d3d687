package models

import "time"

// RunStatus is the pollable snapshot of one sync run. It is the only channel
// between the background task and observers: the orchestrator mutates it
// while running and HTTP callers read copies of it at any time.
type RunStatus struct {
	Running                bool       `json:"running"`
	StartedAt              *time.Time `json:"started_at,omitempty"`
	FinishedAt             *time.Time `json:"finished_at,omitempty"`
	EmailsScanned          int        `json:"emails_scanned"`
	KeywordMatches         int        `json:"keyword_matches"`
	OpportunitiesExtracted int        `json:"opportunities_extracted"`
	JobsInserted           int        `json:"jobs_inserted"`
	DuplicatesSkipped      int        `json:"duplicates_skipped"`
	ResumesGenerated       int        `json:"resumes_generated"`
	ResumesFailed          int        `json:"resumes_failed"`
	Errors                 []string   `json:"errors"`
}

// PollRequest is the optional body of POST /poll. When SyncAll is true the
// per-identity message cap is ignored and every pending message is fetched.
type PollRequest struct {
	SyncAll bool `json:"sync_all"`
}

// PollResponse is returned by POST /poll with the status snapshot taken at
// the moment the request was handled.
type PollResponse struct {
	Accepted bool      `json:"accepted"`
	Message  string    `json:"message"`
	Status   RunStatus `json:"status"`
}
