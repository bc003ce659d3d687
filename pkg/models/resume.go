package models

import "time"

// BaseProfile is the per-identity source of truth for resume tailoring. It is
// read-only to the pipeline; the generator must never invent facts that are
// not present here.
type BaseProfile struct {
	IdentityID string           `json:"identity_id"`
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	Phone      string           `json:"phone,omitempty"`
	Location   string           `json:"location,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Skills     []string         `json:"skills,omitempty"`
	Experience []ExperienceItem `json:"experience,omitempty"`
	Education  []EducationItem  `json:"education,omitempty"`
}

// ExperienceItem is one work-history entry in a profile or resume.
type ExperienceItem struct {
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	Period     string   `json:"period,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
}

// EducationItem is one education entry in a profile or resume.
type EducationItem struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Year        string `json:"year,omitempty"`
}

// ResumeDocument is a structured resume tailored to one opportunity. It is
// what the renderer lays out into a PDF.
type ResumeDocument struct {
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	Phone      string           `json:"phone,omitempty"`
	Location   string           `json:"location,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Skills     []string         `json:"skills,omitempty"`
	Experience []ExperienceItem `json:"experience,omitempty"`
	Education  []EducationItem  `json:"education,omitempty"`
}

// Resume is the persisted record of one generated resume. Consumers take the
// most recent row per job by CreatedAt.
type Resume struct {
	ID          string    `json:"id" db:"id"`
	JobID       string    `json:"job_id" db:"job_id"`
	Document    string    `json:"document" db:"document"`
	ArtifactURL string    `json:"artifact_url,omitempty" db:"artifact_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
