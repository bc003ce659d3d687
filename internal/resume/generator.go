package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"jobsift/internal/logging"
	"jobsift/internal/logging/types"
	"jobsift/pkg/models"
	"jobsift/pkg/utils"
)

// Generator is the slice of the generation manager the resume stage needs.
type Generator interface {
	Enabled() bool
	GenerateInto(ctx context.Context, prompt string, out interface{}) error
}

// Tailor asks the generation capability for a resume document matched to the
// opportunity. On any failure it falls back to a minimal deterministic
// document built directly from the base profile, so the caller always
// receives a renderable document.
type Tailor struct {
	generator Generator
	logger    types.Logger
}

// NewTailor creates a resume tailor backed by the given generator.
func NewTailor(generator Generator) *Tailor {
	return &Tailor{
		generator: generator,
		logger:    logging.GetGlobalLogger(),
	}
}

// Generate produces a tailored resume document for the opportunity. The
// second return value reports whether the deterministic fallback was used.
func (t *Tailor) Generate(ctx context.Context, profile *models.BaseProfile, job *models.Job) (*models.ResumeDocument, bool) {
	if !t.generator.Enabled() {
		return FallbackDocument(profile), true
	}

	var doc models.ResumeDocument
	if err := t.generator.GenerateInto(ctx, t.buildPrompt(profile, job), &doc); err != nil {
		t.logger.Warn("Resume tailoring failed, using base-profile fallback", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return FallbackDocument(profile), true
	}

	// The model must not drop the contact identity even if it reorders
	// everything else.
	if strings.TrimSpace(doc.Name) == "" {
		doc.Name = profile.Name
	}
	if strings.TrimSpace(doc.Email) == "" {
		doc.Email = profile.Email
	}

	return &doc, false
}

func (t *Tailor) buildPrompt(profile *models.BaseProfile, job *models.Job) string {
	profileJSON, _ := json.MarshalIndent(profile, "", "  ")

	return fmt.Sprintf(`You are a resume writer. Tailor the candidate's base profile below into a resume for the given job. Return a JSON object with exactly this structure:

{
  "name": "string",
  "email": "string",
  "phone": "string",
  "location": "string",
  "summary": "string - 2-3 sentence professional summary aimed at this job",
  "skills": ["array of strings - most relevant skills first"],
  "experience": [{"title": "string", "company": "string", "period": "string", "highlights": ["array of strings"]}],
  "education": [{"institution": "string", "degree": "string", "year": "string"}]
}

IMPORTANT RULES:
1. Return ONLY valid JSON, no additional text or explanation
2. NEVER invent facts, employers, dates or qualifications absent from the base profile
3. Reorder and rephrase to emphasize relevance to the job; do not fabricate
4. Omit fields you have no information for by using empty string or empty array

JOB:
Title: %s
Company: %s
Description: %s
Required skills: %s

BASE PROFILE:
%s`, job.Title, job.Company, utils.Truncate(job.Description, 2000), strings.Join(job.Skills, ", "), string(profileJSON))
}

// FallbackDocument builds a minimal deterministic resume straight from the
// base profile.
func FallbackDocument(profile *models.BaseProfile) *models.ResumeDocument {
	return &models.ResumeDocument{
		Name:       profile.Name,
		Email:      profile.Email,
		Phone:      profile.Phone,
		Location:   profile.Location,
		Summary:    profile.Summary,
		Skills:     append([]string{}, profile.Skills...),
		Experience: append([]models.ExperienceItem{}, profile.Experience...),
		Education:  append([]models.EducationItem{}, profile.Education...),
	}
}

// DefaultProfile is used when no base profile exists for an identity: a
// placeholder identity with empty history, never an error.
func DefaultProfile(identity *models.MailboxIdentity) *models.BaseProfile {
	return &models.BaseProfile{
		IdentityID: identity.ID,
		Name:       "Candidate",
		Email:      identity.Username,
	}
}
