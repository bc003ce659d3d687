package pipeline

import (
	"context"
	"fmt"
	"strings"

	"jobsift/internal/logging"
	"jobsift/internal/logging/types"
	"jobsift/pkg/models"
	"jobsift/pkg/utils"
)

// fallbackConfidence is the fixed confidence tagged onto deterministically
// synthesized candidates.
const fallbackConfidence = 0.2

// fallbackBodyLen bounds how much body text the fallback candidate carries.
const fallbackBodyLen = 500

// Extractor splits one email into zero-or-more job opportunity candidates
// using the generation capability, with a deterministic fallback that
// guarantees every relevant email yields at least one candidate.
type Extractor struct {
	generator Generator
	logger    types.Logger
}

// NewExtractor creates an extractor backed by the given generator.
func NewExtractor(generator Generator) *Extractor {
	return &Extractor{
		generator: generator,
		logger:    logging.GetGlobalLogger(),
	}
}

type extractionResponse struct {
	Opportunities []struct {
		Title       string   `json:"title"`
		Company     string   `json:"company"`
		Location    string   `json:"location"`
		Description string   `json:"description"`
		Skills      []string `json:"required_skills"`
		PostingURL  string   `json:"posting_url"`
		ApplyURL    string   `json:"apply_url"`
		Confidence  *float64 `json:"confidence"`
	} `json:"opportunities"`
}

// Extract never fails outward: when the capability is unavailable, errors,
// or returns nothing usable, it synthesizes exactly one fallback candidate
// from the subject, sender and truncated body text.
func (e *Extractor) Extract(ctx context.Context, email *models.NormalizedEmail) Outcome[[]models.OpportunityCandidate] {
	if !e.generator.Enabled() {
		return Degraded([]models.OpportunityCandidate{e.fallbackCandidate(email)}, "generation capability disabled")
	}

	var resp extractionResponse
	if err := e.generator.GenerateInto(ctx, e.buildPrompt(email), &resp); err != nil {
		e.logger.Warn("Opportunity extraction failed, using fallback candidate", map[string]interface{}{
			"message_id": email.MessageID,
			"error":      err.Error(),
		})
		return Degraded([]models.OpportunityCandidate{e.fallbackCandidate(email)}, fmt.Sprintf("extraction failed: %v", err))
	}

	var candidates []models.OpportunityCandidate
	for _, opp := range resp.Opportunities {
		c := models.OpportunityCandidate{
			Title:       strings.TrimSpace(opp.Title),
			Company:     strings.TrimSpace(opp.Company),
			Location:    strings.TrimSpace(opp.Location),
			Description: strings.TrimSpace(opp.Description),
			Skills:      utils.UniqueNonEmpty(opp.Skills),
			PostingURL:  strings.TrimSpace(opp.PostingURL),
			ApplyURL:    strings.TrimSpace(opp.ApplyURL),
			Confidence:  opp.Confidence,
			Raw: map[string]interface{}{
				"source": "llm",
			},
		}
		if !usable(&c) {
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return Degraded([]models.OpportunityCandidate{e.fallbackCandidate(email)}, "extraction returned no usable candidates")
	}

	return Ok(candidates)
}

// usable drops candidates lacking both a title/description and any URL.
func usable(c *models.OpportunityCandidate) bool {
	hasText := c.Title != "" || c.Description != ""
	hasURL := c.PostingURL != "" || c.ApplyURL != ""
	return hasText || hasURL
}

func (e *Extractor) buildPrompt(email *models.NormalizedEmail) string {
	var links strings.Builder
	for _, l := range email.Links {
		if l.Text != "" {
			fmt.Fprintf(&links, "- %s (%s)\n", l.URL, l.Text)
		} else {
			fmt.Fprintf(&links, "- %s\n", l.URL)
		}
	}

	return fmt.Sprintf(`You are a job email analyzer. The email below may describe zero, one, or SEVERAL distinct job opportunities. Extract every distinct opportunity and return a JSON object with exactly this structure:

{
  "opportunities": [
    {
      "title": "string - The job title",
      "company": "string - The company name",
      "location": "string - Location or 'Remote'",
      "description": "string - Brief summary (2-3 sentences max)",
      "required_skills": ["array of strings - Required skills"],
      "posting_url": "string - URL of the job posting if present",
      "apply_url": "string - Direct application URL if present",
      "confidence": number between 0 and 1
    }
  ]
}

IMPORTANT RULES:
1. Return ONLY valid JSON, no additional text or explanation
2. One email may list several roles - return one entry per distinct role
3. If information is not found, use empty string "" for strings and [] for arrays
4. If the email is not about job opportunities at all, return {"opportunities": []}

EMAIL SUBJECT: %s
EMAIL SENDER: %s

EMAIL LINKS:
%s
EMAIL BODY:
%s`, email.Subject, email.From, links.String(), utils.Truncate(email.TextBody, 6000))
}

// fallbackCandidate synthesizes one candidate deterministically from the
// envelope so a relevant email is never dropped on capability failure.
func (e *Extractor) fallbackCandidate(email *models.NormalizedEmail) models.OpportunityCandidate {
	title := strings.TrimSpace(email.Subject)
	if title == "" {
		title = fmt.Sprintf("Job opportunity from %s", email.From)
	}

	var postingURL string
	if len(email.Links) > 0 {
		postingURL = email.Links[0].URL
	}

	confidence := fallbackConfidence
	return models.OpportunityCandidate{
		Title:       title,
		Company:     companyFromSender(email.From),
		Description: utils.Truncate(email.TextBody, fallbackBodyLen),
		PostingURL:  postingURL,
		Confidence:  &confidence,
		Raw: map[string]interface{}{
			"source":   "deterministic",
			"fallback": true,
		},
	}
}

// companyFromSender derives a rough company name from the sender domain.
func companyFromSender(from string) string {
	at := strings.LastIndex(from, "@")
	if at < 0 || at == len(from)-1 {
		return ""
	}
	domain := from[at+1:]
	if dot := strings.Index(domain, "."); dot > 0 {
		domain = domain[:dot]
	}
	return domain
}
