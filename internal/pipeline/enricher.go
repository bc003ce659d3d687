package pipeline

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

// Enrichment statuses recorded in the candidate's raw payload.
const (
	EnrichmentEnriched        = "enriched"
	EnrichmentError           = "error"
	EnrichmentSkippedNoURLs   = "skipped_no_urls"
	EnrichmentSkippedDisabled = "skipped_disabled"
)

// Enricher fills in and cleans candidate fields with a second generation
// pass over the email's URL list. It degrades to the unmodified candidate on
// any failure and never aborts the run.
type Enricher struct {
	generator Generator
	logger    types.Logger
}

// NewEnricher creates an enricher backed by the given generator.
func NewEnricher(generator Generator) *Enricher {
	return &Enricher{
		generator: generator,
		logger:    logging.GetGlobalLogger(),
	}
}

type enrichmentResponse struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Skills      []string `json:"required_skills"`
	PostingURL  string   `json:"posting_url"`
	ApplyURL    string   `json:"apply_url"`
}

// Enrich returns the candidate with enriched fields merged in, tagging the
// raw payload with the enrichment status. Textual fields are overwritten
// only by non-empty enriched values; skills are unioned; apply_url falls
// back through apply, posting, then the original value.
func (e *Enricher) Enrich(ctx context.Context, candidate models.OpportunityCandidate, links []models.Link) Outcome[models.OpportunityCandidate] {
	if len(links) == 0 && candidate.BestURL() == "" {
		return Degraded(tagged(candidate, EnrichmentSkippedNoURLs), "no urls to browse")
	}

	if !e.generator.Enabled() {
		return Degraded(tagged(candidate, EnrichmentSkippedDisabled), "generation capability disabled")
	}

	var resp enrichmentResponse
	if err := e.generator.GenerateInto(ctx, e.buildPrompt(&candidate, links), &resp); err != nil {
		e.logger.Warn("Enrichment failed, keeping original candidate", map[string]interface{}{
			"title": candidate.Title,
			"error": err.Error(),
		})
		out := tagged(candidate, EnrichmentError)
		out.Raw["enrichment_error"] = err.Error()
		return Degraded(out, fmt.Sprintf("enrichment failed: %v", err))
	}

	merged := merge(candidate, &resp)
	return Ok(tagged(merged, EnrichmentEnriched))
}

// merge applies the overwrite-when-non-empty rule for textual fields, unions
// skill lists, and resolves the apply_url fallback chain.
func merge(candidate models.OpportunityCandidate, resp *enrichmentResponse) models.OpportunityCandidate {
	out := candidate

	if v := strings.TrimSpace(resp.Title); v != "" {
		out.Title = v
	}
	if v := strings.TrimSpace(resp.Company); v != "" {
		out.Company = v
	}
	if v := strings.TrimSpace(resp.Location); v != "" {
		out.Location = v
	}
	if v := strings.TrimSpace(resp.Description); v != "" {
		out.Description = v
	}

	out.Skills = utils.UniqueNonEmpty(append(append([]string{}, candidate.Skills...), resp.Skills...))

	if v := strings.TrimSpace(resp.PostingURL); v != "" {
		out.PostingURL = v
	}

	switch {
	case strings.TrimSpace(resp.ApplyURL) != "":
		out.ApplyURL = strings.TrimSpace(resp.ApplyURL)
	case strings.TrimSpace(resp.PostingURL) != "":
		out.ApplyURL = strings.TrimSpace(resp.PostingURL)
	default:
		out.ApplyURL = candidate.BestURL()
	}

	return out
}

// tagged returns the candidate with enrichment_status set in a copied raw
// payload, so the input's map is never shared or mutated.
func tagged(candidate models.OpportunityCandidate, status string) models.OpportunityCandidate {
	raw := make(map[string]interface{}, len(candidate.Raw)+1)
	for k, v := range candidate.Raw {
		raw[k] = v
	}
	raw["enrichment_status"] = status
	candidate.Raw = raw
	return candidate
}

func (e *Enricher) buildPrompt(candidate *models.OpportunityCandidate, links []models.Link) string {
	candidateJSON, _ := json.MarshalIndent(candidate, "", "  ")

	var linkList strings.Builder
	for _, l := range links {
		if l.Text != "" {
			fmt.Fprintf(&linkList, "- %s (%s)\n", l.URL, l.Text)
		} else {
			fmt.Fprintf(&linkList, "- %s\n", l.URL)
		}
	}

	return fmt.Sprintf(`You are a job posting enricher. Below is a partially extracted job opportunity and the URLs found in the email it came from. Use the URLs to fill in and clean up the opportunity's fields. Return a JSON object with exactly this structure:

{
  "title": "string",
  "company": "string",
  "location": "string",
  "description": "string",
  "required_skills": ["array of strings"],
  "posting_url": "string - URL of the job posting page",
  "apply_url": "string - Direct application URL"
}

IMPORTANT RULES:
1. Return ONLY valid JSON, no additional text or explanation
2. Leave a field as empty string "" when you cannot improve it - the original value will be kept
3. Do not invent URLs; only use ones from the list below

CURRENT OPPORTUNITY:
%s

EMAIL URLS:
%s`, string(candidateJSON), linkList.String())
}
