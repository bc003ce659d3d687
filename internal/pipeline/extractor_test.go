package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsift/pkg/models"
)

func relevantEmail() *models.NormalizedEmail {
	return &models.NormalizedEmail{
		MessageID: "<m1@example.com>",
		Subject:   "Senior Go Engineer at Acme",
		From:      "talent@acme.example",
		TextBody:  "Acme is hiring a Senior Go Engineer. Remote friendly.",
		Links:     []models.Link{{URL: "https://acme.example/jobs/go", Text: "Apply"}},
	}
}

func TestExtractMultipleOpportunities(t *testing.T) {
	gen := &fakeGenerator{enabled: true, response: `{"opportunities": [
		{"title": "Senior Go Engineer", "company": "Acme", "posting_url": "https://acme.example/jobs/go", "confidence": 0.95},
		{"title": "Platform Engineer", "company": "Acme", "description": "Platform team role"}
	]}`}

	out := NewExtractor(gen).Extract(context.Background(), relevantEmail())

	assert.False(t, out.Degraded)
	require.Len(t, out.Value, 2)
	assert.Equal(t, "Senior Go Engineer", out.Value[0].Title)
	assert.Equal(t, "llm", out.Value[0].Raw["source"])
}

func TestExtractFiltersUnusableCandidates(t *testing.T) {
	gen := &fakeGenerator{enabled: true, response: `{"opportunities": [
		{"title": "", "description": "", "posting_url": "", "apply_url": ""},
		{"title": "Real role", "company": "Acme"}
	]}`}

	out := NewExtractor(gen).Extract(context.Background(), relevantEmail())

	require.Len(t, out.Value, 1)
	assert.Equal(t, "Real role", out.Value[0].Title)
}

func TestExtractFallbackWhenDisabled(t *testing.T) {
	gen := &fakeGenerator{enabled: false}

	out := NewExtractor(gen).Extract(context.Background(), relevantEmail())

	assert.True(t, out.Degraded)
	require.Len(t, out.Value, 1, "a relevant email must always yield at least one candidate")
	c := out.Value[0]
	assert.Equal(t, "Senior Go Engineer at Acme", c.Title)
	assert.Equal(t, "acme", c.Company)
	assert.Equal(t, "https://acme.example/jobs/go", c.PostingURL)
	require.NotNil(t, c.Confidence)
	assert.InDelta(t, fallbackConfidence, *c.Confidence, 1e-9)
	assert.Equal(t, true, c.Raw["fallback"])
	assert.Zero(t, gen.calls, "no generation call may happen when disabled")
}

func TestExtractFallbackOnError(t *testing.T) {
	gen := &fakeGenerator{enabled: true, err: errors.New("timeout")}

	out := NewExtractor(gen).Extract(context.Background(), relevantEmail())

	assert.True(t, out.Degraded)
	require.Len(t, out.Value, 1)
	assert.Equal(t, true, out.Value[0].Raw["fallback"])
}

func TestExtractFallbackOnEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{enabled: true, response: `{"opportunities": []}`}

	out := NewExtractor(gen).Extract(context.Background(), relevantEmail())

	assert.True(t, out.Degraded)
	require.Len(t, out.Value, 1)
}
