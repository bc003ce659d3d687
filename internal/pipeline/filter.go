package pipeline

import (
	"strings"

	"jobsift/pkg/models"
)

// IsRelevant decides whether a normalized message is job-related for the
// given identity. Matching is case-insensitive substring containment of any
// keyword in the subject; the body is scanned only when the identity's match
// scope covers it and the subject check failed, since body scanning is the
// expensive path.
func IsRelevant(email *models.NormalizedEmail, keywords []string, includeBody bool) bool {
	if len(keywords) == 0 {
		return false
	}

	subject := strings.ToLower(email.Subject)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(subject, kw) {
			return true
		}
	}

	if !includeBody {
		return false
	}

	body := strings.ToLower(email.TextBody)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(body, kw) {
			return true
		}
	}

	return false
}
