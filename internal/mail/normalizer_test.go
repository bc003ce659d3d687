package mail

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsift/pkg/models"
)

func plainMessage(messageID, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: recruiter@example.com\r\n")
	b.WriteString("To: me@example.com\r\n")
	if messageID != "" {
		fmt.Fprintf(&b, "Message-Id: %s\r\n", messageID)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Date: Mon, 13 Jul 2026 10:00:00 +0000\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func htmlMessage(body string) []byte {
	var b strings.Builder
	b.WriteString("From: jobs@boards.example\r\n")
	b.WriteString("Message-Id: <list-42@boards.example>\r\n")
	b.WriteString("Subject: Weekly job digest\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func TestNormalizePlainText(t *testing.T) {
	n := NewNormalizer(20)

	email, err := n.Normalize(models.RawMessage{
		UID: 7,
		Raw: plainMessage("<abc@example.com>", "Backend Engineer opening", "We are hiring. Apply at https://jobs.example.com/backend now."),
	})
	require.NoError(t, err)

	assert.Equal(t, "<abc@example.com>", email.MessageID)
	assert.Equal(t, "Backend Engineer opening", email.Subject)
	assert.Equal(t, "recruiter@example.com", email.From)
	require.Len(t, email.Links, 1)
	assert.Equal(t, "https://jobs.example.com/backend", email.Links[0].URL)
}

func TestNormalizeSynthesizesMessageID(t *testing.T) {
	n := NewNormalizer(20)

	email, err := n.Normalize(models.RawMessage{
		UID: 99,
		Raw: plainMessage("", "No id here", "body text"),
	})
	require.NoError(t, err)
	assert.Equal(t, "<uid-99@jobsift.local>", email.MessageID)
}

func TestNormalizeHTMLLinksDedupedAndCapped(t *testing.T) {
	n := NewNormalizer(3)

	var body strings.Builder
	body.WriteString("<html><body>")
	// Same link twice, then several distinct ones
	body.WriteString(`<a href="https://x.example/1">Role one</a>`)
	body.WriteString(`<a href="https://x.example/1">Role one again</a>`)
	for i := 2; i <= 6; i++ {
		fmt.Fprintf(&body, `<a href="https://x.example/%d">Role %d</a>`, i, i)
	}
	body.WriteString("</body></html>")

	email, err := n.Normalize(models.RawMessage{UID: 1, Raw: htmlMessage(body.String())})
	require.NoError(t, err)

	require.Len(t, email.Links, 3)
	assert.Equal(t, "https://x.example/1", email.Links[0].URL)
	assert.Equal(t, "Role one", email.Links[0].Text)
	assert.Equal(t, "https://x.example/2", email.Links[1].URL)
	assert.NotEmpty(t, email.TextBody, "text body should be derived from html")
}

func TestNormalizeMalformedPayload(t *testing.T) {
	n := NewNormalizer(20)

	_, err := n.Normalize(models.RawMessage{UID: 3, Raw: nil})
	var malformed *MalformedMessageError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, uint32(3), malformed.UID)
}

func TestNormalizeRedeliveryAgreesOnMessageID(t *testing.T) {
	n := NewNormalizer(20)

	first, err := n.Normalize(models.RawMessage{
		UID: 10,
		Raw: plainMessage("<dup@example.com>", "Senior Go Engineer", "details"),
	})
	require.NoError(t, err)

	second, err := n.Normalize(models.RawMessage{
		UID: 11,
		Raw: plainMessage("<dup@example.com>", "SENIOR GO ENGINEER", "details"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.MessageID, second.MessageID)
}
