package mail

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message/mail"

	"jobsift/pkg/models"
)

var bareURLPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// MalformedMessageError marks a raw payload the normalizer could not parse.
// The caller records it and continues with the next message.
type MalformedMessageError struct {
	UID    uint32
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message uid=%d: %s", e.UID, e.Reason)
}

// Normalizer parses raw mail payloads into canonical envelopes.
type Normalizer struct {
	maxLinks int
}

// NewNormalizer creates a normalizer capping extracted links at maxLinks to
// bound downstream prompt size.
func NewNormalizer(maxLinks int) *Normalizer {
	if maxLinks <= 0 {
		maxLinks = 20
	}
	return &Normalizer{maxLinks: maxLinks}
}

// Normalize converts a RawMessage into a NormalizedEmail. It fails with a
// MalformedMessageError on unparseable payloads; envelope fields reported by
// the server fill gaps the MIME parse leaves.
func (n *Normalizer) Normalize(raw models.RawMessage) (*models.NormalizedEmail, error) {
	if len(raw.Raw) == 0 {
		return nil, &MalformedMessageError{UID: raw.UID, Reason: "empty payload"}
	}

	email := &models.NormalizedEmail{
		MessageID:  raw.MessageID,
		Subject:    raw.Subject,
		From:       raw.From,
		ReceivedAt: raw.ReceivedAt,
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Raw))
	if err != nil {
		return nil, &MalformedMessageError{UID: raw.UID, Reason: err.Error()}
	}

	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		email.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		email.ReceivedAt = date
	}
	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		email.MessageID = id
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		email.From = addrs[0].Address
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part does not invalidate what was already read
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/html"):
			if email.HTMLBody == "" {
				email.HTMLBody = string(body)
			}
		case strings.HasPrefix(contentType, "text/plain"):
			if email.TextBody == "" {
				email.TextBody = string(body)
			}
		}
	}

	if email.TextBody == "" && email.HTMLBody == "" {
		return nil, &MalformedMessageError{UID: raw.UID, Reason: "no text or html part"}
	}

	if email.HTMLBody != "" && email.TextBody == "" {
		email.TextBody = htmlToText(email.HTMLBody)
	}

	if email.MessageID == "" {
		// The protocol envelope lacked a Message-Id; synthesize a stable one
		// from the UID so dedup still works across runs.
		email.MessageID = fmt.Sprintf("<uid-%d@jobsift.local>", raw.UID)
	}

	email.Links = n.extractLinks(email.HTMLBody, email.TextBody)

	return email, nil
}

// extractLinks scans HTML anchors and bare URLs in plain text, deduplicates
// by exact URL, and caps the result.
func (n *Normalizer) extractLinks(htmlBody, textBody string) []models.Link {
	seen := make(map[string]struct{})
	var links []models.Link

	add := func(url, text string) {
		url = strings.TrimRight(strings.TrimSpace(url), ".,;")
		if url == "" || !strings.HasPrefix(url, "http") {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		links = append(links, models.Link{URL: url, Text: strings.TrimSpace(text)})
	}

	if htmlBody != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody)); err == nil {
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, _ := sel.Attr("href")
				add(href, sel.Text())
			})
		}
	}

	for _, url := range bareURLPattern.FindAllString(textBody, -1) {
		add(url, "")
	}

	if len(links) > n.maxLinks {
		links = links[:n.maxLinks]
	}

	return links
}

// htmlToText strips markup into readable plain text for prompting and the
// relevance filter.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, head").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	var clean []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			clean = append(clean, line)
		}
	}

	return strings.Join(clean, "\n")
}
