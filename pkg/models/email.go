package models

import "time"

// RawMessage is one message pulled from an IMAP session. The envelope fields
// are whatever the server reported; Raw holds the full RFC 822 payload and is
// the source of truth for normalization. Raw messages are never persisted.
type RawMessage struct {
	UID        uint32
	MessageID  string
	Subject    string
	From       string
	ReceivedAt time.Time
	Raw        []byte
}

// Link is a URL extracted from an email body together with its anchor text
// (empty for bare URLs found in plain text).
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// NormalizedEmail is the canonical form of a fetched message that the
// pipeline operates on.
type NormalizedEmail struct {
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	ReceivedAt time.Time `json:"received_at"`
	TextBody   string    `json:"text_body"`
	HTMLBody   string    `json:"html_body,omitempty"`
	Links      []Link    `json:"links,omitempty"`
}

// MailboxIdentity is one monitored inbox. The pipeline reads these at the
// start of a run and never mutates them.
type MailboxIdentity struct {
	ID                 string   `json:"id" db:"id" validate:"required"`
	Host               string   `json:"host" db:"host" validate:"required,hostname|ip"`
	Port               int      `json:"port" db:"port" validate:"required,min=1,max=65535"`
	Username           string   `json:"username" db:"username" validate:"required"`
	PasswordCiphertext string   `json:"-" db:"password_ciphertext" validate:"required"`
	PasswordNonce      string   `json:"-" db:"password_nonce" validate:"required"`
	Keywords           []string `json:"keywords"`
	MatchScope         string   `json:"match_scope" validate:"oneof=subject subject_body"`
	MessageCap         int      `json:"message_cap"`
	LLMProvider        string   `json:"llm_provider,omitempty"`
	LLMModel           string   `json:"llm_model,omitempty"`
}

// MatchScopeIncludesBody reports whether the relevance filter may scan the
// message body for this identity.
func (m *MailboxIdentity) MatchScopeIncludesBody() bool {
	return m.MatchScope == MatchScopeSubjectBody
}

// Match scope values for MailboxIdentity.MatchScope.
const (
	MatchScopeSubject     = "subject"
	MatchScopeSubjectBody = "subject_body"
)
