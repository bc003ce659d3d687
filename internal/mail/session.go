package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"jobsift/internal/logging"
	"jobsift/internal/logging/types"
	"jobsift/pkg/models"
)

// ErrAuthentication is returned when the IMAP server rejects the login. The
// orchestrator distinguishes this case to give the user an actionable
// message instead of a raw protocol error.
var ErrAuthentication = errors.New("imap authentication failed")

// FetchAll is the sentinel message cap meaning "no limit".
const FetchAll = 0

// SessionManager opens short-lived IMAP sessions against a mailbox identity.
// Fetching and flagging run in two independently scoped sessions so that the
// slow processing stage (LLM calls, rendering, uploads) never holds a
// protocol connection open.
type SessionManager struct {
	dialTimeout time.Duration
	logger      types.Logger
}

// NewSessionManager creates a session manager with the given dial timeout.
func NewSessionManager(dialTimeout time.Duration) *SessionManager {
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	return &SessionManager{
		dialTimeout: dialTimeout,
		logger:      logging.GetGlobalLogger(),
	}
}

// FetchPending opens one session, selects INBOX, lists unseen messages,
// fetches the most recent maxCount of them (all when maxCount is FetchAll)
// with envelope and full source, and closes the session before returning.
// The session is released on every exit path.
func (s *SessionManager) FetchPending(ctx context.Context, identity *models.MailboxIdentity, password string, maxCount int) ([]models.RawMessage, error) {
	c, err := s.connect(ctx, identity, password)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// Most recent messages have the highest UIDs
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if maxCount != FetchAll && len(uids) > maxCount {
		uids = uids[len(uids)-maxCount:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var fetched []models.RawMessage
	for msg := range messages {
		raw, err := rawFromIMAP(msg, section)
		if err != nil {
			s.logger.Warn("Skipping unreadable message", map[string]interface{}{
				"uid":   msg.Uid,
				"error": err.Error(),
			})
			continue
		}
		fetched = append(fetched, raw)
	}

	if err := <-done; err != nil {
		return fetched, fmt.Errorf("failed to fetch messages: %w", err)
	}

	s.logger.Info("Fetched pending messages", map[string]interface{}{
		"username": identity.Username,
		"host":     identity.Host,
		"count":    len(fetched),
	})

	return fetched, nil
}

// MarkProcessed opens a second, independent session solely to flag the given
// message UIDs as seen. It is a no-op for an empty UID list.
func (s *SessionManager) MarkProcessed(ctx context.Context, identity *models.MailboxIdentity, password string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	c, err := s.connect(ctx, identity, password)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to flag messages as seen: %w", err)
	}

	s.logger.Info("Marked messages processed", map[string]interface{}{
		"username": identity.Username,
		"count":    len(uids),
	})

	return nil
}

func (s *SessionManager) connect(ctx context.Context, identity *models.MailboxIdentity, password string) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", identity.Host, identity.Port)
	dialer := &net.Dialer{Timeout: s.dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: identity.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c.Timeout = s.dialTimeout

	if err := c.Login(identity.Username, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w for %s@%s: %v", ErrAuthentication, identity.Username, identity.Host, err)
	}

	return c, nil
}

func rawFromIMAP(msg *imap.Message, section *imap.BodySectionName) (models.RawMessage, error) {
	raw := models.RawMessage{UID: msg.Uid}

	if msg.Envelope != nil {
		raw.MessageID = msg.Envelope.MessageId
		raw.Subject = msg.Envelope.Subject
		raw.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			raw.From = msg.Envelope.From[0].Address()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return raw, fmt.Errorf("server returned no body section")
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return raw, fmt.Errorf("failed to read message body: %w", err)
	}
	raw.Raw = data

	return raw, nil
}
