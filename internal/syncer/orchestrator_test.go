package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsift/internal/config"
	"jobsift/internal/credentials"
	"jobsift/internal/mail"
	"jobsift/internal/storage"
	"jobsift/pkg/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeStore struct {
	mu         sync.Mutex
	identities []*models.MailboxIdentity
	profiles   map[string]*models.BaseProfile
	jobs       map[string]*models.Job
	resumes    []*models.Resume
	handled    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: map[string]*models.BaseProfile{},
		jobs:     map[string]*models.Job{},
		handled:  map[string]bool{},
	}
}

func jobKey(identityID, messageID, fingerprint string) string {
	return identityID + "|" + messageID + "|" + fingerprint
}

func (f *fakeStore) ListMailboxIdentities(context.Context) ([]*models.MailboxIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.MailboxIdentity{}, f.identities...), nil
}

func (f *fakeStore) GetBaseProfile(_ context.Context, identityID string) (*models.BaseProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[identityID]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) FindJob(_ context.Context, identityID, messageID, fingerprint string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobKey(identityID, messageID, fingerprint)]; ok {
		return j, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) InsertJob(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := jobKey(job.IdentityID, job.MessageID, job.Fingerprint)
	if _, ok := f.jobs[key]; ok {
		return storage.ErrDuplicate
	}
	f.jobs[key] = job
	return nil
}

func (f *fakeStore) InsertResume(_ context.Context, r *models.Resume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, r)
	return nil
}

func (f *fakeStore) IsMessageHandled(_ context.Context, identityID, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handled[identityID+"|"+messageID], nil
}

func (f *fakeStore) MarkMessageHandled(_ context.Context, identityID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled[identityID+"|"+messageID] = true
	return nil
}

func (f *fakeStore) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeStore) resumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resumes)
}

func (f *fakeStore) clearHandled() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = map[string]bool{}
}

type fakeFetcher struct {
	mu       sync.Mutex
	messages []models.RawMessage
	err      error
	flagged  [][]uint32
	block    chan struct{}
}

func (f *fakeFetcher) FetchPending(_ context.Context, _ *models.MailboxIdentity, _ string, _ int) ([]models.RawMessage, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RawMessage{}, f.messages...), nil
}

func (f *fakeFetcher) MarkProcessed(_ context.Context, _ *models.MailboxIdentity, _ string, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged = append(f.flagged, uids)
	return nil
}

type slowFetcher struct {
	mu    sync.Mutex
	delay time.Duration
	calls int
}

func (f *slowFetcher) FetchPending(context.Context, *models.MailboxIdentity, string, int) ([]models.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	time.Sleep(f.delay)
	return nil, nil
}

func (f *slowFetcher) MarkProcessed(context.Context, *models.MailboxIdentity, string, []uint32) error {
	return nil
}

func (f *slowFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNormalizer struct {
	emails map[uint32]*models.NormalizedEmail
}

func (f *fakeNormalizer) Normalize(raw models.RawMessage) (*models.NormalizedEmail, error) {
	email, ok := f.emails[raw.UID]
	if !ok {
		return nil, &mail.MalformedMessageError{UID: raw.UID, Reason: "no body"}
	}
	return email, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeUploader) UploadResume(identityID, jobID string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	key := identityID + "/" + jobID
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/resumes/" + key + ".pdf", nil
}

type disabledGenerator struct{}

func (disabledGenerator) Enabled() bool { return false }

func (disabledGenerator) GenerateInto(context.Context, string, interface{}) error {
	return errors.New("disabled")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Crypto.CredentialSecret = testSecret
	cfg.Sync.RunTimeout = 30 * time.Second
	cfg.Mailbox.DefaultMessageCap = 25
	cfg.Redis.Timeout = time.Second
	return cfg
}

func encryptedIdentity(t *testing.T, keywords []string) *models.MailboxIdentity {
	t.Helper()

	gate, err := credentials.NewGate(testSecret)
	require.NoError(t, err)
	ciphertext, nonce, err := gate.Encrypt("app-password")
	require.NoError(t, err)

	return &models.MailboxIdentity{
		ID:                 "identity-1",
		Host:               "imap.example.com",
		Port:               993,
		Username:           "user@example.com",
		PasswordCiphertext: ciphertext,
		PasswordNonce:      nonce,
		Keywords:           keywords,
		MatchScope:         models.MatchScopeSubject,
		MessageCap:         10,
	}
}

func waitForIdle(t *testing.T, o *Orchestrator) models.RunStatus {
	t.Helper()
	require.Eventually(t, func() bool {
		return !o.Status().Running
	}, 5*time.Second, 10*time.Millisecond)
	return o.Status()
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{block: make(chan struct{})}
	o := NewOrchestrator(testConfig(), store, fetcher, &fakeNormalizer{}, disabledGenerator{}, disabledGenerator{}, nil, nil)

	first, err := o.Trigger(false)
	require.NoError(t, err)
	assert.True(t, first.Running)

	_, err = o.Trigger(false)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(fetcher.block)
	final := waitForIdle(t, o)
	assert.NotNil(t, final.FinishedAt)

	// The slot is free again once the run finished.
	_, err = o.Trigger(false)
	require.NoError(t, err)
	waitForIdle(t, o)
}

func TestEmptyMailboxProducesZeroCounters(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	o := NewOrchestrator(testConfig(), store, &fakeFetcher{}, &fakeNormalizer{}, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	assert.Zero(t, final.EmailsScanned)
	assert.Zero(t, final.JobsInserted)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.FinishedAt)

	// Nothing failed, but the disabled generator is still visible.
	require.Len(t, final.Errors, 1)
	assert.Contains(t, final.Errors[0], "generation capability disabled")
}

func TestRunInsertsJobAndResumeFromFallback(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{messages: []models.RawMessage{{UID: 7}}}
	normalizer := &fakeNormalizer{emails: map[uint32]*models.NormalizedEmail{
		7: {
			MessageID: "<m7@example.com>",
			Subject:   "Senior Engineer at Acme",
			From:      "jobs@acme.com",
			Links:     []models.Link{{URL: "https://acme.com/jobs/1"}},
		},
	}}
	o := NewOrchestrator(testConfig(), store, fetcher, normalizer, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	assert.Equal(t, 1, final.EmailsScanned)
	assert.Equal(t, 1, final.KeywordMatches)
	assert.Equal(t, 1, final.OpportunitiesExtracted)
	assert.Equal(t, 1, final.JobsInserted)
	assert.Equal(t, 1, final.ResumesGenerated)
	assert.Equal(t, 1, store.jobCount())
	assert.Equal(t, 1, store.resumeCount())

	// The fallback insert still lands, and the status tells the operator the
	// generator never ran.
	require.Len(t, final.Errors, 1)
	assert.Contains(t, final.Errors[0], "generation capability disabled")

	store.mu.Lock()
	for _, job := range store.jobs {
		assert.Equal(t, models.StatusPrepared, job.Status)
		assert.Equal(t, models.ParseStatusPartial, job.ParseStatus)
		assert.Equal(t, "deterministic", job.Provenance)
		// No direct apply link: the posting link stands in for it.
		assert.Equal(t, "https://acme.com/jobs/1", job.PostingURL)
		assert.Equal(t, "https://acme.com/jobs/1", job.ApplyURL)
	}
	store.mu.Unlock()

	// The processed message got flagged on the server.
	fetcher.mu.Lock()
	require.Len(t, fetcher.flagged, 1)
	assert.Equal(t, []uint32{7}, fetcher.flagged[0])
	fetcher.mu.Unlock()
}

func TestUploadedArtifactURLStored(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{messages: []models.RawMessage{{UID: 7}}}
	normalizer := &fakeNormalizer{emails: map[uint32]*models.NormalizedEmail{
		7: {MessageID: "<m7@example.com>", Subject: "Engineer opening", From: "jobs@acme.com"},
	}}
	uploader := &fakeUploader{}
	o := NewOrchestrator(testConfig(), store, fetcher, normalizer, disabledGenerator{}, disabledGenerator{}, uploader, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	assert.Equal(t, 1, final.ResumesGenerated)
	store.mu.Lock()
	require.Len(t, store.resumes, 1)
	assert.Contains(t, store.resumes[0].ArtifactURL, "https://cdn.example.com/resumes/identity-1/")
	store.mu.Unlock()
}

func TestUploadFailureKeepsResumeWithoutURL(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{messages: []models.RawMessage{{UID: 7}}}
	normalizer := &fakeNormalizer{emails: map[uint32]*models.NormalizedEmail{
		7: {MessageID: "<m7@example.com>", Subject: "Engineer opening", From: "jobs@acme.com"},
	}}
	uploader := &fakeUploader{err: errors.New("bucket unreachable")}
	o := NewOrchestrator(testConfig(), store, fetcher, normalizer, disabledGenerator{}, disabledGenerator{}, uploader, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	assert.Equal(t, 1, final.JobsInserted)
	assert.Equal(t, 1, final.ResumesGenerated)
	require.Len(t, final.Errors, 2)
	assert.Contains(t, final.Errors[1], "upload failed")
	store.mu.Lock()
	require.Len(t, store.resumes, 1)
	assert.Empty(t, store.resumes[0].ArtifactURL)
	store.mu.Unlock()
}

func TestSecondRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{messages: []models.RawMessage{{UID: 7}}}
	normalizer := &fakeNormalizer{emails: map[uint32]*models.NormalizedEmail{
		7: {MessageID: "<m7@example.com>", Subject: "Engineer role", From: "jobs@acme.com"},
	}}
	o := NewOrchestrator(testConfig(), store, fetcher, normalizer, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	first := waitForIdle(t, o)
	require.Equal(t, 1, first.JobsInserted)

	// Same message redelivered: the message-id short circuit skips it.
	_, err = o.Trigger(false)
	require.NoError(t, err)
	second := waitForIdle(t, o)
	assert.Zero(t, second.JobsInserted)
	assert.Equal(t, 1, store.jobCount())

	// Even without the message-id record the fingerprint lookup catches it.
	store.clearHandled()
	_, err = o.Trigger(false)
	require.NoError(t, err)
	third := waitForIdle(t, o)
	assert.Zero(t, third.JobsInserted)
	assert.Equal(t, third.DuplicatesSkipped, third.OpportunitiesExtracted)
	assert.Equal(t, 1, store.jobCount())
}

func TestAuthenticationFailureIsActionable(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{err: fmt.Errorf("%w for user@example.com", mail.ErrAuthentication)}
	o := NewOrchestrator(testConfig(), store, fetcher, &fakeNormalizer{}, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	require.Len(t, final.Errors, 2)
	assert.Contains(t, final.Errors[1], "login rejected")
}

func TestIrrelevantMessageRecordedWithoutFlagging(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{messages: []models.RawMessage{{UID: 3}}}
	normalizer := &fakeNormalizer{emails: map[uint32]*models.NormalizedEmail{
		3: {MessageID: "<m3@example.com>", Subject: "Your invoice", From: "billing@shop.com"},
	}}
	o := NewOrchestrator(testConfig(), store, fetcher, normalizer, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	assert.Equal(t, 1, final.EmailsScanned)
	assert.Zero(t, final.KeywordMatches)
	assert.Zero(t, final.JobsInserted)

	// Recorded as handled so the pipeline never revisits it, but the user's
	// mailbox keeps the message unflagged.
	store.mu.Lock()
	assert.True(t, store.handled["identity-1|<m3@example.com>"])
	store.mu.Unlock()

	fetcher.mu.Lock()
	require.Len(t, fetcher.flagged, 1)
	assert.Empty(t, fetcher.flagged[0])
	fetcher.mu.Unlock()
}

func TestUnreadableMessageStaysUnflagged(t *testing.T) {
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	fetcher := &fakeFetcher{messages: []models.RawMessage{{UID: 9}}}
	o := NewOrchestrator(testConfig(), store, fetcher, &fakeNormalizer{}, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	assert.Equal(t, 1, final.EmailsScanned)
	require.Len(t, final.Errors, 2)
	assert.Contains(t, final.Errors[1], "unreadable")

	fetcher.mu.Lock()
	require.Len(t, fetcher.flagged, 1)
	assert.Empty(t, fetcher.flagged[0])
	fetcher.mu.Unlock()
}

func TestMissingCredentialSecretFailsRun(t *testing.T) {
	cfg := testConfig()
	cfg.Crypto.CredentialSecret = ""
	store := newFakeStore()
	store.identities = append(store.identities, encryptedIdentity(t, []string{"engineer"}))
	o := NewOrchestrator(cfg, store, &fakeFetcher{}, &fakeNormalizer{}, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	require.Len(t, final.Errors, 1)
	assert.Contains(t, final.Errors[0], "credential secret")
	assert.Zero(t, final.EmailsScanned)
}

func TestRunTimeoutAbandonsRemainingIdentities(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.RunTimeout = 30 * time.Millisecond

	store := newFakeStore()
	first := encryptedIdentity(t, []string{"engineer"})
	second := encryptedIdentity(t, []string{"engineer"})
	second.ID = "identity-2"
	store.identities = append(store.identities, first, second)

	fetcher := &slowFetcher{delay: 120 * time.Millisecond}
	o := NewOrchestrator(cfg, store, fetcher, &fakeNormalizer{}, disabledGenerator{}, disabledGenerator{}, nil, nil)

	_, err := o.Trigger(false)
	require.NoError(t, err)
	final := waitForIdle(t, o)

	// The run ended, returned the slot, and recorded why it stopped early.
	assert.False(t, final.Running)
	assert.NotNil(t, final.FinishedAt)
	require.NotEmpty(t, final.Errors)
	assert.Contains(t, final.Errors[len(final.Errors)-1], "deadline exceeded")

	// The second identity was never attempted.
	assert.Equal(t, 1, fetcher.callCount())

	// The slot is usable again.
	_, err = o.Trigger(false)
	require.NoError(t, err)
	waitForIdle(t, o)
}
