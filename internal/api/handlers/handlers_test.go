package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsift/internal/config"
	"jobsift/internal/credentials"
	"jobsift/internal/mail"
	"jobsift/internal/storage"
	"jobsift/internal/syncer"
	"jobsift/pkg/models"
	"jobsift/pkg/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type emptyStore struct {
	identities []*models.MailboxIdentity
}

func (s *emptyStore) ListMailboxIdentities(context.Context) ([]*models.MailboxIdentity, error) {
	return s.identities, nil
}

func (s *emptyStore) GetBaseProfile(context.Context, string) (*models.BaseProfile, error) {
	return nil, storage.ErrNotFound
}

func (s *emptyStore) FindJob(context.Context, string, string, string) (*models.Job, error) {
	return nil, storage.ErrNotFound
}

func (s *emptyStore) InsertJob(context.Context, *models.Job) error       { return nil }
func (s *emptyStore) InsertResume(context.Context, *models.Resume) error { return nil }

func (s *emptyStore) IsMessageHandled(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *emptyStore) MarkMessageHandled(context.Context, string, string) error { return nil }

type blockingFetcher struct {
	block chan struct{}
}

func (f *blockingFetcher) FetchPending(context.Context, *models.MailboxIdentity, string, int) ([]models.RawMessage, error) {
	if f.block != nil {
		<-f.block
	}
	return nil, nil
}

func (f *blockingFetcher) MarkProcessed(context.Context, *models.MailboxIdentity, string, []uint32) error {
	return nil
}

type captureFetcher struct {
	mu   sync.Mutex
	caps []int
}

func (f *captureFetcher) FetchPending(_ context.Context, _ *models.MailboxIdentity, _ string, maxCount int) ([]models.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caps = append(f.caps, maxCount)
	return nil, nil
}

func (f *captureFetcher) MarkProcessed(context.Context, *models.MailboxIdentity, string, []uint32) error {
	return nil
}

type noopNormalizer struct{}

func (noopNormalizer) Normalize(models.RawMessage) (*models.NormalizedEmail, error) {
	return nil, errors.New("no messages expected")
}

type offGenerator struct{}

func (offGenerator) Enabled() bool { return false }

func (offGenerator) GenerateInto(context.Context, string, interface{}) error {
	return errors.New("disabled")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Crypto.CredentialSecret = testSecret
	cfg.Sync.RunTimeout = 10 * time.Second
	cfg.Mailbox.DefaultMessageCap = 25
	cfg.Redis.Timeout = time.Second
	return cfg
}

func testOrchestrator(t *testing.T, store syncer.Store, fetcher syncer.MailFetcher) *syncer.Orchestrator {
	t.Helper()
	return syncer.NewOrchestrator(testConfig(), store, fetcher, noopNormalizer{}, offGenerator{}, offGenerator{}, nil, nil)
}

func encryptedIdentity(t *testing.T) *models.MailboxIdentity {
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
		Keywords:           []string{"engineer"},
		MatchScope:         models.MatchScopeSubject,
	}
}

func TestHealthHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	orchestrator := testOrchestrator(t, &emptyStore{}, &blockingFetcher{})

	require.NoError(t, HealthHandler(orchestrator)(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.False(t, body.Running)
}

func TestStatusHandlerIdle(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	orchestrator := testOrchestrator(t, &emptyStore{}, &blockingFetcher{})

	require.NoError(t, StatusHandler(orchestrator)(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body models.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Running)
	assert.NotNil(t, body.Errors)
}

func TestPollHandlerAccepts(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/poll", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	orchestrator := testOrchestrator(t, &emptyStore{}, &blockingFetcher{})

	require.NoError(t, PollHandler(orchestrator)(c))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body models.PollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Accepted)
	assert.True(t, body.Status.Running)

	require.Eventually(t, func() bool { return !orchestrator.Running() }, 5*time.Second, 10*time.Millisecond)
}

func TestPollHandlerConflictWhileRunning(t *testing.T) {
	e := echo.New()
	store := &emptyStore{identities: []*models.MailboxIdentity{encryptedIdentity(t)}}
	fetcher := &blockingFetcher{block: make(chan struct{})}
	orchestrator := testOrchestrator(t, store, fetcher)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/poll", nil), rec)
	require.NoError(t, PollHandler(orchestrator)(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/poll", nil), rec)
	require.NoError(t, PollHandler(orchestrator)(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body models.PollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Accepted)
	assert.True(t, body.Status.Running)

	close(fetcher.block)
	require.Eventually(t, func() bool { return !orchestrator.Running() }, 5*time.Second, 10*time.Millisecond)
}

func TestPollHandlerSyncAllBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/poll", strings.NewReader(`{"sync_all": true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	orchestrator := testOrchestrator(t, &emptyStore{}, &blockingFetcher{})

	require.NoError(t, PollHandler(orchestrator)(c))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return !orchestrator.Running() }, 5*time.Second, 10*time.Millisecond)
}

func TestPollHandlerChunkedBodyHonorsSyncAll(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/poll", strings.NewReader(`{"sync_all": true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	// Chunked transfer: the body is present but its length is unknown.
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	store := &emptyStore{identities: []*models.MailboxIdentity{encryptedIdentity(t)}}
	fetcher := &captureFetcher{}
	orchestrator := testOrchestrator(t, store, fetcher)

	require.NoError(t, PollHandler(orchestrator)(c))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return !orchestrator.Running() }, 5*time.Second, 10*time.Millisecond)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	require.Len(t, fetcher.caps, 1)
	assert.Equal(t, mail.FetchAll, fetcher.caps[0])
}

func TestPollHandlerMalformedBody(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	req := httptest.NewRequest(http.MethodPost, "/poll", strings.NewReader(`{"sync_all":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	orchestrator := testOrchestrator(t, &emptyStore{}, &blockingFetcher{})

	err := PollHandler(orchestrator)(c)

	var customErr *utils.CustomError
	require.ErrorAs(t, err, &customErr)
	assert.Equal(t, http.StatusBadRequest, customErr.Code)
	assert.False(t, orchestrator.Running())
}

func TestHistoryHandlerUnconfigured(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := HistoryHandler(nil)(c)

	var customErr *utils.CustomError
	require.ErrorAs(t, err, &customErr)
	assert.Equal(t, http.StatusServiceUnavailable, customErr.Code)
}

type staticHistory struct {
	runs []models.RunStatus
}

func (s *staticHistory) Recent(_ context.Context, limit int) ([]models.RunStatus, error) {
	if limit > len(s.runs) {
		limit = len(s.runs)
	}
	return s.runs[:limit], nil
}

func TestHistoryHandlerReturnsRuns(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/history?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	history := &staticHistory{runs: []models.RunStatus{
		{JobsInserted: 3, Errors: []string{}},
		{JobsInserted: 1, Errors: []string{}},
	}}

	require.NoError(t, HistoryHandler(history)(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []models.RunStatus `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, 3, body.Runs[0].JobsInserted)
}

func TestHistoryHandlerBadLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/history?limit=zero", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := HistoryHandler(&staticHistory{})(c)

	var customErr *utils.CustomError
	require.ErrorAs(t, err, &customErr)
	assert.Equal(t, http.StatusBadRequest, customErr.Code)
}

func TestErrorHandlerWritesErrorResponse(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(utils.NewBadRequestError("limit must be a positive integer"), c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "limit must be a positive integer", body.Message)
	assert.NotEmpty(t, body.RequestID)
}
