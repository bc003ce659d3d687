package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"jobsift/internal/config"
	"jobsift/internal/credentials"
	"jobsift/internal/logging"
	"jobsift/internal/logging/types"
	"jobsift/internal/mail"
	"jobsift/internal/pipeline"
	"jobsift/internal/resume"
	"jobsift/internal/storage"
	"jobsift/pkg/models"
)

// ErrAlreadyRunning is returned by Trigger when a sync run is in flight.
var ErrAlreadyRunning = errors.New("sync already running")

// MailFetcher is the slice of the IMAP session manager the orchestrator uses.
type MailFetcher interface {
	FetchPending(ctx context.Context, identity *models.MailboxIdentity, password string, maxCount int) ([]models.RawMessage, error)
	MarkProcessed(ctx context.Context, identity *models.MailboxIdentity, password string, uids []uint32) error
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	ListMailboxIdentities(ctx context.Context) ([]*models.MailboxIdentity, error)
	GetBaseProfile(ctx context.Context, identityID string) (*models.BaseProfile, error)
	FindJob(ctx context.Context, identityID, messageID, fingerprint string) (*models.Job, error)
	InsertJob(ctx context.Context, job *models.Job) error
	InsertResume(ctx context.Context, r *models.Resume) error
	IsMessageHandled(ctx context.Context, identityID, messageID string) (bool, error)
	MarkMessageHandled(ctx context.Context, identityID, messageID string) error
}

// Uploader publishes rendered resume PDFs and returns their public URL.
type Uploader interface {
	UploadResume(identityID, jobID string, pdfData []byte) (string, error)
}

// HistoryRecorder persists completed run snapshots.
type HistoryRecorder interface {
	Record(ctx context.Context, status models.RunStatus) error
}

// Normalizer converts raw IMAP messages into the canonical email form.
type Normalizer interface {
	Normalize(raw models.RawMessage) (*models.NormalizedEmail, error)
}

// Orchestrator owns the single background sync run and its pollable status.
// At most one run exists at a time; Trigger is the only way to start one and
// Status can be read concurrently at any point.
type Orchestrator struct {
	cfg        *config.Config
	store      Store
	fetcher    MailFetcher
	normalizer Normalizer
	generator  pipeline.Generator
	extractor  *pipeline.Extractor
	enricher   *pipeline.Enricher
	tailor     *resume.Tailor
	renderer   *resume.Renderer
	uploader   Uploader
	history    HistoryRecorder
	validate   *validator.Validate
	logger     types.Logger

	st *state
}

// NewOrchestrator wires the sync pipeline. uploader and history may be nil
// when the corresponding backends are not configured.
func NewOrchestrator(
	cfg *config.Config,
	store Store,
	fetcher MailFetcher,
	normalizer Normalizer,
	generator pipeline.Generator,
	tailorGen resume.Generator,
	uploader Uploader,
	history HistoryRecorder,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		fetcher:    fetcher,
		normalizer: normalizer,
		generator:  generator,
		extractor:  pipeline.NewExtractor(generator),
		enricher:   pipeline.NewEnricher(generator),
		tailor:     resume.NewTailor(tailorGen),
		renderer:   resume.NewRenderer(),
		uploader:   uploader,
		history:    history,
		validate:   validator.New(),
		logger:     logging.GetGlobalLogger(),
		st:         newState(),
	}
}

// Status returns a copy of the current run snapshot.
func (o *Orchestrator) Status() models.RunStatus {
	return o.st.snapshot()
}

// Running reports whether a sync run is currently in flight.
func (o *Orchestrator) Running() bool {
	return o.st.snapshot().Running
}

// Trigger starts a background sync run and returns the freshly reset status
// snapshot. When a run is already in flight it returns the current snapshot
// together with ErrAlreadyRunning and starts nothing.
func (o *Orchestrator) Trigger(syncAll bool) (models.RunStatus, error) {
	snapshot, ok := o.st.begin()
	if !ok {
		return snapshot, ErrAlreadyRunning
	}

	o.logger.Info("Sync run accepted", map[string]interface{}{
		"sync_all": syncAll,
	})

	go o.run(syncAll)
	return snapshot, nil
}

func (o *Orchestrator) run(syncAll bool) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Sync.RunTimeout)

	defer func() {
		if r := recover(); r != nil {
			o.st.addError(fmt.Sprintf("sync run panicked: %v", r))
			o.logger.Error("Sync run panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
		}
		cancel()
		final := o.st.finish()
		o.recordHistory(final)
		o.logger.Info("Sync run finished", map[string]interface{}{
			"emails_scanned":    final.EmailsScanned,
			"keyword_matches":   final.KeywordMatches,
			"jobs_inserted":     final.JobsInserted,
			"duplicates":        final.DuplicatesSkipped,
			"resumes_generated": final.ResumesGenerated,
			"errors":            len(final.Errors),
		})
	}()

	gate, err := credentials.NewGate(o.cfg.Crypto.CredentialSecret)
	if err != nil {
		o.st.addError(fmt.Sprintf("credential secret unusable: %v", err))
		return
	}

	// A disabled generator is a configuration problem the operator must be
	// able to see on the status endpoint; the run still proceeds on the
	// deterministic paths.
	if !o.generator.Enabled() {
		o.st.addError("generation capability disabled: extraction and resume tailoring used deterministic fallbacks")
	}

	identities, err := o.store.ListMailboxIdentities(ctx)
	if err != nil {
		o.st.addError(fmt.Sprintf("failed to load mailbox identities: %v", err))
		return
	}

	for _, identity := range identities {
		if ctx.Err() != nil {
			o.st.addError("sync run deadline exceeded")
			return
		}
		o.syncIdentity(ctx, gate, identity, syncAll)
	}
}

func (o *Orchestrator) syncIdentity(ctx context.Context, gate *credentials.Gate, identity *models.MailboxIdentity, syncAll bool) {
	if err := o.validate.Struct(identity); err != nil {
		o.st.addError(fmt.Sprintf("identity %s misconfigured: %v", identity.ID, err))
		return
	}

	password, err := gate.Decrypt(identity.PasswordCiphertext, identity.PasswordNonce)
	if err != nil {
		o.st.addError(fmt.Sprintf("identity %s: credential decryption failed: %v", identity.ID, err))
		return
	}

	maxCount := identity.MessageCap
	if maxCount <= 0 {
		maxCount = o.cfg.Mailbox.DefaultMessageCap
	}
	if syncAll {
		maxCount = mail.FetchAll
	}

	messages, err := o.fetcher.FetchPending(ctx, identity, password, maxCount)
	if err != nil {
		if errors.Is(err, mail.ErrAuthentication) {
			o.st.addError(fmt.Sprintf("identity %s: mailbox login rejected, check stored credentials", identity.ID))
		} else {
			o.st.addError(fmt.Sprintf("identity %s: mailbox fetch failed: %v", identity.ID, err))
		}
		return
	}

	var processedUIDs []uint32
	for i := range messages {
		if ctx.Err() != nil {
			o.st.addError("sync run deadline exceeded")
			break
		}
		if done := o.processMessage(ctx, identity, &messages[i]); done {
			processedUIDs = append(processedUIDs, messages[i].UID)
		}
	}

	if err := o.fetcher.MarkProcessed(ctx, identity, password, processedUIDs); err != nil {
		o.st.addError(fmt.Sprintf("identity %s: failed to flag processed messages: %v", identity.ID, err))
	}
}

// processMessage runs one message through the full pipeline. It returns true
// only when the message produced at least one persisted or duplicate
// outcome, which is when it may be flagged seen on the server. Irrelevant
// and already-handled messages are recorded in the store but leave the
// user's mailbox untouched; unreadable ones stay unrecorded so the next run
// retries them.
func (o *Orchestrator) processMessage(ctx context.Context, identity *models.MailboxIdentity, raw *models.RawMessage) bool {
	o.st.mutate(func(s *models.RunStatus) { s.EmailsScanned++ })

	email, err := o.normalizer.Normalize(*raw)
	if err != nil {
		o.st.addError(fmt.Sprintf("identity %s: message uid %d unreadable: %v", identity.ID, raw.UID, err))
		return false
	}

	handled, err := o.store.IsMessageHandled(ctx, identity.ID, email.MessageID)
	if err != nil {
		o.st.addError(fmt.Sprintf("identity %s: dedup lookup failed: %v", identity.ID, err))
		return false
	}
	if handled {
		return false
	}

	if !pipeline.IsRelevant(email, identity.Keywords, identity.MatchScopeIncludesBody()) {
		o.markHandled(ctx, identity.ID, email.MessageID)
		return false
	}
	o.st.mutate(func(s *models.RunStatus) { s.KeywordMatches++ })

	outcome := o.extractor.Extract(ctx, email)
	if outcome.Degraded {
		o.logger.Warn("Extraction degraded", map[string]interface{}{
			"identity_id": identity.ID,
			"message_id":  email.MessageID,
			"reason":      outcome.Reason,
		})
	}
	o.st.mutate(func(s *models.RunStatus) { s.OpportunitiesExtracted += len(outcome.Value) })

	for i := range outcome.Value {
		o.processCandidate(ctx, identity, email, outcome.Value[i])
	}

	o.markHandled(ctx, identity.ID, email.MessageID)
	return true
}

func (o *Orchestrator) processCandidate(ctx context.Context, identity *models.MailboxIdentity, email *models.NormalizedEmail, candidate models.OpportunityCandidate) {
	enriched := o.enricher.Enrich(ctx, candidate, email.Links).Value
	fingerprint := pipeline.Fingerprint(email.MessageID, &enriched)

	if _, err := o.store.FindJob(ctx, identity.ID, email.MessageID, fingerprint); err == nil {
		o.st.mutate(func(s *models.RunStatus) { s.DuplicatesSkipped++ })
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		o.st.addError(fmt.Sprintf("identity %s: job lookup failed: %v", identity.ID, err))
		return
	}

	job := o.buildJob(identity, email, &enriched, fingerprint)
	if err := o.store.InsertJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			o.st.mutate(func(s *models.RunStatus) { s.DuplicatesSkipped++ })
			return
		}
		o.st.addError(fmt.Sprintf("identity %s: job insert failed: %v", identity.ID, err))
		return
	}
	o.st.mutate(func(s *models.RunStatus) { s.JobsInserted++ })

	o.generateResume(ctx, identity, job)
}

func (o *Orchestrator) buildJob(identity *models.MailboxIdentity, email *models.NormalizedEmail, candidate *models.OpportunityCandidate, fingerprint string) *models.Job {
	provenance := "llm"
	parseStatus := models.ParseStatusParsed
	if fallback, ok := candidate.Raw["fallback"].(bool); ok && fallback {
		provenance = "deterministic"
		parseStatus = models.ParseStatusPartial
	}

	// An opportunity without a direct application link is still actionable
	// through its posting link.
	applyURL := candidate.ApplyURL
	if applyURL == "" {
		applyURL = candidate.PostingURL
	}

	return &models.Job{
		ID:          uuid.New().String(),
		IdentityID:  identity.ID,
		MessageID:   email.MessageID,
		Fingerprint: fingerprint,
		Title:       candidate.Title,
		Company:     candidate.Company,
		Location:    candidate.Location,
		Description: candidate.Description,
		Skills:      candidate.Skills,
		PostingURL:  candidate.PostingURL,
		ApplyURL:    applyURL,
		Confidence:  candidate.Confidence,
		Status:      models.StatusPrepared,
		ParseStatus: parseStatus,
		Provenance:  provenance,
		CreatedAt:   time.Now(),
	}
}

// generateResume runs the tailor-render-upload-persist chain. Failures here
// never undo the job insert; they only surface in the run status.
func (o *Orchestrator) generateResume(ctx context.Context, identity *models.MailboxIdentity, job *models.Job) {
	profile, err := o.store.GetBaseProfile(ctx, identity.ID)
	if errors.Is(err, storage.ErrNotFound) {
		profile = resume.DefaultProfile(identity)
	} else if err != nil {
		o.st.mutate(func(s *models.RunStatus) { s.ResumesFailed++ })
		o.st.addError(fmt.Sprintf("identity %s: base profile load failed: %v", identity.ID, err))
		return
	}

	doc, fellBack := o.tailor.Generate(ctx, profile, job)
	if fellBack {
		o.logger.Info("Resume tailored from base profile without generation", map[string]interface{}{
			"job_id": job.ID,
		})
	}

	pdfData, err := o.renderer.Render(doc)
	if err != nil {
		o.st.mutate(func(s *models.RunStatus) { s.ResumesFailed++ })
		o.st.addError(fmt.Sprintf("job %s: resume rendering failed: %v", job.ID, err))
		return
	}

	artifactURL := ""
	if o.uploader != nil {
		if url, err := o.uploader.UploadResume(identity.ID, job.ID, pdfData); err != nil {
			o.st.addError(fmt.Sprintf("job %s: resume upload failed: %v", job.ID, err))
		} else {
			artifactURL = url
		}
	}

	document, err := json.Marshal(doc)
	if err != nil {
		o.st.mutate(func(s *models.RunStatus) { s.ResumesFailed++ })
		o.st.addError(fmt.Sprintf("job %s: resume encoding failed: %v", job.ID, err))
		return
	}

	record := &models.Resume{
		ID:          uuid.New().String(),
		JobID:       job.ID,
		Document:    string(document),
		ArtifactURL: artifactURL,
		CreatedAt:   time.Now(),
	}
	if err := o.store.InsertResume(ctx, record); err != nil {
		o.st.mutate(func(s *models.RunStatus) { s.ResumesFailed++ })
		o.st.addError(fmt.Sprintf("job %s: resume persist failed: %v", job.ID, err))
		return
	}
	o.st.mutate(func(s *models.RunStatus) { s.ResumesGenerated++ })
}

func (o *Orchestrator) markHandled(ctx context.Context, identityID, messageID string) {
	if err := o.store.MarkMessageHandled(ctx, identityID, messageID); err != nil {
		o.st.addError(fmt.Sprintf("identity %s: failed to record handled message: %v", identityID, err))
	}
}

func (o *Orchestrator) recordHistory(final models.RunStatus) {
	if o.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Redis.Timeout)
	defer cancel()
	if err := o.history.Record(ctx, final); err != nil {
		o.logger.Warn("Failed to record run history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
