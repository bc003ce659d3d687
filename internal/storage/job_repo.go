package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobsift/pkg/models"
)

type jobRow struct {
	ID          string    `db:"id"`
	IdentityID  string    `db:"identity_id"`
	MessageID   string    `db:"message_id"`
	Fingerprint string    `db:"fingerprint"`
	Title       string    `db:"title"`
	Company     string    `db:"company"`
	Location    string    `db:"location"`
	Description string    `db:"description"`
	Skills      string    `db:"skills"`
	PostingURL  string    `db:"posting_url"`
	ApplyURL    string    `db:"apply_url"`
	Confidence  *float64  `db:"confidence"`
	Status      string    `db:"status"`
	ParseStatus string    `db:"parse_status"`
	Provenance  string    `db:"provenance"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *jobRow) toModel() (*models.Job, error) {
	var skills []string
	if err := json.Unmarshal([]byte(r.Skills), &skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills for job %s: %w", r.ID, err)
	}
	return &models.Job{
		ID:          r.ID,
		IdentityID:  r.IdentityID,
		MessageID:   r.MessageID,
		Fingerprint: r.Fingerprint,
		Title:       r.Title,
		Company:     r.Company,
		Location:    r.Location,
		Description: r.Description,
		Skills:      skills,
		PostingURL:  r.PostingURL,
		ApplyURL:    r.ApplyURL,
		Confidence:  r.Confidence,
		Status:      models.JobStatus(r.Status),
		ParseStatus: models.ParseStatus(r.ParseStatus),
		Provenance:  r.Provenance,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// FindJob looks up a job by its dedup identity, returning ErrNotFound when no
// matching row exists.
func (db *DB) FindJob(ctx context.Context, identityID, messageID, fingerprint string) (*models.Job, error) {
	var row jobRow
	query := `SELECT * FROM jobs WHERE identity_id = ? AND message_id = ? AND fingerprint = ?`
	err := db.GetContext(ctx, &row, query, identityID, messageID, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return row.toModel()
}

// InsertJob persists a new job. A concurrent insert of the same dedup
// identity surfaces as ErrDuplicate.
func (db *DB) InsertJob(ctx context.Context, job *models.Job) error {
	skills, err := json.Marshal(job.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO jobs (id, identity_id, message_id, fingerprint, title, company, location, description, skills, posting_url, apply_url, confidence, status, parse_status, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		job.ID,
		job.IdentityID,
		job.MessageID,
		job.Fingerprint,
		job.Title,
		job.Company,
		job.Location,
		job.Description,
		string(skills),
		job.PostingURL,
		job.ApplyURL,
		job.Confidence,
		string(job.Status),
		string(job.ParseStatus),
		job.Provenance,
		job.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// ListJobs returns jobs for an identity, newest first.
func (db *DB) ListJobs(ctx context.Context, identityID string) ([]*models.Job, error) {
	var rows []jobRow
	query := `SELECT * FROM jobs WHERE identity_id = ? ORDER BY created_at DESC, id`
	if err := db.SelectContext(ctx, &rows, query, identityID); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// InsertResume persists a generated resume record.
func (db *DB) InsertResume(ctx context.Context, resume *models.Resume) error {
	if resume.CreatedAt.IsZero() {
		resume.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO resumes (id, job_id, document, artifact_url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		resume.ID,
		resume.JobID,
		resume.Document,
		resume.ArtifactURL,
		resume.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resume: %w", err)
	}
	return nil
}

// IsMessageHandled reports whether a message id was fully processed for an
// identity in a previous run.
func (db *DB) IsMessageHandled(ctx context.Context, identityID, messageID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM processed_messages WHERE identity_id = ? AND message_id = ?`
	if err := db.GetContext(ctx, &count, query, identityID, messageID); err != nil {
		return false, fmt.Errorf("failed to check processed message: %w", err)
	}
	return count > 0, nil
}

// MarkMessageHandled records that a message completed processing. Marking the
// same message twice is a no-op.
func (db *DB) MarkMessageHandled(ctx context.Context, identityID, messageID string) error {
	query := `
		INSERT INTO processed_messages (identity_id, message_id, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(identity_id, message_id) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, query, identityID, messageID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark message handled: %w", err)
	}
	return nil
}
