package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobsift/pkg/models"
)

type identityRow struct {
	ID                 string    `db:"id"`
	Host               string    `db:"host"`
	Port               int       `db:"port"`
	Username           string    `db:"username"`
	PasswordCiphertext string    `db:"password_ciphertext"`
	PasswordNonce      string    `db:"password_nonce"`
	Keywords           string    `db:"keywords"`
	MatchScope         string    `db:"match_scope"`
	MessageCap         int       `db:"message_cap"`
	LLMProvider        string    `db:"llm_provider"`
	LLMModel           string    `db:"llm_model"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r *identityRow) toModel() (*models.MailboxIdentity, error) {
	var keywords []string
	if err := json.Unmarshal([]byte(r.Keywords), &keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords for identity %s: %w", r.ID, err)
	}
	return &models.MailboxIdentity{
		ID:                 r.ID,
		Host:               r.Host,
		Port:               r.Port,
		Username:           r.Username,
		PasswordCiphertext: r.PasswordCiphertext,
		PasswordNonce:      r.PasswordNonce,
		Keywords:           keywords,
		MatchScope:         r.MatchScope,
		MessageCap:         r.MessageCap,
		LLMProvider:        r.LLMProvider,
		LLMModel:           r.LLMModel,
	}, nil
}

// ListMailboxIdentities returns every configured identity in creation order.
func (db *DB) ListMailboxIdentities(ctx context.Context) ([]*models.MailboxIdentity, error) {
	var rows []identityRow
	query := `SELECT * FROM mailbox_identities ORDER BY created_at, id`
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list mailbox identities: %w", err)
	}

	identities := make([]*models.MailboxIdentity, 0, len(rows))
	for i := range rows {
		identity, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// CreateMailboxIdentity inserts a new identity.
func (db *DB) CreateMailboxIdentity(ctx context.Context, identity *models.MailboxIdentity) error {
	keywords, err := json.Marshal(identity.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	query := `
		INSERT INTO mailbox_identities (id, host, port, username, password_ciphertext, password_nonce, keywords, match_scope, message_cap, llm_provider, llm_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		identity.ID,
		identity.Host,
		identity.Port,
		identity.Username,
		identity.PasswordCiphertext,
		identity.PasswordNonce,
		string(keywords),
		identity.MatchScope,
		identity.MessageCap,
		identity.LLMProvider,
		identity.LLMModel,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create mailbox identity: %w", err)
	}
	return nil
}

// GetBaseProfile returns the resume base profile for an identity, or
// ErrNotFound when none is configured.
func (db *DB) GetBaseProfile(ctx context.Context, identityID string) (*models.BaseProfile, error) {
	var document string
	query := `SELECT document FROM base_profiles WHERE identity_id = ?`
	err := db.GetContext(ctx, &document, query, identityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get base profile: %w", err)
	}

	var profile models.BaseProfile
	if err := json.Unmarshal([]byte(document), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode base profile for %s: %w", identityID, err)
	}
	profile.IdentityID = identityID
	return &profile, nil
}

// SaveBaseProfile stores or replaces the base profile for an identity.
func (db *DB) SaveBaseProfile(ctx context.Context, profile *models.BaseProfile) error {
	document, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode base profile: %w", err)
	}

	query := `
		INSERT INTO base_profiles (identity_id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, profile.IdentityID, string(document), time.Now()); err != nil {
		return fmt.Errorf("failed to save base profile: %w", err)
	}
	return nil
}
