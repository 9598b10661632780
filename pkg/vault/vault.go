// Package vault stores third-party provider credentials encrypted at rest.
// Every workspace gets its own derived key; plaintext key material never
// leaves the decrypt path and never appears in logs.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
)

// Credential is one stored API credential row. Encrypted fields stay
// encrypted until DecryptCredential.
type Credential struct {
	ID              uuid.UUID
	WorkspaceID     uuid.UUID
	ProviderName    string
	EncryptedKey    string
	EncryptedSecret string
	IV              string
	AuthTag         string
	CreatedBy       string
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// MaskedCredential is the only shape the list path exposes.
type MaskedCredential struct {
	ID           uuid.UUID  `json:"id"`
	ProviderName string     `json:"providerName"`
	MaskedKey    string     `json:"maskedKey"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

// PlainCredential is the decrypted form handed to provider adapters.
type PlainCredential struct {
	Key    string
	Secret string
}

// Vault manages encrypted credential storage for all workspaces.
type Vault struct {
	db        *sql.DB
	masterKey []byte
	logger    *slog.Logger
}

// NewVault creates a vault. masterKey must be exactly 32 bytes.
func NewVault(db *sql.DB, masterKey []byte, logger *slog.Logger) (*Vault, error) {
	if len(masterKey) != keySize {
		return nil, errors.New("vault: master key must be 32 bytes for AES-256")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{db: db, masterKey: masterKey, logger: logger.With("component", "vault")}, nil
}

// Init creates the credential table.
func (v *Vault) Init(ctx context.Context) error {
	_, err := v.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_credentials (
			id UUID PRIMARY KEY,
			workspace_id UUID NOT NULL,
			provider_name TEXT NOT NULL,
			encrypted_key TEXT NOT NULL,
			encrypted_secret TEXT NOT NULL,
			iv TEXT NOT NULL,
			auth_tag TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_used_at TIMESTAMPTZ,
			UNIQUE (workspace_id, provider_name)
		)`)
	if err != nil {
		return fmt.Errorf("vault: init schema: %w", err)
	}
	return nil
}

// StoreParams carries one credential write.
type StoreParams struct {
	WorkspaceID  uuid.UUID
	ProviderName string
	Key          string
	Secret       string
	CreatedBy    string
}

// Store encrypts and persists a credential. The key's IV and auth tag are
// stored in their own columns; the secret packs its parts into one column.
func (v *Vault) Store(ctx context.Context, p StoreParams) (*MaskedCredential, error) {
	if p.ProviderName == "" {
		return nil, apperr.Validation("providerName is required")
	}
	if p.Key == "" {
		return nil, apperr.Validation("key is required")
	}

	wsKey, err := DeriveWorkspaceKey(v.masterKey, p.WorkspaceID.String())
	if err != nil {
		return nil, err
	}
	encKey, err := Encrypt(p.Key, wsKey)
	if err != nil {
		return nil, err
	}
	encSecret, err := Encrypt(p.Secret, wsKey)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = v.db.ExecContext(ctx, `
		INSERT INTO api_credentials
			(id, workspace_id, provider_name, encrypted_key, encrypted_secret, iv, auth_tag, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, p.WorkspaceID, p.ProviderName, encKey.Ciphertext, PackSecret(encSecret),
		encKey.IV, encKey.AuthTag, p.CreatedBy, now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperr.Conflict(fmt.Sprintf("credential for provider %q already exists", p.ProviderName))
		}
		return nil, fmt.Errorf("vault: store credential: %w", err)
	}

	v.audit(ctx, "credential_created", p.WorkspaceID, id, p.ProviderName)
	return &MaskedCredential{
		ID:           id,
		ProviderName: p.ProviderName,
		MaskedKey:    Mask(p.Key),
		CreatedBy:    p.CreatedBy,
		CreatedAt:    now,
	}, nil
}

// List returns the workspace's credentials with keys masked. Ciphertext,
// IVs, and auth tags never leave this package.
func (v *Vault) List(ctx context.Context, workspaceID uuid.UUID) ([]MaskedCredential, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT id, provider_name, encrypted_key, iv, auth_tag, created_by, created_at, last_used_at
		FROM api_credentials
		WHERE workspace_id = $1
		ORDER BY created_at DESC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("vault: list credentials: %w", err)
	}
	defer rows.Close()

	wsKey, err := DeriveWorkspaceKey(v.masterKey, workspaceID.String())
	if err != nil {
		return nil, err
	}

	var out []MaskedCredential
	for rows.Next() {
		var (
			mc         MaskedCredential
			encKey     string
			iv, tag    string
			lastUsedAt sql.NullTime
		)
		if err := rows.Scan(&mc.ID, &mc.ProviderName, &encKey, &iv, &tag, &mc.CreatedBy, &mc.CreatedAt, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("vault: scan credential: %w", err)
		}
		key, err := Decrypt(encKey, iv, tag, wsKey)
		if err != nil {
			return nil, fmt.Errorf("vault: decrypt key for masking: %w", err)
		}
		mc.MaskedKey = Mask(key)
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			mc.LastUsedAt = &t
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// CredentialForProvider looks up the workspace's credential row for one
// provider. The row stays encrypted.
func (v *Vault) CredentialForProvider(ctx context.Context, workspaceID uuid.UUID, providerName string) (*Credential, error) {
	row := v.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, provider_name, encrypted_key, encrypted_secret, iv, auth_tag, created_by, created_at, last_used_at
		FROM api_credentials
		WHERE workspace_id = $1 AND provider_name = $2`,
		workspaceID, providerName,
	)
	return scanCredential(row)
}

// DecryptCredential decrypts a credential by id and stamps last_used_at.
// Internal callers only; the API never exposes this path.
func (v *Vault) DecryptCredential(ctx context.Context, credentialID uuid.UUID) (*PlainCredential, error) {
	row := v.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, provider_name, encrypted_key, encrypted_secret, iv, auth_tag, created_by, created_at, last_used_at
		FROM api_credentials
		WHERE id = $1`,
		credentialID,
	)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, err
	}

	wsKey, err := DeriveWorkspaceKey(v.masterKey, cred.WorkspaceID.String())
	if err != nil {
		return nil, err
	}
	key, err := Decrypt(cred.EncryptedKey, cred.IV, cred.AuthTag, wsKey)
	if err != nil {
		return nil, err
	}
	secretPayload, err := UnpackSecret(cred.EncryptedSecret)
	if err != nil {
		return nil, err
	}
	secret, err := Decrypt(secretPayload.Ciphertext, secretPayload.IV, secretPayload.AuthTag, wsKey)
	if err != nil {
		return nil, err
	}

	if _, err := v.db.ExecContext(ctx,
		`UPDATE api_credentials SET last_used_at = $1 WHERE id = $2`,
		time.Now().UTC(), credentialID,
	); err != nil {
		return nil, fmt.Errorf("vault: stamp last_used_at: %w", err)
	}

	v.audit(ctx, "credential_decrypted", cred.WorkspaceID, cred.ID, cred.ProviderName)
	return &PlainCredential{Key: key, Secret: secret}, nil
}

// Delete removes a credential.
func (v *Vault) Delete(ctx context.Context, workspaceID, credentialID uuid.UUID) error {
	res, err := v.db.ExecContext(ctx,
		`DELETE FROM api_credentials WHERE id = $1 AND workspace_id = $2`,
		credentialID, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("vault: delete credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("vault: delete credential: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("credential not found")
	}
	v.audit(ctx, "credential_deleted", workspaceID, credentialID, "")
	return nil
}

func scanCredential(row *sql.Row) (*Credential, error) {
	var (
		c          Credential
		lastUsedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.ProviderName,
		&c.EncryptedKey, &c.EncryptedSecret, &c.IV, &c.AuthTag,
		&c.CreatedBy, &c.CreatedAt, &lastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credential not found")
	}
	if err != nil {
		return nil, fmt.Errorf("vault: scan credential: %w", err)
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		c.LastUsedAt = &t
	}
	return &c, nil
}

// audit writes a structured audit event. Identifiers only: no key material,
// masked or otherwise, is ever logged.
func (v *Vault) audit(ctx context.Context, event string, workspaceID, credentialID uuid.UUID, providerName string) {
	attrs := []any{
		"event", event,
		"workspace_id", workspaceID.String(),
		"credential_id", credentialID.String(),
	}
	if providerName != "" {
		attrs = append(attrs, "provider", providerName)
	}
	v.logger.InfoContext(ctx, "credential audit", attrs...)
}
