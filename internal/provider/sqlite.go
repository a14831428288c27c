package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sigv4-gate/internal/pkg/crypto"
	"github.com/prn-tf/sigv4-gate/internal/verify"
)

// Access key record status values.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS access_keys (
	access_key_id    TEXT PRIMARY KEY,
	encrypted_secret TEXT NOT NULL,
	regions          TEXT NOT NULL DEFAULT '',
	services         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	created_at       TEXT NOT NULL,
	expires_at       TEXT
);
`

// SQLiteConfig holds SQLite connection settings. modernc.org/sqlite is pure
// Go, so the provider works in single-binary deployments without CGO.
type SQLiteConfig struct {
	// Path is the database file path. Use ":memory:" for tests.
	Path string

	// JournalMode sets the SQLite journal mode (WAL recommended).
	JournalMode string

	// BusyTimeout sets the busy timeout in milliseconds.
	BusyTimeout int
}

// SQLite is a credential provider backed by a SQLite database with
// AES-256-GCM encrypted secrets at rest.
type SQLite struct {
	db     *sql.DB
	enc    *crypto.Encryptor
	logger zerolog.Logger
}

// NewSQLite opens the database, applies pragmas and ensures the schema.
func NewSQLite(ctx context.Context, cfg SQLiteConfig, enc *crypto.Encryptor, logger zerolog.Logger) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite provider: path is required")
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s", cfg.JournalMode),
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout),
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &SQLite{
		db:     db,
		enc:    enc,
		logger: logger.With().Str("component", "provider.sqlite").Logger(),
	}, nil
}

// Close closes the underlying database.
func (p *SQLite) Close() error {
	return p.db.Close()
}

// Save stores or replaces an access key. The secret is encrypted at rest.
// Pass nil expiresAt for keys that never expire.
func (p *SQLite) Save(ctx context.Context, accessKeyID, secret string, cred verify.Credential, expiresAt *time.Time) error {
	encrypted, err := p.enc.Encrypt([]byte(secret))
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	var expires sql.NullString
	if expiresAt != nil {
		expires = sql.NullString{String: expiresAt.UTC().Format(time.RFC3339), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO access_keys (access_key_id, encrypted_secret, regions, services, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = p.db.ExecContext(ctx, query,
		accessKeyID,
		encrypted,
		strings.Join(cred.Regions, ","),
		strings.Join(cred.Services, ","),
		StatusActive,
		time.Now().UTC().Format(time.RFC3339),
		expires,
	)
	if err != nil {
		return fmt.Errorf("failed to save access key: %w", err)
	}
	return nil
}

// Lookup resolves an access key ID to its decrypted credential.
func (p *SQLite) Lookup(ctx context.Context, accessKeyID string) (*verify.Credential, error) {
	query := `
		SELECT encrypted_secret, regions, services, status, expires_at
		FROM access_keys
		WHERE access_key_id = ?
	`
	var encrypted, regions, services, status string
	var expiresAt sql.NullString

	err := p.db.QueryRowContext(ctx, query, accessKeyID).
		Scan(&encrypted, &regions, &services, &status, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", verify.ErrCredentialNotFound, accessKeyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query access key: %w", err)
	}

	return buildCredential(p.enc, accessKeyID, encrypted, regions, services, status, expiresAt)
}

// buildCredential applies status/expiry checks and decrypts the secret.
// Shared with the postgres provider.
func buildCredential(enc *crypto.Encryptor, accessKeyID, encrypted, regions, services, status string, expiresAt sql.NullString) (*verify.Credential, error) {
	if status != StatusActive {
		return nil, fmt.Errorf("%w: %s", verify.ErrCredentialDisabled, accessKeyID)
	}
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err == nil && time.Now().UTC().After(t) {
			return nil, fmt.Errorf("%w: %s", verify.ErrCredentialExpired, accessKeyID)
		}
	}

	secret, err := enc.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret for %s: %w", accessKeyID, err)
	}

	return &verify.Credential{
		Secret:   string(secret),
		Regions:  splitList(regions),
		Services: splitList(services),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
