package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sigv4-gate/internal/pkg/crypto"
	"github.com/prn-tf/sigv4-gate/internal/verify"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS access_keys (
	access_key_id    TEXT PRIMARY KEY,
	encrypted_secret TEXT NOT NULL,
	regions          TEXT NOT NULL DEFAULT '',
	services         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	created_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ
)
`

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Postgres is a credential provider backed by a pgx connection pool with
// AES-256-GCM encrypted secrets at rest.
type Postgres struct {
	pool   *pgxpool.Pool
	enc    *crypto.Encryptor
	logger zerolog.Logger
}

// NewPostgres creates the pool, verifies connectivity and ensures the schema.
func NewPostgres(ctx context.Context, cfg PostgresConfig, enc *crypto.Encryptor, logger zerolog.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &Postgres{
		pool:   pool,
		enc:    enc,
		logger: logger.With().Str("component", "provider.postgres").Logger(),
	}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Save stores or replaces an access key. The secret is encrypted at rest.
func (p *Postgres) Save(ctx context.Context, accessKeyID, secret string, cred verify.Credential, expiresAt *time.Time) error {
	encrypted, err := p.enc.Encrypt([]byte(secret))
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	query := `
		INSERT INTO access_keys (access_key_id, encrypted_secret, regions, services, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (access_key_id) DO UPDATE SET
			encrypted_secret = EXCLUDED.encrypted_secret,
			regions = EXCLUDED.regions,
			services = EXCLUDED.services,
			status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at
	`
	_, err = p.pool.Exec(ctx, query,
		accessKeyID,
		encrypted,
		strings.Join(cred.Regions, ","),
		strings.Join(cred.Services, ","),
		StatusActive,
		time.Now().UTC(),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save access key: %w", err)
	}
	return nil
}

// Lookup resolves an access key ID to its decrypted credential.
func (p *Postgres) Lookup(ctx context.Context, accessKeyID string) (*verify.Credential, error) {
	query := `
		SELECT encrypted_secret, regions, services, status, expires_at
		FROM access_keys
		WHERE access_key_id = $1
	`
	var encrypted, regions, services, status string
	var expiresAt *time.Time

	err := p.pool.QueryRow(ctx, query, accessKeyID).
		Scan(&encrypted, &regions, &services, &status, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", verify.ErrCredentialNotFound, accessKeyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query access key: %w", err)
	}

	var expires sql.NullString
	if expiresAt != nil {
		expires = sql.NullString{String: expiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	return buildCredential(p.enc, accessKeyID, encrypted, regions, services, status, expires)
}
