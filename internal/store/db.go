package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{Client: db}, nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// PostgresTokens persists session tokens in the session_tokens table.
type PostgresTokens struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresTokens(db *sql.DB) *PostgresTokens {
	return &PostgresTokens{db: db, now: time.Now}
}

// Migrate creates the token table when missing.
func (p *PostgresTokens) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_tokens (
			session_id TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (p *PostgresTokens) Get(ctx context.Context, sessionID string) (string, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT token FROM session_tokens
		WHERE session_id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, sessionID, p.now().UTC())
	var tok string
	if err := row.Scan(&tok); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoToken
		}
		return "", err
	}
	return tok, nil
}

func (p *PostgresTokens) Set(ctx context.Context, sessionID, token string, expiresAt time.Time) error {
	var exp any
	if !expiresAt.IsZero() {
		exp = expiresAt.UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO session_tokens (session_id, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET
			token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, sessionID, token, exp)
	return err
}

func (p *PostgresTokens) Delete(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE session_id = $1`, sessionID)
	return err
}

func (p *PostgresTokens) DeleteIf(ctx context.Context, sessionID, token string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE session_id = $1 AND token = $2`, sessionID, token)
	return err
}

// PurgeExpired removes tokens past their expiry and reports how many went.
func (p *PostgresTokens) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`, p.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
