// Package store persists report records and aggregator credentials in
// PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

//go:embed migrations/0001_init.sql
var schema string

// Migrate applies the schema. Statements are idempotent, so running it on
// every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Report is a persisted report record.
type Report struct {
	ID        int64
	Name      string
	URL       string
	Username  string
	CreatedAt time.Time
}

// Connect opens a connection pool against dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store reads and writes the moniewatch tables.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New creates a store on an established pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: logging.NewLogger("store"),
	}
}

// SaveReport records a generated report for a principal.
func (s *Store) SaveReport(ctx context.Context, name, url, username string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (name, url, username) VALUES ($1, $2, $3)`,
		name, url, username)
	if err != nil {
		return fmt.Errorf("save report %s: %w", name, err)
	}
	s.logger.Debug().Str("name", name).Str("principal", username).Msg("Report record saved")
	return nil
}

// ListReports returns the reports for a principal, newest first.
func (s *Store) ListReports(ctx context.Context, username string) ([]Report, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, username, created_at
		   FROM reports WHERE username = $1 ORDER BY created_at DESC`,
		username)
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", username, err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Name, &r.URL, &r.Username, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPrincipals returns every enabled aggregator account.
func (s *Store) ListPrincipals(ctx context.Context) ([]aggregator.Principal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username, password, email, name, mobile
		   FROM principals WHERE enabled ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []aggregator.Principal
	for rows.Next() {
		var p aggregator.Principal
		if err := rows.Scan(&p.Username, &p.Password, &p.Email, &p.Name, &p.Mobile); err != nil {
			return nil, fmt.Errorf("scan principal row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPrincipal looks up one aggregator account by username.
func (s *Store) GetPrincipal(ctx context.Context, username string) (*aggregator.Principal, error) {
	var p aggregator.Principal
	err := s.pool.QueryRow(ctx,
		`SELECT username, password, email, name, mobile
		   FROM principals WHERE username = $1`,
		username).Scan(&p.Username, &p.Password, &p.Email, &p.Name, &p.Mobile)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("principal %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get principal %s: %w", username, err)
	}
	return &p, nil
}

// SavePrincipal inserts or updates an aggregator account.
func (s *Store) SavePrincipal(ctx context.Context, p aggregator.Principal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO principals (username, password, email, name, mobile, enabled)
		 VALUES ($1, $2, $3, $4, $5, TRUE)
		 ON CONFLICT (username) DO UPDATE
		    SET password = EXCLUDED.password,
		        email    = EXCLUDED.email,
		        name     = EXCLUDED.name,
		        mobile   = EXCLUDED.mobile`,
		p.Username, p.Password, p.Email, p.Name, p.Mobile)
	if err != nil {
		return fmt.Errorf("save principal %s: %w", p.Username, err)
	}
	return nil
}
