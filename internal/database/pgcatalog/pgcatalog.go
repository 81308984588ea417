// Package pgcatalog implements the audio segment repository on PostgreSQL,
// for deployments where several converter instances share one catalog.
package pgcatalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/database/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements database.AudioSegmentRepository using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection and runs pending migrations.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("postgresql catalog opened")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

// Create inserts a new audio segment row.
func (s *Store) Create(ctx context.Context, seg *models.AudioSegment) error {
	if strings.TrimSpace(seg.Transcript) == "" {
		return fmt.Errorf("audio segment %q has an empty transcript", seg.AudioRef)
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO audio_segments (company, category, audio_ref, transcript)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		seg.Company, seg.Category, seg.AudioRef, seg.Transcript,
	).Scan(&seg.ID)
	if err != nil {
		return fmt.Errorf("inserting audio segment: %w", err)
	}
	return nil
}

// List returns all segments in insertion order.
func (s *Store) List(ctx context.Context) ([]models.AudioSegment, error) {
	return s.query(ctx,
		`SELECT id, company, category, audio_ref, transcript, created_at
		 FROM audio_segments ORDER BY id`)
}

// ListByCompany returns the segments scoped to one company plus the global
// segments, in insertion order.
func (s *Store) ListByCompany(ctx context.Context, company string) ([]models.AudioSegment, error) {
	return s.query(ctx,
		`SELECT id, company, category, audio_ref, transcript, created_at
		 FROM audio_segments WHERE company = $1 OR company = '' ORDER BY id`, company)
}

// Companies returns the distinct non-empty company identifiers.
func (s *Store) Companies(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT company FROM audio_segments WHERE company != '' ORDER BY company`)
}

// Categories returns the distinct non-empty categories.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT category FROM audio_segments WHERE category != '' ORDER BY category`)
}

// DeleteByCompany removes all segments scoped to one company.
func (s *Store) DeleteByCompany(ctx context.Context, company string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audio_segments WHERE company = $1`, company); err != nil {
		return fmt.Errorf("deleting audio segments for company %q: %w", company, err)
	}
	return nil
}

// Count returns the total number of segments.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audio_segments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting audio segments: %w", err)
	}
	return count, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]models.AudioSegment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audio segments: %w", err)
	}
	defer rows.Close()

	var segs []models.AudioSegment
	for rows.Next() {
		var seg models.AudioSegment
		if err := rows.Scan(&seg.ID, &seg.Company, &seg.Category, &seg.AudioRef, &seg.Transcript, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audio segment row: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

func (s *Store) distinct(ctx context.Context, q string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying distinct values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Ensure Store satisfies the repository contract.
var _ database.AudioSegmentRepository = (*Store)(nil)
