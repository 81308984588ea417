package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/CMCFame/mermaidivr/internal/database/models"
)

// audioSegmentRepo implements AudioSegmentRepository on SQLite.
type audioSegmentRepo struct {
	db *DB
}

// NewAudioSegmentRepository creates a new AudioSegmentRepository.
func NewAudioSegmentRepository(db *DB) AudioSegmentRepository {
	return &audioSegmentRepo{db: db}
}

// Create inserts a new audio segment row. Rows with an empty transcript are
// rejected: they can never be matched and would only pollute the index.
func (r *audioSegmentRepo) Create(ctx context.Context, seg *models.AudioSegment) error {
	if strings.TrimSpace(seg.Transcript) == "" {
		return fmt.Errorf("audio segment %q has an empty transcript", seg.AudioRef)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audio_segments (company, category, audio_ref, transcript, created_at)
		 VALUES (?, ?, ?, ?, datetime('now'))`,
		seg.Company, seg.Category, seg.AudioRef, seg.Transcript,
	)
	if err != nil {
		return fmt.Errorf("inserting audio segment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	seg.ID = id
	return nil
}

// List returns all segments in insertion order.
func (r *audioSegmentRepo) List(ctx context.Context) ([]models.AudioSegment, error) {
	return r.query(ctx,
		`SELECT id, company, category, audio_ref, transcript, created_at
		 FROM audio_segments ORDER BY id`)
}

// ListByCompany returns the segments scoped to one company plus the global
// segments, in insertion order.
func (r *audioSegmentRepo) ListByCompany(ctx context.Context, company string) ([]models.AudioSegment, error) {
	return r.query(ctx,
		`SELECT id, company, category, audio_ref, transcript, created_at
		 FROM audio_segments WHERE company = ? OR company = '' ORDER BY id`, company)
}

// Companies returns the distinct non-empty company identifiers.
func (r *audioSegmentRepo) Companies(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT company FROM audio_segments WHERE company != '' ORDER BY company`)
}

// Categories returns the distinct non-empty categories.
func (r *audioSegmentRepo) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT category FROM audio_segments WHERE category != '' ORDER BY category`)
}

// DeleteByCompany removes all segments scoped to one company.
func (r *audioSegmentRepo) DeleteByCompany(ctx context.Context, company string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audio_segments WHERE company = ?`, company)
	if err != nil {
		return fmt.Errorf("deleting audio segments for company %q: %w", company, err)
	}
	return nil
}

// Count returns the total number of segments.
func (r *audioSegmentRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audio_segments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting audio segments: %w", err)
	}
	return count, nil
}

func (r *audioSegmentRepo) query(ctx context.Context, q string, args ...any) ([]models.AudioSegment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audio segments: %w", err)
	}
	defer rows.Close()

	var segs []models.AudioSegment
	for rows.Next() {
		var s models.AudioSegment
		if err := rows.Scan(&s.ID, &s.Company, &s.Category, &s.AudioRef, &s.Transcript, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audio segment row: %w", err)
		}
		segs = append(segs, s)
	}
	return segs, rows.Err()
}

func (r *audioSegmentRepo) distinct(ctx context.Context, q string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q)
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
