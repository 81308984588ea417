package database

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/CMCFame/mermaidivr/internal/database/models"
)

// ImportStats summarizes one CSV import run.
type ImportStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// csvColumns is the expected column order: company, category, audio_ref,
// transcript. A header row using these names is detected and skipped.
const csvColumnCount = 4

// ImportCSV loads audio segment rows from CSV into the catalog store.
// Rows with an empty transcript are skipped and counted, not rejected, so a
// partially clean export still imports. Rows with an empty company fall back
// to defaultCompany (which may itself be empty for global segments).
func ImportCSV(ctx context.Context, r io.Reader, repo AudioSegmentRepository, defaultCompany string) (*ImportStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	stats := &ImportStats{}
	first := true

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading csv: %w", err)
		}

		if first {
			first = false
			if isHeaderRow(record) {
				continue
			}
		}

		if len(record) < csvColumnCount {
			stats.Skipped++
			continue
		}

		seg := models.AudioSegment{
			Company:    strings.TrimSpace(record[0]),
			Category:   strings.TrimSpace(record[1]),
			AudioRef:   strings.TrimSpace(record[2]),
			Transcript: strings.TrimSpace(record[3]),
		}
		if seg.Company == "" {
			seg.Company = defaultCompany
		}
		if seg.AudioRef == "" || seg.Transcript == "" {
			stats.Skipped++
			continue
		}

		if err := repo.Create(ctx, &seg); err != nil {
			return stats, fmt.Errorf("inserting row %q: %w", seg.AudioRef, err)
		}
		stats.Imported++
	}

	return stats, nil
}

// isHeaderRow detects the conventional header line.
func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "company" || first == "company_id"
}
