package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/database/models"
)

// memoryRepository is an in-memory AudioSegmentRepository for one-shot CLI
// conversions, where a SQLite file would be pointless ceremony.
type memoryRepository struct {
	segments []models.AudioSegment
	nextID   int64
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{nextID: 1}
}

func (m *memoryRepository) Create(_ context.Context, seg *models.AudioSegment) error {
	if strings.TrimSpace(seg.Transcript) == "" {
		return fmt.Errorf("audio segment %q has an empty transcript", seg.AudioRef)
	}
	seg.ID = m.nextID
	seg.CreatedAt = time.Now()
	m.nextID++
	m.segments = append(m.segments, *seg)
	return nil
}

func (m *memoryRepository) List(_ context.Context) ([]models.AudioSegment, error) {
	return m.segments, nil
}

func (m *memoryRepository) ListByCompany(_ context.Context, company string) ([]models.AudioSegment, error) {
	var out []models.AudioSegment
	for _, seg := range m.segments {
		if seg.Company == company || seg.Company == "" {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (m *memoryRepository) Companies(_ context.Context) ([]string, error) {
	return m.distinct(func(s models.AudioSegment) string { return s.Company }), nil
}

func (m *memoryRepository) Categories(_ context.Context) ([]string, error) {
	return m.distinct(func(s models.AudioSegment) string { return s.Category }), nil
}

func (m *memoryRepository) DeleteByCompany(_ context.Context, company string) error {
	var kept []models.AudioSegment
	for _, seg := range m.segments {
		if seg.Company != company {
			kept = append(kept, seg)
		}
	}
	m.segments = kept
	return nil
}

func (m *memoryRepository) Count(_ context.Context) (int64, error) {
	return int64(len(m.segments)), nil
}

func (m *memoryRepository) distinct(key func(models.AudioSegment) string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, seg := range m.segments {
		v := key(seg)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

var _ database.AudioSegmentRepository = (*memoryRepository)(nil)
