package database

import (
	"context"

	"github.com/CMCFame/mermaidivr/internal/database/models"
)

// AudioSegmentRepository manages recorded speech segments. List ordering is
// always insertion order (row id), which the resolver relies on for its
// first-inserted-row tie-break.
type AudioSegmentRepository interface {
	Create(ctx context.Context, seg *models.AudioSegment) error
	List(ctx context.Context) ([]models.AudioSegment, error)
	ListByCompany(ctx context.Context, company string) ([]models.AudioSegment, error)
	Companies(ctx context.Context) ([]string, error)
	Categories(ctx context.Context) ([]string, error)
	DeleteByCompany(ctx context.Context, company string) error
	Count(ctx context.Context) (int64, error)
}
