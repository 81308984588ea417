package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/database/models"
)

// maxImportSize is the upper limit for CSV catalog imports (20 MB).
const maxImportSize = 20 << 20

// segmentResponse is the JSON form of one catalog row.
type segmentResponse struct {
	ID         int64  `json:"id"`
	Company    string `json:"company"`
	Category   string `json:"category"`
	AudioRef   string `json:"audio_ref"`
	Transcript string `json:"transcript"`
	CreatedAt  string `json:"created_at"`
}

func toSegmentResponse(s *models.AudioSegment) segmentResponse {
	return segmentResponse{
		ID:         s.ID,
		Company:    s.Company,
		Category:   s.Category,
		AudioRef:   s.AudioRef,
		Transcript: s.Transcript,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

// handleListCompanies returns the distinct company identifiers in the catalog.
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.segments.Companies(r.Context())
	if err != nil {
		slog.Error("list companies: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

// handleListCategories returns the distinct categories in the catalog.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.segments.Categories(r.Context())
	if err != nil {
		slog.Error("list categories: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// handleListSegments returns catalog rows, optionally scoped to one company
// via the ?company query parameter.
func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	var (
		segs []models.AudioSegment
		err  error
	)
	if company := r.URL.Query().Get("company"); company != "" {
		segs, err = s.segments.ListByCompany(r.Context(), company)
	} else {
		segs, err = s.segments.List(r.Context())
	}
	if err != nil {
		slog.Error("list segments: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]segmentResponse, len(segs))
	for i := range segs {
		items[i] = toSegmentResponse(&segs[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleSearchSegments performs a partial-text search against the published
// index snapshot. Query parameters: q (required), company, limit.
func (s *Server) handleSearchSegments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	matches := s.catalog.Snapshot().SearchPartial(query, r.URL.Query().Get("company"), limit)

	type matchResponse struct {
		Company    string  `json:"company"`
		Category   string  `json:"category"`
		AudioRef   string  `json:"audio_ref"`
		Transcript string  `json:"transcript"`
		Similarity float64 `json:"similarity"`
	}
	items := make([]matchResponse, len(matches))
	for i, m := range matches {
		items[i] = matchResponse{
			Company:    m.Row.Company,
			Category:   m.Row.Category,
			AudioRef:   m.Row.AudioRef,
			Transcript: m.Row.Text,
			Similarity: m.Similarity,
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleImportSegments loads CSV rows into the catalog store and republishes
// the index. The request body is raw CSV; ?company sets the default company
// for rows that leave the column empty.
func (s *Server) handleImportSegments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	stats, err := database.ImportCSV(r.Context(), r.Body, s.segments, r.URL.Query().Get("company"))
	if err != nil {
		slog.Error("import segments: failed", "error", err, "imported", stats.Imported)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.catalog.Refresh(r.Context(), s.segments); err != nil {
		slog.Error("import segments: index refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog import succeeded but index refresh failed")
		return
	}

	slog.Info("catalog imported", "imported", stats.Imported, "skipped", stats.Skipped)
	writeJSON(w, http.StatusOK, stats)
}

// handleRefresh rebuilds the resolver index from the store and swaps it in
// atomically. In-flight conversions keep the snapshot they started with.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Refresh(r.Context(), s.segments); err != nil {
		slog.Error("catalog refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog refresh failed")
		return
	}

	slog.Info("catalog refreshed", "size", s.catalog.Size())
	writeJSON(w, http.StatusOK, map[string]any{"catalog_size": s.catalog.Size()})
}
