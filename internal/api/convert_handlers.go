package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/CMCFame/mermaidivr/internal/callflow"
	"github.com/CMCFame/mermaidivr/internal/compiler"
	"github.com/CMCFame/mermaidivr/internal/export"
	"github.com/CMCFame/mermaidivr/internal/parser"
	"github.com/google/uuid"
)

// maxDiagramSize is the upper limit for diagram text (1 MB).
const maxDiagramSize = 1 << 20

// convertRequest is the JSON body for POST /api/v1/convert.
type convertRequest struct {
	Diagram string `json:"diagram"`
	Company string `json:"company,omitempty"`
	// Format optionally requests a rendered encoding alongside the records:
	// "js", "json", or "yaml".
	Format string `json:"format,omitempty"`
}

// convertResponse is the result of one conversion.
type convertResponse struct {
	ConversionID string                     `json:"conversion_id"`
	Records      []callflow.Record          `json:"records"`
	Report       *callflow.Report           `json:"report"`
	Validation   *callflow.ValidationResult `json:"validation"`
	Rendered     string                     `json:"rendered,omitempty"`
}

// handleConvert parses the diagram, compiles it against the active resolver,
// and returns records, report, and validation in one response.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDiagramSize)

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Diagram == "" {
		writeError(w, http.StatusBadRequest, "diagram is required")
		return
	}

	company := req.Company
	if company == "" {
		company = s.cfg.Company
	}

	graph, err := parser.Parse(req.Diagram)
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			writeError(w, http.StatusUnprocessableEntity, perr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	records, report, err := compiler.Compile(graph, s.resolver, company)
	if err != nil {
		var ierr *compiler.InvariantError
		if errors.As(err, &ierr) {
			writeError(w, http.StatusUnprocessableEntity, ierr.Error())
			return
		}
		slog.Error("convert: compile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	report.ConversionID = uuid.NewString()

	resp := convertResponse{
		ConversionID: report.ConversionID,
		Records:      records,
		Report:       report,
		Validation:   callflow.Validate(records),
	}

	if req.Format != "" {
		rendered, err := export.Render(records, export.Format(req.Format))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Rendered = string(rendered)
	}

	slog.Info("diagram converted",
		"conversion_id", resp.ConversionID,
		"company", company,
		"records", len(records),
		"needs_review", report.NeedsReview,
	)

	writeJSON(w, http.StatusOK, resp)
}

// validateRequest is the JSON body for POST /api/v1/validate.
type validateRequest struct {
	Records []callflow.Record `json:"records"`
}

// handleValidate checks an externally supplied record set for structural
// integrity without compiling anything.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDiagramSize)

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	writeJSON(w, http.StatusOK, callflow.Validate(req.Records))
}
