package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/CMCFame/mermaidivr/internal/callflow"
	"github.com/CMCFame/mermaidivr/internal/config"
	"github.com/CMCFame/mermaidivr/internal/database/models"
	"github.com/CMCFame/mermaidivr/internal/resolver"
)

// memRepo is an in-memory segment store for handler tests.
type memRepo struct {
	segs []models.AudioSegment
}

func (m *memRepo) Create(ctx context.Context, seg *models.AudioSegment) error {
	seg.ID = int64(len(m.segs) + 1)
	m.segs = append(m.segs, *seg)
	return nil
}

func (m *memRepo) List(ctx context.Context) ([]models.AudioSegment, error) {
	return append([]models.AudioSegment(nil), m.segs...), nil
}

func (m *memRepo) ListByCompany(ctx context.Context, company string) ([]models.AudioSegment, error) {
	var out []models.AudioSegment
	for _, s := range m.segs {
		if s.Company == company || s.Company == "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepo) Companies(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, s := range m.segs {
		if s.Company != "" {
			seen[s.Company] = true
		}
	}
	var out []string
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) Categories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, s := range m.segs {
		if s.Category != "" {
			seen[s.Category] = true
		}
	}
	var out []string
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) DeleteByCompany(ctx context.Context, company string) error {
	var kept []models.AudioSegment
	for _, s := range m.segs {
		if s.Company != company {
			kept = append(kept, s)
		}
	}
	m.segs = kept
	return nil
}

func (m *memRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.segs)), nil
}

func testServer(t *testing.T, segs []models.AudioSegment) (*Server, *memRepo) {
	t.Helper()

	repo := &memRepo{segs: segs}
	catalog := resolver.NewCatalog(segs)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := resolver.New(catalog, logger)

	srv := NewServer(repo, catalog, res, &config.Config{})
	t.Cleanup(srv.Close)
	return srv, repo
}

func catalogSeed() []models.AudioSegment {
	return []models.AudioSegment{
		{ID: 1, Category: "phrase", AudioRef: "1001", Transcript: "enter your pin"},
		{ID: 2, Category: "prompt", AudioRef: "1002", Transcript: "pin correct"},
		{ID: 3, Category: "prompt", AudioRef: "1003", Transcript: "done"},
		{ID: 4, Category: "prompt", AudioRef: "1004", Transcript: "denied"},
	}
}

const pinDiagram = `flowchart TD
	A["Enter your PIN"] --> B{"PIN Correct?"}
	B -->|"Yes"| C["Done"]
	B -->|"No"| D["Denied"]`

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t, catalogSeed())

	w := doJSON(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp struct {
		Data struct {
			Status       string `json:"status"`
			CatalogSize  int    `json:"catalog_size"`
			CatalogReady bool   `json:"catalog_ready"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.Status != "ok" || !resp.Data.CatalogReady || resp.Data.CatalogSize != 4 {
		t.Errorf("health = %+v", resp.Data)
	}
}

func TestHandleConvert(t *testing.T) {
	srv, _ := testServer(t, catalogSeed())

	body, err := json.Marshal(map[string]string{"diagram": pinDiagram})
	if err != nil {
		t.Fatal(err)
	}
	w := doJSON(t, srv, http.MethodPost, "/api/v1/convert", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp struct {
		Data convertResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.Data.ConversionID == "" {
		t.Error("conversion_id is empty")
	}
	if len(resp.Data.Records) != 5 {
		t.Fatalf("got %d records: %+v", len(resp.Data.Records), resp.Data.Records)
	}
	if resp.Data.Records[0].Label != "EnterPIN" {
		t.Errorf("first label = %q", resp.Data.Records[0].Label)
	}
	if resp.Data.Records[len(resp.Data.Records)-1].Label != callflow.LabelProblems {
		t.Errorf("last label = %q", resp.Data.Records[len(resp.Data.Records)-1].Label)
	}
	if resp.Data.Report == nil || resp.Data.Report.TotalNodes != 4 {
		t.Errorf("report = %+v", resp.Data.Report)
	}
	if resp.Data.Validation == nil || !resp.Data.Validation.Valid {
		t.Errorf("validation = %+v", resp.Data.Validation)
	}
}

func TestHandleConvertRendered(t *testing.T) {
	srv, _ := testServer(t, catalogSeed())

	body, err := json.Marshal(map[string]string{"diagram": pinDiagram, "format": "js"})
	if err != nil {
		t.Fatal(err)
	}
	w := doJSON(t, srv, http.MethodPost, "/api/v1/convert", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp struct {
		Data convertResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !strings.HasPrefix(resp.Data.Rendered, "export default ") {
		t.Errorf("rendered = %q", resp.Data.Rendered)
	}
}

func TestHandleConvertErrors(t *testing.T) {
	srv, _ := testServer(t, catalogSeed())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"missing diagram", `{}`, http.StatusBadRequest},
		{"parse error", `{"diagram": "A --> B[Oops"}`, http.StatusUnprocessableEntity},
		{"unknown format", `{"diagram": "A[Hello] --> B[There]", "format": "xml"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, srv, http.MethodPost, "/api/v1/convert", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestHandleValidate(t *testing.T) {
	srv, _ := testServer(t, nil)

	body := `{"records": [{"label": "Welcome", "play_prompt": {"play": ["a:1"]}, "goto": "Nowhere"}]}`
	w := doJSON(t, srv, http.MethodPost, "/api/v1/validate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp struct {
		Data callflow.ValidationResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.Valid {
		t.Error("dangling goto reported valid")
	}
	if len(resp.Data.Issues) == 0 {
		t.Error("no issues reported")
	}
}

func TestHandleListSegments(t *testing.T) {
	srv, _ := testServer(t, []models.AudioSegment{
		{ID: 1, Company: "", Category: "phrase", AudioRef: "1", Transcript: "this is a"},
		{ID: 2, Company: "acme", Category: "greeting", AudioRef: "2", Transcript: "welcome"},
		{ID: 3, Company: "beta", Category: "greeting", AudioRef: "3", Transcript: "hello"},
	})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/catalog/segments", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data []segmentResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Errorf("got %d segments, want 3", len(resp.Data))
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/catalog/segments?company=acme", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("got %d scoped segments, want 2", len(resp.Data))
	}
}

func TestHandleSearchSegments(t *testing.T) {
	srv, _ := testServer(t, []models.AudioSegment{
		{ID: 1, Category: "callout", AudioRef: "1", Transcript: "electric callout"},
		{ID: 2, Category: "greeting", AudioRef: "2", Transcript: "welcome"},
	})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/catalog/segments/search?q=callout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data []struct {
			AudioRef   string  `json:"audio_ref"`
			Similarity float64 `json:"similarity"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].AudioRef != "1" {
		t.Errorf("matches = %+v", resp.Data)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/catalog/segments/search", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", w.Code)
	}
}

func TestHandleImportAndRefresh(t *testing.T) {
	srv, repo := testServer(t, nil)

	csvBody := "company,category,audio_ref,transcript\n,greeting,1001,welcome to the callout system\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/segments/import", strings.NewReader(csvBody))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp struct {
		Data struct {
			Imported int `json:"imported"`
			Skipped  int `json:"skipped"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.Imported != 1 || resp.Data.Skipped != 0 {
		t.Errorf("stats = %+v", resp.Data)
	}
	if len(repo.segs) != 1 {
		t.Errorf("store rows = %d, want 1", len(repo.segs))
	}

	// Import republished the index: the segment is now searchable.
	if srv.catalog.Size() != 1 {
		t.Errorf("catalog size = %d, want 1", srv.catalog.Size())
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/catalog/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}
	var refreshResp struct {
		Data struct {
			CatalogSize int `json:"catalog_size"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &refreshResp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if refreshResp.Data.CatalogSize != 1 {
		t.Errorf("catalog_size = %d, want 1", refreshResp.Data.CatalogSize)
	}
}

func TestHandleListCompanies(t *testing.T) {
	srv, _ := testServer(t, []models.AudioSegment{
		{ID: 1, Company: "beta", AudioRef: "1", Transcript: "x y"},
		{ID: 2, Company: "acme", AudioRef: "2", Transcript: "y z"},
	})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/catalog/companies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 2 || resp.Data[0] != "acme" {
		t.Errorf("companies = %v", resp.Data)
	}
}
