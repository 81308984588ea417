package resolver

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/CMCFame/mermaidivr/internal/callflow"
	"github.com/CMCFame/mermaidivr/internal/database/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog() *Catalog {
	return NewCatalog([]models.AudioSegment{
		{Company: "", Category: "phrase", AudioRef: "1001", Transcript: "this is a"},
		{Company: "", Category: "phrase", AudioRef: "1002", Transcript: "this is an"},
		{Company: "", Category: "callout", AudioRef: "2001", Transcript: "electric callout"},
		{Company: "", Category: "callout", AudioRef: "2002", Transcript: "normal callout"},
		{Company: "", Category: "greeting", AudioRef: "3001", Transcript: "welcome to the callout system"},
		{Company: "acme", Category: "greeting", AudioRef: "9001", Transcript: "welcome to the callout system"},
		{Company: "", Category: "phrase", AudioRef: "1003", Transcript: "please press"},
		{Company: "", Category: "phrase", AudioRef: "1004", Transcript: "to accept"},
		{Company: "", Category: "prompt", AudioRef: "4001", Transcript: "please report to"},
	})
}

func plays(plan callflow.PromptPlan) []string {
	out := make([]string, len(plan.Play))
	for i, ref := range plan.Play {
		out[i] = string(ref)
	}
	return out
}

func TestResolveExactMatch(t *testing.T) {
	r := New(testCatalog(), testLogger())

	plan := r.Resolve("Welcome to the callout system!", "")
	if !reflect.DeepEqual(plays(plan), []string{"greeting:3001"}) {
		t.Errorf("play = %v", plan.Play)
	}
	if plan.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", plan.Confidence)
	}
	if plan.RequiresReview {
		t.Error("exact match must not need review")
	}
	if len(plan.Missing) != 0 {
		t.Errorf("missing = %v", plan.Missing)
	}
}

func TestResolveCompanyPrecedence(t *testing.T) {
	r := New(testCatalog(), testLogger())

	plan := r.Resolve("welcome to the callout system", "acme")
	if !reflect.DeepEqual(plays(plan), []string{"greeting:9001"}) {
		t.Errorf("company-scoped play = %v", plan.Play)
	}

	// Unknown company falls back to the first-inserted global row.
	plan = r.Resolve("welcome to the callout system", "other")
	if !reflect.DeepEqual(plays(plan), []string{"greeting:3001"}) {
		t.Errorf("global fallback play = %v", plan.Play)
	}
}

func TestResolveArticleAgreement(t *testing.T) {
	r := New(testCatalog(), testLogger())

	// "electric" takes "an": the recorded "this is an" variant is swapped in.
	plan := r.Resolve("This is a electric callout", "")
	if !reflect.DeepEqual(plays(plan), []string{"phrase:1002", "callout:2001"}) {
		t.Errorf("play = %v", plan.Play)
	}
	if plan.Confidence != 1 || plan.RequiresReview {
		t.Errorf("plan = %+v", plan)
	}

	// "normal" keeps "a".
	plan = r.Resolve("This is a normal callout", "")
	if !reflect.DeepEqual(plays(plan), []string{"phrase:1001", "callout:2002"}) {
		t.Errorf("play = %v", plan.Play)
	}
}

func TestResolveNamedVariable(t *testing.T) {
	r := New(testCatalog(), testLogger())

	plan := r.Resolve("Please report to (callout location)", "")
	want := []string{"prompt:4001", "location:{{callout_location}}"}
	if !reflect.DeepEqual(plays(plan), want) {
		t.Errorf("play = %v, want %v", plan.Play, want)
	}
	if plan.RequiresReview {
		t.Errorf("plan = %+v", plan)
	}
}

func TestResolveLevelPattern(t *testing.T) {
	r := New(testCatalog(), testLogger())

	plan := r.Resolve("level 2 callout", "")
	if plays(plan)[0] != "level:{{callout_level}}" {
		t.Errorf("play = %v", plan.Play)
	}
	// "callout" alone is not recorded: low confidence forces review.
	if !plan.RequiresReview {
		t.Error("want review for unresolved trailing word")
	}
	if !reflect.DeepEqual(plan.Missing, []string{"callout"}) {
		t.Errorf("missing = %v", plan.Missing)
	}
}

func TestResolveBareInteger(t *testing.T) {
	r := New(testCatalog(), testLogger())

	plan := r.Resolve("wait 5 minutes", "")
	if !reflect.DeepEqual(plays(plan), []string{"digits:5"}) {
		t.Errorf("play = %v", plan.Play)
	}
	if !reflect.DeepEqual(plan.Missing, []string{"wait", "minutes"}) {
		t.Errorf("missing = %v", plan.Missing)
	}
	if !plan.RequiresReview {
		t.Error("want review")
	}
	if plan.Confidence >= ReviewThreshold {
		t.Errorf("confidence = %v", plan.Confidence)
	}
}

func TestResolveEmptyCatalogDegrades(t *testing.T) {
	r := New(NewCatalog(nil), testLogger())

	plan := r.Resolve("Enter your PIN", "")
	if !reflect.DeepEqual(plays(plan), []string{"text:enter_your_pin"}) {
		t.Errorf("play = %v", plan.Play)
	}
	if !reflect.DeepEqual(plan.Missing, []string{"enter your pin"}) {
		t.Errorf("missing = %v", plan.Missing)
	}
	if plan.Confidence != 0 || !plan.RequiresReview {
		t.Errorf("plan = %+v", plan)
	}
}

func TestFallbackResolver(t *testing.T) {
	plan := Fallback{}.Resolve("We're sorry, please try again later.", "acme")
	if len(plan.Play) != 1 {
		t.Fatalf("play = %v", plan.Play)
	}
	if plan.Play[0] != "text:we_re_sorry_please_try_again_later" {
		t.Errorf("play = %v", plan.Play)
	}
	if !plan.RequiresReview || plan.Confidence != 0 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Enter your PIN!", "enter your pin"},
		{"  Spaced   out \n words ", "spaced out words"},
		{"(Employee Name)", "(employee name)"},
		{"Level 2, please", "level 2 please"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenizeKeepsVariableGroups(t *testing.T) {
	got := tokenize("Please report to (callout location) now")
	want := []string{"please", "report", "to", "(callout location)", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
}

func TestLongestPhrasePrefix(t *testing.T) {
	idx := buildIndex([]models.AudioSegment{
		{AudioRef: "1", Transcript: "please"},
		{AudioRef: "2", Transcript: "please press"},
	})

	row, n := idx.longestPhrasePrefix([]string{"please", "press", "1"})
	if n != 2 {
		t.Fatalf("consumed = %d, want 2 (longest first)", n)
	}
	if row.AudioRef != "2" {
		t.Errorf("row = %+v", row)
	}

	if _, n := idx.longestPhrasePrefix([]string{"goodbye", "now"}); n != 0 {
		t.Errorf("consumed = %d for unknown prefix", n)
	}
}

func TestLearnVowelWordsFromCatalog(t *testing.T) {
	idx := buildIndex([]models.AudioSegment{
		{AudioRef: "1", Transcript: "this is an overnight callout"},
	})
	if !idx.wantsAn("overnight") {
		t.Error("word after a recorded \"an\" should take the an-variant")
	}
	if idx.wantsAn("normal") {
		t.Error("unrelated word must not take the an-variant")
	}
}

func TestSearchPartial(t *testing.T) {
	idx := testCatalog().Snapshot()

	matches := idx.SearchPartial("callout", "", 3)
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	// Two-word transcripts score above the five-word greeting.
	if matches[0].Similarity != 0.5 || matches[1].Similarity != 0.5 {
		t.Errorf("similarities = %v, %v", matches[0].Similarity, matches[1].Similarity)
	}
	if matches[0].Row.Text != "electric callout" {
		t.Errorf("first match = %+v", matches[0].Row)
	}

	if got := idx.SearchPartial("zzz", "", 5); len(got) != 0 {
		t.Errorf("matches = %v", got)
	}
}

func TestSearchPartialCompanyScopedFirst(t *testing.T) {
	idx := testCatalog().Snapshot()

	matches := idx.SearchPartial("welcome to the callout system", "acme", 5)
	if len(matches) < 2 {
		t.Fatalf("got %d matches", len(matches))
	}
	if matches[0].Row.Company != "acme" {
		t.Errorf("first match company = %q, want acme", matches[0].Row.Company)
	}
}

// fakeRepo serves a fixed segment list for refresh tests.
type fakeRepo struct {
	segs []models.AudioSegment
	err  error
}

func (f *fakeRepo) Create(ctx context.Context, seg *models.AudioSegment) error { return f.err }

func (f *fakeRepo) List(ctx context.Context) ([]models.AudioSegment, error) { return f.segs, f.err }

func (f *fakeRepo) ListByCompany(ctx context.Context, company string) ([]models.AudioSegment, error) {
	return f.segs, f.err
}

func (f *fakeRepo) Companies(ctx context.Context) ([]string, error) { return nil, f.err }

func (f *fakeRepo) Categories(ctx context.Context) ([]string, error) { return nil, f.err }

func (f *fakeRepo) DeleteByCompany(ctx context.Context, company string) error { return f.err }

func (f *fakeRepo) Count(ctx context.Context) (int64, error) { return int64(len(f.segs)), f.err }

func TestCatalogRefreshSwapsSnapshot(t *testing.T) {
	c := NewCatalog(nil)
	if c.Size() != 0 {
		t.Fatalf("size = %d, want 0", c.Size())
	}
	before := c.Snapshot()

	repo := &fakeRepo{segs: []models.AudioSegment{
		{Category: "greeting", AudioRef: "1", Transcript: "hello there"},
		{Category: "greeting", AudioRef: "2", Transcript: ""},
	}}
	if err := c.Refresh(context.Background(), repo); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	// Empty transcripts are excluded from the index.
	if c.Size() != 1 {
		t.Errorf("size = %d, want 1", c.Size())
	}
	if c.Snapshot() == before {
		t.Error("snapshot not swapped")
	}
	if !before.Empty() {
		t.Error("old snapshot must stay empty")
	}
}
