// Package resolver maps node text onto ordered sequences of playable audio
// references, using a three-tier catalog lookup (company, then category,
// then global), greedy phrase segmentation, and article-agreement rules.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/database/models"
)

// Row is one indexed catalog entry.
type Row struct {
	Company  string
	Category string
	AudioRef string
	Text     string // normalized transcript
}

// Match is one partial-search result.
type Match struct {
	Row        Row
	Similarity float64
}

// Index is the immutable lookup structure built from one catalog snapshot.
// All fields are populated at build time and never written afterwards, so
// concurrent readers need no locking.
type Index struct {
	rows    []Row
	exact   map[string][]int // normalized text -> row indices, insertion order
	phrases []phraseEntry
	vowels  map[string]bool
}

// buildIndex constructs a fully populated Index from catalog rows. Rows with
// an empty transcript are excluded.
func buildIndex(segs []models.AudioSegment) *Index {
	idx := &Index{
		exact:  make(map[string][]int),
		vowels: defaultVowelWords(),
	}

	for _, seg := range segs {
		text := Normalize(seg.Transcript)
		if text == "" {
			continue
		}
		i := len(idx.rows)
		idx.rows = append(idx.rows, Row{
			Company:  seg.Company,
			Category: seg.Category,
			AudioRef: seg.AudioRef,
			Text:     text,
		})
		idx.exact[text] = append(idx.exact[text], i)
	}

	idx.phrases = discoverPhrases(idx.rows)
	learnVowelWords(idx.vowels, idx.rows)
	return idx
}

// Empty reports whether the index holds no usable rows.
func (idx *Index) Empty() bool {
	return idx == nil || len(idx.rows) == 0
}

// FindExact returns the catalog rows whose normalized transcript equals the
// given text, restricted to the highest-precedence tier that is non-empty:
// company-scoped rows first, then category-scoped, then global. Ties within
// a tier keep source-table insertion order.
func (idx *Index) FindExact(text, company, category string) []Row {
	if idx == nil {
		return nil
	}
	indices := idx.exact[Normalize(text)]
	if len(indices) == 0 {
		return nil
	}

	var companyRows, categoryRows, globalRows []Row
	for _, i := range indices {
		row := idx.rows[i]
		switch {
		case company != "" && row.Company == company:
			companyRows = append(companyRows, row)
		case category != "" && row.Category == category:
			categoryRows = append(categoryRows, row)
		default:
			globalRows = append(globalRows, row)
		}
	}
	if len(companyRows) > 0 {
		return companyRows
	}
	if len(categoryRows) > 0 {
		return categoryRows
	}
	return globalRows
}

// SearchPartial returns up to maxResults rows whose transcript contains the
// query (or vice versa), scored by word overlap. Company-scoped rows sort
// ahead of global rows at equal similarity.
func (idx *Index) SearchPartial(text, company string, maxResults int) []Match {
	if idx == nil || maxResults <= 0 {
		return nil
	}
	query := Normalize(text)
	if query == "" {
		return nil
	}
	queryWords := strings.Fields(query)

	var matches []Match
	for _, row := range idx.rows {
		if !strings.Contains(row.Text, query) && !strings.Contains(query, row.Text) {
			continue
		}
		rowWords := strings.Fields(row.Text)
		shorter, longer := len(queryWords), len(rowWords)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		matches = append(matches, Match{
			Row:        row,
			Similarity: float64(shorter) / float64(longer),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		iScoped := company != "" && matches[i].Row.Company == company
		jScoped := company != "" && matches[j].Row.Company == company
		return iScoped && !jScoped
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// Catalog holds the published index snapshot. Refresh builds a replacement
// index fully before publishing it, so in-flight resolutions never observe
// a partially rebuilt structure.
type Catalog struct {
	idx atomic.Pointer[Index]
}

// NewCatalog builds a catalog from an in-memory segment list.
func NewCatalog(segs []models.AudioSegment) *Catalog {
	c := &Catalog{}
	c.idx.Store(buildIndex(segs))
	return c
}

// NewCatalogFromRepository builds a catalog from the segment store.
func NewCatalogFromRepository(ctx context.Context, repo database.AudioSegmentRepository) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Refresh(ctx, repo); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh reloads all segments and atomically swaps in the new index.
func (c *Catalog) Refresh(ctx context.Context, repo database.AudioSegmentRepository) error {
	segs, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading audio segments: %w", err)
	}
	c.idx.Store(buildIndex(segs))
	return nil
}

// Snapshot returns the current index. The returned value is immutable.
func (c *Catalog) Snapshot() *Index {
	if c == nil {
		return nil
	}
	return c.idx.Load()
}

// Size returns the number of indexed rows in the current snapshot.
func (c *Catalog) Size() int {
	idx := c.Snapshot()
	if idx == nil {
		return 0
	}
	return len(idx.rows)
}
