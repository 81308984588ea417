package resolver

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/CMCFame/mermaidivr/internal/callflow"
)

// ReviewThreshold is the single confidence cutoff below which a prompt plan
// is flagged for human review. A plan is also flagged whenever any fragment
// went unresolved, regardless of confidence.
const ReviewThreshold = 0.8

// Per-segment confidence levels by match kind.
const (
	confExact   = 1.0
	confPhrase  = 0.9
	confVar     = 0.9
	confUnknown = 0.3
)

// maxWindowWords is the widest exact-match window the segmenter tries.
const maxWindowWords = 6

// PromptResolver converts node text into a prompt plan. Implementations must
// be safe for concurrent use.
type PromptResolver interface {
	Resolve(text, company string) callflow.PromptPlan
}

// Resolver resolves text against a catalog snapshot.
type Resolver struct {
	catalog *Catalog
	logger  *slog.Logger
}

// New creates a catalog-backed resolver.
func New(catalog *Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{
		catalog: catalog,
		logger:  logger.With("subsystem", "resolver"),
	}
}

// segment is one resolved (or unresolved) chunk of node text.
type segment struct {
	text       string
	ref        callflow.AudioReference
	confidence float64
	missing    bool
}

// Resolve maps node text to an ordered audio reference sequence. With an
// empty or unavailable catalog it degrades to a raw-text plan so the diagram
// still compiles for review.
func (r *Resolver) Resolve(text, company string) callflow.PromptPlan {
	idx := r.catalog.Snapshot()
	if idx.Empty() {
		return fallbackPlan(text)
	}

	// Exact-match fast path on the whole normalized text.
	if rows := idx.FindExact(text, company, ""); len(rows) > 0 {
		return assemble([]segment{{
			text:       Normalize(text),
			ref:        staticRef(rows[0]),
			confidence: confExact,
		}})
	}

	// Lines are segmented independently: embedded newlines are hard
	// boundaries between prompt sentences.
	var segs []segment
	for _, line := range strings.Split(text, "\n") {
		tokens := tokenize(line)
		segs = append(segs, idx.segmentTokens(tokens, company)...)
	}

	idx.applyArticleAgreement(segs, company)

	plan := assemble(segs)
	if plan.RequiresReview {
		r.logger.Debug("prompt needs review",
			"text", text,
			"confidence", plan.Confidence,
			"missing", len(plan.Missing),
		)
	}
	return plan
}

// segmentTokens runs the greedy leftmost-longest segmentation loop over one
// line's tokens.
func (idx *Index) segmentTokens(tokens []string, company string) []segment {
	var segs []segment

	i := 0
	for i < len(tokens) {
		// 1. Exact catalog match on the widest window available.
		if seg, n := idx.windowMatch(tokens[i:], company); n > 0 {
			segs = append(segs, seg)
			i += n
			continue
		}

		// 2. Longest known common phrase prefixing the remainder.
		if row, n := idx.longestPhrasePrefix(tokens[i:]); n > 0 {
			segs = append(segs, segment{
				text:       strings.Join(tokens[i:i+n], " "),
				ref:        staticRef(row),
				confidence: confPhrase,
			})
			i += n
			continue
		}

		// 3. Variable, level pattern, or bare integer ahead in the
		// remainder; the text before it is one lookup attempt.
		if pre, varSegs, n, ok := idx.variableSplit(tokens[i:], company); ok {
			segs = append(segs, pre...)
			segs = append(segs, varSegs...)
			i += n
			continue
		}

		// 4. Nothing matched: consume one word as unknown.
		segs = append(segs, segment{
			text:       tokens[i],
			confidence: confUnknown,
			missing:    true,
		})
		i++
	}

	return segs
}

// windowMatch tries exact catalog matches for the first k tokens, k
// descending from maxWindowWords to 1.
func (idx *Index) windowMatch(tokens []string, company string) (segment, int) {
	limit := maxWindowWords
	if len(tokens) < limit {
		limit = len(tokens)
	}
	for k := limit; k >= 1; k-- {
		text := strings.Join(tokens[:k], " ")
		if rows := idx.FindExact(text, company, ""); len(rows) > 0 {
			return segment{text: text, ref: staticRef(rows[0]), confidence: confExact}, k
		}
	}
	return segment{}, 0
}

// variableSplit looks ahead for the next parenthesized variable, "level <n>"
// pattern, or bare integer. On a hit it returns the preceding fragment
// (resolved as one lookup or marked missing), the typed variable segments,
// and the total token count consumed.
func (idx *Index) variableSplit(tokens []string, company string) (pre, vars []segment, consumed int, ok bool) {
	for j := 0; j < len(tokens); j++ {
		varSeg, n := typeVariable(idx, tokens[j:], company)
		if n == 0 {
			continue
		}

		if j > 0 {
			text := strings.Join(tokens[:j], " ")
			if rows := idx.FindExact(text, company, ""); len(rows) > 0 {
				pre = append(pre, segment{text: text, ref: staticRef(rows[0]), confidence: confExact})
			} else {
				pre = append(pre, segment{text: text, confidence: confUnknown, missing: true})
			}
		}
		return pre, []segment{varSeg}, j + n, true
	}
	return nil, nil, 0, false
}

// typeVariable classifies the token(s) at the head of the stream as a typed
// runtime variable or digit segment. Returns consumed == 0 on no match.
func typeVariable(idx *Index, tokens []string, company string) (segment, int) {
	head := tokens[0]

	// Parenthesized variable, e.g. "(employee name)".
	if strings.HasPrefix(head, "(") && strings.HasSuffix(head, ")") {
		inner := strings.TrimSpace(head[1 : len(head)-1])
		if ref, ok := namedVariable(inner); ok {
			return segment{text: head, ref: ref, confidence: confVar}, 1
		}
		// Unrecognized variable: try a direct catalog lookup of the
		// inner text before giving up.
		if rows := idx.FindExact(inner, company, ""); len(rows) > 0 {
			return segment{text: inner, ref: staticRef(rows[0]), confidence: confVar}, 1
		}
		return segment{text: head, confidence: confUnknown, missing: true}, 1
	}

	// Level pattern: "level <n>".
	if head == "level" && len(tokens) > 1 {
		if _, err := strconv.Atoi(tokens[1]); err == nil {
			return segment{
				text:       head + " " + tokens[1],
				ref:        callflow.AudioReference("level:{{callout_level}}"),
				confidence: confVar,
			}, 2
		}
	}

	// Bare integer.
	if _, err := strconv.Atoi(head); err == nil {
		return segment{
			text:       head,
			ref:        callflow.AudioReference("digits:" + head),
			confidence: confVar,
		}, 1
	}

	return segment{}, 0
}

// namedVariable maps variable keywords to their runtime variable references.
func namedVariable(inner string) (callflow.AudioReference, bool) {
	switch {
	case strings.Contains(inner, "employee"), strings.Contains(inner, "name"):
		return "employee:{{employee_name}}", true
	case strings.Contains(inner, "location"):
		return "location:{{callout_location}}", true
	case strings.Contains(inner, "level"):
		return "level:{{callout_level}}", true
	case strings.Contains(inner, "type"), strings.Contains(inner, "reason"):
		return "type:{{callout_type}}", true
	default:
		return "", false
	}
}

// assemble builds the final plan: mean confidence over all segments,
// resolved references in order, missing fragments recorded.
func assemble(segs []segment) callflow.PromptPlan {
	plan := callflow.PromptPlan{Play: []callflow.AudioReference{}}
	if len(segs) == 0 {
		plan.RequiresReview = true
		return plan
	}

	total := 0.0
	anyMissing := false
	for _, seg := range segs {
		total += seg.confidence
		if seg.missing {
			anyMissing = true
			plan.Missing = append(plan.Missing, seg.text)
			continue
		}
		plan.Play = append(plan.Play, seg.ref)
	}

	plan.Confidence = total / float64(len(segs))
	plan.RequiresReview = anyMissing || plan.Confidence < ReviewThreshold
	return plan
}

// staticRef formats a catalog row as a playable reference.
func staticRef(row Row) callflow.AudioReference {
	if row.Category != "" {
		return callflow.AudioReference(row.Category + ":" + row.AudioRef)
	}
	return callflow.AudioReference(row.AudioRef)
}

// Normalize lowercases text, strips punctuation other than variable
// delimiters, and collapses all whitespace runs to single spaces.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '(' || r == ')' || r == '{' || r == '}':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenize splits normalized text into words, keeping parenthesized variable
// groups together as single tokens.
func tokenize(text string) []string {
	norm := Normalize(text)
	var tokens []string

	i := 0
	for i < len(norm) {
		if norm[i] == ' ' {
			i++
			continue
		}
		if norm[i] == '(' {
			close := strings.IndexByte(norm[i:], ')')
			if close >= 0 {
				tokens = append(tokens, norm[i:i+close+1])
				i += close + 1
				continue
			}
		}
		end := strings.IndexByte(norm[i:], ' ')
		if end < 0 {
			tokens = append(tokens, norm[i:])
			break
		}
		tokens = append(tokens, norm[i:i+end])
		i += end + 1
	}

	return tokens
}
