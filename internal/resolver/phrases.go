package resolver

import (
	"sort"
	"strings"
)

// phraseSeeds are the instruction-style substrings used to discover reusable
// phrases in the catalog. A short transcript containing one of these becomes
// a known phrase the segmenter may consume as a prefix.
var phraseSeeds = []string{
	"press",
	"if this is",
	"this is a",
	"this is an",
	"thank you",
	"please",
	"to accept",
	"to decline",
	"to repeat",
	"goodbye",
}

// maxPhraseWords caps how long a discovered phrase may be. Longer transcripts
// are full prompts, not reusable building blocks.
const maxPhraseWords = 6

// phraseEntry is one discovered phrase: its word sequence and the catalog
// row it plays from.
type phraseEntry struct {
	words []string
	row   int
}

// discoverPhrases scans the catalog for short transcripts containing a seed
// substring. Entries are ordered longest-first so prefix matching is
// leftmost-longest; equal lengths keep insertion order.
func discoverPhrases(rows []Row) []phraseEntry {
	var phrases []phraseEntry
	for i, row := range rows {
		words := strings.Fields(row.Text)
		if len(words) == 0 || len(words) > maxPhraseWords {
			continue
		}
		for _, seed := range phraseSeeds {
			if strings.Contains(row.Text, seed) {
				phrases = append(phrases, phraseEntry{words: words, row: i})
				break
			}
		}
	}

	sort.SliceStable(phrases, func(i, j int) bool {
		return len(phrases[i].words) > len(phrases[j].words)
	})
	return phrases
}

// longestPhrasePrefix returns the longest known phrase that prefixes the
// token stream, along with the number of tokens it consumes. Returns
// consumed == 0 when nothing matches.
func (idx *Index) longestPhrasePrefix(tokens []string) (Row, int) {
	for _, ph := range idx.phrases {
		if len(ph.words) > len(tokens) {
			continue
		}
		match := true
		for i, w := range ph.words {
			if tokens[i] != w {
				match = false
				break
			}
		}
		if match {
			return idx.rows[ph.row], len(ph.words)
		}
	}
	return Row{}, 0
}
