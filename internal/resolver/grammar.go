package resolver

import "strings"

// Article phrase variants subject to agreement with the following word.
const (
	phraseThisIsA  = "this is a"
	phraseThisIsAn = "this is an"
)

// defaultVowelWords seeds the vowel-sound vocabulary with words that show up
// in callout prompts. Words like "hour" are included because agreement
// follows sound, not spelling.
func defaultVowelWords() map[string]bool {
	words := []string{
		"electric", "electrical", "emergency", "urgent", "important",
		"automated", "official", "outage", "update", "updated", "open",
		"additional", "early", "extra", "extended", "immediate",
		"inspection", "incident", "overtime", "alert", "area", "hour",
		"operator", "employee", "energy", "estimated", "issue",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// learnVowelWords extends the vocabulary from the catalog itself: any word a
// recorded transcript places after "an" takes the "an" variant here too.
func learnVowelWords(vowels map[string]bool, rows []Row) {
	for _, row := range rows {
		words := strings.Fields(row.Text)
		for i := 0; i < len(words)-1; i++ {
			if words[i] == "an" {
				vowels[words[i+1]] = true
			}
		}
	}
}

// wantsAn reports whether the word takes the "an" article variant.
func (idx *Index) wantsAn(word string) bool {
	return idx.vowels[word]
}

// applyArticleAgreement substitutes the "a"/"an" phrase variant based on the
// leading word of the following segment. The pass is idempotent: it compares
// against the wanted form and rewrites only on mismatch, and only when the
// catalog actually holds the other variant. Segment order never changes.
func (idx *Index) applyArticleAgreement(segs []segment, company string) {
	for i := 0; i < len(segs)-1; i++ {
		if segs[i].text != phraseThisIsA && segs[i].text != phraseThisIsAn {
			continue
		}
		next := strings.Fields(segs[i+1].text)
		if len(next) == 0 {
			continue
		}

		want := phraseThisIsA
		if idx.wantsAn(next[0]) {
			want = phraseThisIsAn
		}
		if segs[i].text == want {
			continue
		}

		rows := idx.FindExact(want, company, "")
		if len(rows) == 0 {
			// No recorded variant to substitute; keep the original.
			continue
		}
		segs[i].text = want
		segs[i].ref = staticRef(rows[0])
	}
}
