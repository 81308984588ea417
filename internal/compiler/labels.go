package compiler

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/CMCFame/mermaidivr/internal/parser"
)

// labelRule pairs a content predicate with the label it produces. Rules are
// tried in slice order and the first match wins, so the priority is a
// visible, testable artifact rather than incidental code order.
type labelRule struct {
	label string
	match func(text string) bool
}

var pressDigitRe = regexp.MustCompile(`press\s*(\d)`)

func containsAny(t string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(t, s) {
			return true
		}
	}
	return false
}

func containsAll(t string, subs ...string) bool {
	for _, s := range subs {
		if !strings.Contains(t, s) {
			return false
		}
	}
	return true
}

// orderedLabelRules classifies node text into well-known call-flow labels.
var orderedLabelRules = []labelRule{
	{"Welcome", func(t string) bool {
		return containsAny(t, "welcome", "this is", "callout from")
	}},
	{"EnterPIN", func(t string) bool {
		return containsAll(t, "enter", "pin")
	}},
	{"CheckPIN", func(t string) bool {
		return strings.Contains(t, "pin") && containsAny(t, "correct", "valid", "check")
	}},
	{"InvalidEntry", func(t string) bool {
		return containsAny(t, "invalid", "try again")
	}},
	{"MainMenu", func(t string) bool {
		return pressDigitRe.MatchString(t)
	}},
	{"Goodbye", func(t string) bool {
		return strings.Contains(t, "goodbye")
	}},
	{"Problems", func(t string) bool {
		return containsAny(t, "problems", "sorry")
	}},
}

// stopWords is the closed set of words never used to derive a label.
var stopWords = map[string]bool{
	"this": true, "that": true, "the": true, "and": true, "for": true,
	"you": true, "your": true, "with": true, "from": true, "will": true,
	"please": true, "have": true, "been": true, "were": true, "what": true,
	"when": true, "then": true, "they": true, "there": true, "about": true,
}

// labelWordRe extracts candidate words for derived labels.
var labelWordRe = regexp.MustCompile(`[a-zA-Z]+`)

// assignLabels derives a stable human-readable label for every node, in
// insertion order. Collisions across distinct node ids are disambiguated by
// a numeric suffix; this holds even for the pattern-derived labels, which do
// not guarantee uniqueness by construction.
func assignLabels(g *parser.Graph) map[string]string {
	labels := make(map[string]string, len(g.Order))
	taken := make(map[string]bool, len(g.Order))

	for _, id := range g.Order {
		node := g.Nodes[id]
		base := classifyLabel(node)

		label := base
		for n := 2; taken[label]; n++ {
			label = base + strconv.Itoa(n)
		}
		taken[label] = true
		labels[id] = label
	}

	return labels
}

// classifyLabel picks a label for one node: first matching content rule,
// else the first one or two significant words camel-joined, else StepN.
func classifyLabel(node *parser.Node) string {
	text := strings.ToLower(node.Text)
	for _, rule := range orderedLabelRules {
		if rule.match(text) {
			return rule.label
		}
	}

	var parts []string
	for _, word := range labelWordRe.FindAllString(text, -1) {
		if len(word) <= 3 || stopWords[word] {
			continue
		}
		parts = append(parts, titleCase(word))
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "")
	}

	return "Step" + node.ID
}

// titleCase uppercases the first letter of an already-lowercase word.
func titleCase(word string) string {
	r := []rune(word)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
