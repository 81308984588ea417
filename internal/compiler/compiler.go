// Package compiler walks a parsed diagram graph and emits the ordered
// call-flow record list: one record per reachable node, classified as a
// simple playback, a DTMF decision, or a menu, with branch tables resolved
// to stable labels. Compilation is deterministic for a given graph and
// catalog snapshot.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CMCFame/mermaidivr/internal/callflow"
	"github.com/CMCFame/mermaidivr/internal/parser"
)

// Digit-collection defaults for decision and menu records.
const (
	defaultNumDigits  = 1
	defaultMaxTries   = 3
	defaultMaxWaitSec = 7
)

// problemsPrompt is the apology played by the synthesized Problems handler.
const problemsPrompt = "We're sorry, we are unable to process your request at this time. Please try again later. Goodbye."

// PromptResolver is the capability the compiler needs from the audio
// resolver: node text in, prompt plan out.
type PromptResolver interface {
	Resolve(text, company string) callflow.PromptPlan
}

// InvariantError reports a compiled record set that violates a structural
// invariant. It is fatal: the compiler never emits an invalid record set.
type InvariantError struct {
	Label  string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("compile invariant violated at %q: %s", e.Label, e.Reason)
}

// Compile walks the graph depth-first from its entry nodes and produces the
// ordered record list plus the conversion report. Each node is emitted
// exactly once; edges reaching an already-emitted node become goto/branch
// references. A Problems handler is appended if the diagram declares none.
func Compile(g *parser.Graph, res PromptResolver, company string) ([]callflow.Record, *callflow.Report, error) {
	if len(g.Order) == 0 {
		return nil, nil, &InvariantError{Reason: "graph has no nodes"}
	}

	labels := assignLabels(g)

	outgoing := make(map[string][]parser.Edge)
	incoming := make(map[string]int)
	for _, e := range g.Edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
		incoming[e.Target]++
	}

	// Entry points: nodes with no incoming edge, in insertion order. A fully
	// cyclic diagram has none; fall back to the first declared node.
	var roots []string
	for _, id := range g.Order {
		if incoming[id] == 0 {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		roots = []string{g.Order[0]}
	}

	c := &compilation{
		graph:    g,
		resolver: res,
		company:  company,
		labels:   labels,
		outgoing: outgoing,
		visited:  make(map[string]bool),
	}

	for _, root := range roots {
		c.visit(root)
	}

	hasProblems := false
	for _, rec := range c.records {
		if rec.Label == callflow.LabelProblems {
			hasProblems = true
			break
		}
	}

	report := c.buildReport()

	if !hasProblems {
		c.records = append(c.records, callflow.Record{
			Label:      callflow.LabelProblems,
			LogText:    problemsPrompt,
			PlayPrompt: res.Resolve(problemsPrompt, company),
			Goto:       callflow.LabelHangup,
		})
	}

	if err := checkInvariants(c.records); err != nil {
		return nil, nil, err
	}

	return c.records, report, nil
}

// compilation carries the traversal state for one Compile call.
type compilation struct {
	graph    *parser.Graph
	resolver PromptResolver
	company  string
	labels   map[string]string
	outgoing map[string][]parser.Edge
	visited  map[string]bool
	records  []callflow.Record
}

// visit emits the record for one node, then descends into its outgoing
// targets in edge-declaration order. The visited set makes re-entrant
// graphs and cycles safe: a node reached twice is compiled once.
func (c *compilation) visit(id string) {
	if c.visited[id] {
		return
	}
	c.visited[id] = true

	node := c.graph.Nodes[id]
	out := c.outgoing[id]

	c.records = append(c.records, c.emit(node, out))

	for _, e := range out {
		c.visit(e.Target)
	}
}

// emit builds one record, classifying the node in decision precedence order:
// decision shape or fan-out first, then menu text, then simple.
func (c *compilation) emit(node *parser.Node, out []parser.Edge) callflow.Record {
	rec := callflow.Record{
		Label:        c.labels[node.ID],
		LogText:      strings.ReplaceAll(node.Text, "\n", " "),
		PlayPrompt:   c.resolver.Resolve(node.Text, c.company),
		AllowBargeIn: true,
	}

	switch {
	case node.Shape == parser.ShapeDecision || len(out) > 1:
		c.emitDecision(&rec, out)
	case pressDigitRe.MatchString(strings.ToLower(node.Text)):
		c.emitMenu(&rec, node, out)
	default:
		if len(out) == 1 {
			rec.Goto = c.labels[out[0].Target]
		}
		// Zero outgoing edges: implicitly terminal.
	}

	return rec
}

// emitDecision builds the branch table from the outgoing edges' condition
// text. Edges are scanned in declaration order; an explicit leading digit
// always claims its key, while "yes"/"no" claim digits 1/2 only if still
// free when scanned. Conditions matching none of the rules are preserved
// under their literal lowercase text.
func (c *compilation) emitDecision(rec *callflow.Record, out []parser.Edge) {
	branch := &callflow.BranchTable{Targets: make(map[string]string)}

	for _, e := range out {
		cond := strings.ToLower(strings.TrimSpace(e.Condition))
		target := c.labels[e.Target]

		if digit := leadingDigit(cond); digit != "" {
			if _, taken := branch.Targets[digit]; !taken {
				branch.Targets[digit] = target
				continue
			}
			// Digit already claimed (e.g. by an earlier "yes" edge):
			// fall through to the literal-text rule so the edge is
			// preserved, never dropped.
		} else if containsAny(cond, "invalid", "retry", "error") {
			branch.Error = target
			continue
		} else if containsAny(cond, "timeout", "no input") {
			branch.None = target
			continue
		} else if strings.Contains(cond, "yes") {
			if _, taken := branch.Targets["1"]; !taken {
				branch.Targets["1"] = target
				continue
			}
		} else if strings.Contains(cond, "no") {
			if _, taken := branch.Targets["2"]; !taken {
				branch.Targets["2"] = target
				continue
			}
		}

		key := cond
		if key == "" {
			key = strings.ToLower(target)
		}
		branch.Targets[key] = target
	}

	finishBranch(rec, branch)
}

// emitMenu parses each line of the node text for a "press <digit>" option.
// Each matched line becomes a menu item; the outgoing edge carrying the same
// digit in its condition supplies the branch target. Items without a
// matching edge stay in the menu but contribute no branch entry.
func (c *compilation) emitMenu(rec *callflow.Record, node *parser.Node, out []parser.Edge) {
	branch := &callflow.BranchTable{Targets: make(map[string]string)}

	for _, line := range strings.Split(node.Text, "\n") {
		m := pressDigitRe.FindStringSubmatch(strings.ToLower(line))
		if m == nil {
			continue
		}
		digit := m[1]

		rec.Menu = append(rec.Menu, callflow.MenuItem{
			Digit:  digit,
			Prompt: c.resolver.Resolve(line, c.company),
			Log:    line,
		})

		for _, e := range out {
			if strings.Contains(e.Condition, digit) {
				branch.Targets[digit] = c.labels[e.Target]
				break
			}
		}
	}

	finishBranch(rec, branch)
}

// finishBranch applies the mandatory fallbacks and the default digit
// collection policy to a decision or menu record.
func finishBranch(rec *callflow.Record, branch *callflow.BranchTable) {
	if branch.Error == "" {
		branch.Error = callflow.LabelProblems
	}
	if branch.None == "" {
		branch.None = callflow.LabelProblems
	}

	var choices []string
	for key := range branch.Targets {
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			choices = append(choices, key)
		}
	}
	sort.Strings(choices)

	rec.Branch = branch
	rec.Collect = &callflow.CollectPolicy{
		NumDigits:    defaultNumDigits,
		MaxTries:     defaultMaxTries,
		MaxWaitSec:   defaultMaxWaitSec,
		ValidChoices: choices,
	}
}

// leadingDigit returns the first digit of a leading integer literal, or "".
func leadingDigit(cond string) string {
	trimmed := strings.TrimSpace(cond)
	if trimmed == "" || trimmed[0] < '0' || trimmed[0] > '9' {
		return ""
	}
	// Branch keys are single DTMF digits; a leading multi-digit integer
	// still keys on its literal first digit only if it is the whole number.
	end := 0
	for end < len(trimmed) && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	return trimmed[:end]
}

// buildReport aggregates resolution quality over the emitted node records.
func (c *compilation) buildReport() *callflow.Report {
	report := &callflow.Report{
		TotalNodes: len(c.records),
		LabelMap:   make(map[string]string, len(c.labels)),
	}
	for id, label := range c.labels {
		report.LabelMap[id] = label
	}

	for _, rec := range c.records {
		if rec.PlayPrompt.RequiresReview {
			report.NeedsReview++
		}
		for _, frag := range rec.PlayPrompt.Missing {
			report.Missing = append(report.Missing, callflow.MissingFragment{
				Label:    rec.Label,
				Fragment: frag,
			})
		}
		for _, item := range rec.Menu {
			for _, frag := range item.Prompt.Missing {
				report.Missing = append(report.Missing, callflow.MissingFragment{
					Label:    rec.Label,
					Fragment: frag,
				})
			}
		}
	}

	if report.TotalNodes > 0 {
		report.SuccessRate = float64(report.TotalNodes-report.NeedsReview) / float64(report.TotalNodes)
	}
	return report
}

// checkInvariants verifies the final record set: unique labels, every
// goto/branch target resolvable. Violations abort the compile.
func checkInvariants(records []callflow.Record) error {
	labels := make(map[string]bool, len(records))
	for _, rec := range records {
		if labels[rec.Label] {
			return &InvariantError{Label: rec.Label, Reason: "duplicate label"}
		}
		labels[rec.Label] = true
	}

	resolvable := func(target string) bool {
		return labels[target] || target == callflow.LabelProblems || target == callflow.LabelHangup
	}

	for _, rec := range records {
		if rec.Goto != "" && !resolvable(rec.Goto) {
			return &InvariantError{Label: rec.Label, Reason: fmt.Sprintf("goto target %q not declared", rec.Goto)}
		}
		if rec.Branch == nil {
			continue
		}
		for key, target := range rec.Branch.Targets {
			if !resolvable(target) {
				return &InvariantError{Label: rec.Label, Reason: fmt.Sprintf("branch key %q target %q not declared", key, target)}
			}
		}
		if !resolvable(rec.Branch.Error) {
			return &InvariantError{Label: rec.Label, Reason: fmt.Sprintf("error fallback %q not declared", rec.Branch.Error)}
		}
		if !resolvable(rec.Branch.None) {
			return &InvariantError{Label: rec.Label, Reason: fmt.Sprintf("none fallback %q not declared", rec.Branch.None)}
		}
	}

	return nil
}
