// Package parser turns flowchart text in the supported mermaid dialect into
// a typed node/edge graph. Parsing is pure: no I/O, no logging, same input
// always yields the same graph.
package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Shape classifies a node's runtime semantics, inferred from its bracket style.
type Shape string

const (
	// ShapeProcess is a square-bracket node: plays a prompt, moves on.
	ShapeProcess Shape = "process"
	// ShapeDecision is a curly-brace node: collects input and branches.
	ShapeDecision Shape = "decision"
	// ShapeTerminal is a round or stadium node: a start or end point.
	ShapeTerminal Shape = "terminal"
)

// Node is one diagram vertex. Immutable once parsed.
type Node struct {
	ID    string
	Shape Shape
	Text  string
	Group string
}

// Edge is a directed transition between two node ids. Condition carries the
// optional pipe-delimited label, e.g. "1 - accept" or "yes".
type Edge struct {
	Source    string
	Target    string
	Condition string
}

// Graph is the full parse result. Order preserves node insertion order so
// downstream traversal is deterministic.
type Graph struct {
	Nodes       map[string]*Node
	Order       []string
	Edges       []Edge
	Annotations []string
}

// ParseError reports malformed diagram syntax together with the offending line.
type ParseError struct {
	LineNum int
	Line    string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s: %q", e.LineNum, e.Reason, e.Line)
}

// Directive prefixes that are stripped and never modeled.
var directivePrefixes = []string{
	"flowchart", "graph", "%%", "classdef", "class ", "style ",
	"linkstyle", "direction", "click ",
}

var lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)

// Parse converts flowchart text into a Graph. It is lenient with free-form
// annotation lines (no delimiters, no arrow) and strict with unbalanced node
// delimiters, which fail with a ParseError.
func Parse(text string) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node)}
	declared := make(map[string]bool)

	var groupStack []string

	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if isDirective(line) {
			continue
		}

		// Grouping context.
		if rest, ok := strings.CutPrefix(line, "subgraph"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			groupStack = append(groupStack, normalizeText(strings.TrimSpace(rest)))
			continue
		}
		if line == "end" {
			if len(groupStack) > 0 {
				groupStack = groupStack[:len(groupStack)-1]
			}
			continue
		}

		group := ""
		if len(groupStack) > 0 {
			group = groupStack[len(groupStack)-1]
		}

		if strings.Contains(line, "-->") {
			if err := parseConnection(g, declared, line, i+1, group); err != nil {
				return nil, err
			}
			continue
		}

		if strings.ContainsAny(line, "[{(") {
			// Standalone node declaration.
			if _, err := parseEndpoint(g, declared, line, i+1, group); err != nil {
				return nil, err
			}
			continue
		}

		// No delimiters, no arrow: inert annotation line, kept but ignored.
		g.Annotations = append(g.Annotations, line)
	}

	return g, nil
}

// isDirective reports whether a line is a diagram-type or style directive.
func isDirective(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range directivePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// parseConnection handles a line containing one or more "-->" arrows,
// materializing inline node declarations on either side.
func parseConnection(g *Graph, declared map[string]bool, line string, lineNum int, group string) error {
	parts := strings.Split(line, "-->")

	prevID := ""
	for idx, part := range parts {
		part = strings.TrimSpace(part)

		condition := ""
		if idx > 0 && strings.HasPrefix(part, "|") {
			close := strings.Index(part[1:], "|")
			if close < 0 {
				return &ParseError{LineNum: lineNum, Line: line, Reason: "unterminated edge condition"}
			}
			condition = normalizeText(part[1 : close+1])
			part = strings.TrimSpace(part[close+2:])
		}

		if part == "" {
			return &ParseError{LineNum: lineNum, Line: line, Reason: "connection endpoint is empty"}
		}

		id, err := parseEndpoint(g, declared, part, lineNum, group)
		if err != nil {
			return err
		}

		if idx > 0 {
			g.Edges = append(g.Edges, Edge{Source: prevID, Target: id, Condition: condition})
		}
		prevID = id
	}

	return nil
}

// delimiter pairs recognized as node shapes, longest opener first.
var shapeDelims = []struct {
	open, close string
	shape       Shape
}{
	{"((", "))", ShapeTerminal},
	{"([", "])", ShapeTerminal},
	{"[", "]", ShapeProcess},
	{"{", "}", ShapeDecision},
	{"(", ")", ShapeTerminal},
}

// parseEndpoint parses one node reference, which is either a bare id or an
// inline declaration with shape delimiters. It materializes the node on
// first sight; the first shaped declaration of an id wins, later ones are
// ignored.
func parseEndpoint(g *Graph, declared map[string]bool, token string, lineNum int, group string) (string, error) {
	cut := strings.IndexAny(token, "[{(")
	if cut < 0 {
		id := strings.TrimSpace(token)
		materialize(g, id, ShapeProcess, id, group)
		return id, nil
	}

	id := strings.TrimSpace(token[:cut])
	if id == "" {
		return "", &ParseError{LineNum: lineNum, Line: token, Reason: "node declaration has no id"}
	}
	body := token[cut:]

	for _, d := range shapeDelims {
		if !strings.HasPrefix(body, d.open) {
			continue
		}
		if !strings.HasSuffix(body, d.close) || len(body) < len(d.open)+len(d.close) {
			return "", &ParseError{LineNum: lineNum, Line: token, Reason: "unbalanced node delimiters"}
		}
		text := body[len(d.open) : len(body)-len(d.close)]

		shape := d.shape
		if !declared[id] {
			materializeDeclared(g, declared, id, shape, normalizeText(text), group)
		} else {
			materialize(g, id, shape, normalizeText(text), group)
		}
		return id, nil
	}

	return "", &ParseError{LineNum: lineNum, Line: token, Reason: "unrecognized node delimiters"}
}

// materialize creates the node if it does not exist yet. An existing node is
// left untouched: references never overwrite a declaration.
func materialize(g *Graph, id string, shape Shape, text, group string) {
	if _, ok := g.Nodes[id]; ok {
		return
	}
	g.Nodes[id] = &Node{ID: id, Shape: shape, Text: text, Group: group}
	g.Order = append(g.Order, id)
}

// materializeDeclared records a shaped declaration. A node previously seen
// only as a bare reference is upgraded in place; after that the id counts as
// declared and later redeclarations are ignored.
func materializeDeclared(g *Graph, declared map[string]bool, id string, shape Shape, text, group string) {
	if n, ok := g.Nodes[id]; ok {
		n.Shape = shape
		n.Text = text
	} else {
		g.Nodes[id] = &Node{ID: id, Shape: shape, Text: text, Group: group}
		g.Order = append(g.Order, id)
	}
	declared[id] = true
}

// normalizeText converts embedded line-break markup to newlines, strips a
// single pair of surrounding quotes, and trims edge whitespace per line.
// Internal newlines are preserved: the resolver segments on them.
func normalizeText(s string) string {
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "\n")
}
