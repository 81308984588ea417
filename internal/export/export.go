// Package export renders a compiled record list in the formats downstream
// tooling consumes: a JavaScript module, JSON, or YAML. The core pipeline
// never depends on these encodings; they are adapters over the in-memory
// record list.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/CMCFame/mermaidivr/internal/callflow"
	"gopkg.in/yaml.v3"
)

// Format identifies an output encoding.
type Format string

const (
	FormatModule Format = "js"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
)

// ErrUnknownFormat is returned for formats Render does not support.
var ErrUnknownFormat = fmt.Errorf("unknown export format")

// Render encodes the record list in the requested format.
func Render(records []callflow.Record, format Format) ([]byte, error) {
	switch format {
	case FormatModule:
		return Module(records)
	case FormatJSON:
		return JSON(records)
	case FormatYAML:
		return YAML(records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSON renders the records as an indented JSON array.
func JSON(records []callflow.Record) ([]byte, error) {
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding records as json: %w", err)
	}
	return append(out, '\n'), nil
}

// YAML renders the records as a YAML sequence.
func YAML(records []callflow.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding records as yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing yaml encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// Module renders the records as an ES module with a default export, the
// form the telephony runtime imports directly.
func Module(records []callflow.Record) ([]byte, error) {
	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding records for module export: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("export default ")
	buf.Write(body)
	buf.WriteString(";\n")
	return buf.Bytes(), nil
}
