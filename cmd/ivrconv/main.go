// Command ivrconv converts one flowchart file to call-flow records without
// running the service: read a diagram, resolve against an optional CSV
// catalog, and write the rendered records to stdout or a file. The report
// summary goes to stderr so the rendered output stays pipeable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/CMCFame/mermaidivr/internal/callflow"
	"github.com/CMCFame/mermaidivr/internal/compiler"
	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/export"
	"github.com/CMCFame/mermaidivr/internal/parser"
	"github.com/CMCFame/mermaidivr/internal/resolver"
	"github.com/google/uuid"
)

func main() {
	var (
		inPath   = flag.String("in", "", "flowchart file to convert (required)")
		outPath  = flag.String("out", "", "output file (stdout if empty)")
		format   = flag.String("format", "js", "output format: js, json, yaml")
		company  = flag.String("company", "", "company scope for audio lookups")
		catalogP = flag.String("catalog", "", "CSV catalog of audio segments (raw-text fallback if empty)")
		logLevel = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	})))

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "error: -in is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*inPath, *outPath, *format, *company, *catalogP); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, outPath, format, company, catalogPath string) error {
	diagram, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("reading diagram: %w", err)
	}

	graph, err := parser.Parse(string(diagram))
	if err != nil {
		return err
	}

	res, err := buildResolver(catalogPath)
	if err != nil {
		return err
	}

	records, report, err := compiler.Compile(graph, res, company)
	if err != nil {
		return err
	}
	report.ConversionID = uuid.NewString()

	if result := callflow.Validate(records); !result.Valid {
		for _, issue := range result.Issues {
			fmt.Fprintf(os.Stderr, "%s: %s %s\n", issue.Severity, issue.Label, issue.Message)
		}
		return fmt.Errorf("compiled record set failed validation")
	}

	out, err := export.Render(records, export.Format(format))
	if err != nil {
		return err
	}

	if outPath == "" {
		if _, err := os.Stdout.Write(out); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	} else {
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
	}

	printSummary(report)
	return nil
}

// buildResolver loads the CSV catalog into an in-memory index, or falls back
// to the raw-text resolver when no catalog is given.
func buildResolver(catalogPath string) (compiler.PromptResolver, error) {
	if catalogPath == "" {
		return resolver.Fallback{}, nil
	}

	f, err := os.Open(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	repo := newMemoryRepository()
	if _, err := database.ImportCSV(context.Background(), f, repo, ""); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	catalog := resolver.NewCatalog(repo.segments)
	return resolver.New(catalog, slog.Default()), nil
}

// printSummary writes the conversion report to stderr.
func printSummary(report *callflow.Report) {
	fmt.Fprintf(os.Stderr, "converted %d nodes, %d need review (%.0f%% resolved)\n",
		report.TotalNodes, report.NeedsReview, report.SuccessRate*100)
	for _, miss := range report.Missing {
		fmt.Fprintf(os.Stderr, "  missing at %s: %q\n", miss.Label, miss.Fragment)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
