package callflow

import "fmt"

// ValidationSeverity indicates the severity of a validation issue.
type ValidationSeverity string

const (
	// SeverityError indicates a record set the runtime would reject.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates a record set that works but looks suspect.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue describes a single problem found in a compiled record set.
type ValidationIssue struct {
	Severity ValidationSeverity `json:"severity"`
	Label    string             `json:"label,omitempty"`
	Message  string             `json:"message"`
}

// ValidationResult holds the outcome of validating a record set.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

// Validate checks a compiled record set for structural integrity:
//   - every label is unique
//   - every record plays at least one audio reference
//   - every goto/branch target resolves to a declared label or a reserved
//     terminal name (Problems, hangup)
func Validate(records []Record) *ValidationResult {
	result := &ValidationResult{Valid: true, Issues: []ValidationIssue{}}

	if len(records) == 0 {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Message:  "record set is empty",
		})
		return result
	}

	// Build the set of declared labels, flagging duplicates as we go.
	labels := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Label == "" {
			result.Issues = append(result.Issues, ValidationIssue{
				Severity: SeverityError,
				Message:  "record has an empty label",
			})
			continue
		}
		if labels[rec.Label] {
			result.Issues = append(result.Issues, ValidationIssue{
				Severity: SeverityError,
				Label:    rec.Label,
				Message:  fmt.Sprintf("duplicate label %q", rec.Label),
			})
		}
		labels[rec.Label] = true
	}

	resolvable := func(target string) bool {
		return labels[target] || target == LabelProblems || target == LabelHangup
	}

	for _, rec := range records {
		if len(rec.PlayPrompt.Play) == 0 {
			result.Issues = append(result.Issues, ValidationIssue{
				Severity: SeverityWarning,
				Label:    rec.Label,
				Message:  "record plays no audio references",
			})
		}
		for _, ref := range rec.PlayPrompt.Play {
			if ref == "" {
				result.Issues = append(result.Issues, ValidationIssue{
					Severity: SeverityError,
					Label:    rec.Label,
					Message:  "record contains an empty audio reference",
				})
			}
		}

		if rec.Goto != "" && !resolvable(rec.Goto) {
			result.Issues = append(result.Issues, ValidationIssue{
				Severity: SeverityError,
				Label:    rec.Label,
				Message:  fmt.Sprintf("goto target %q does not resolve to a declared label", rec.Goto),
			})
		}

		if rec.Branch != nil {
			for key, target := range rec.Branch.Targets {
				if !resolvable(target) {
					result.Issues = append(result.Issues, ValidationIssue{
						Severity: SeverityError,
						Label:    rec.Label,
						Message:  fmt.Sprintf("branch key %q targets undeclared label %q", key, target),
					})
				}
			}
			if rec.Branch.Error != "" && !resolvable(rec.Branch.Error) {
				result.Issues = append(result.Issues, ValidationIssue{
					Severity: SeverityError,
					Label:    rec.Label,
					Message:  fmt.Sprintf("branch error fallback targets undeclared label %q", rec.Branch.Error),
				})
			}
			if rec.Branch.None != "" && !resolvable(rec.Branch.None) {
				result.Issues = append(result.Issues, ValidationIssue{
					Severity: SeverityError,
					Label:    rec.Label,
					Message:  fmt.Sprintf("branch none fallback targets undeclared label %q", rec.Branch.None),
				})
			}
		}
	}

	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			result.Valid = false
			break
		}
	}

	return result
}
