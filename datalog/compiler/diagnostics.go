package compiler

import (
	"fmt"
)

// DiagnosticKind classifies a non-fatal compilation problem.
type DiagnosticKind uint8

const (
	// DiagMalformedClause: a clause was skipped.
	DiagMalformedClause DiagnosticKind = iota
	// DiagMissingTerminal: the root has no terminal sink attached.
	DiagMissingTerminal
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagMalformedClause:
		return "malformed-clause"
	case DiagMissingTerminal:
		return "missing-terminal"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", uint8(k))
	}
}

// Severity of a diagnostic
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic reports a problem that did not abort compilation. Clause is the
// index into Pattern.Where, or -1 when the diagnostic concerns the query as a
// whole.
type Diagnostic struct {
	Kind     DiagnosticKind
	Severity Severity
	Clause   int
	Text     string
	Err      error
}

func (d Diagnostic) String() string {
	if d.Clause >= 0 {
		return fmt.Sprintf("%s: %s: clause %d %s: %v", d.Severity, d.Kind, d.Clause, d.Text, d.Err)
	}
	return fmt.Sprintf("%s: %s: %v", d.Severity, d.Kind, d.Err)
}

// Unwrap returns the underlying error
func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Error implements error so a diagnostic can be surfaced directly.
func (d Diagnostic) Error() string {
	return d.String()
}
