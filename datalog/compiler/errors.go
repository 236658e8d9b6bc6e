package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation marks fatal errors: the pattern breaks an
	// invariant the parser is expected to uphold. Compilation stops.
	ErrContractViolation = errors.New("compiler contract violation")

	// ErrIncompatibleRole is returned when a symbol cannot serve as a
	// variable, or is used both as a variable and as a constant.
	ErrIncompatibleRole = fmt.Errorf("%w: incompatible variable role", ErrContractViolation)

	// ErrUnboundVariable is returned when a variable has no binding slot.
	ErrUnboundVariable = fmt.Errorf("%w: unbound variable", ErrContractViolation)

	// ErrMalformedClause marks a clause that cannot become a filter. It is
	// never returned from Compile; the clause is skipped with a diagnostic.
	ErrMalformedClause = errors.New("malformed clause")

	// ErrEmptyPattern is returned when no clause compiled, so there is no root.
	ErrEmptyPattern = errors.New("pattern has no compilable clause")

	// ErrMissingTerminal is returned under TerminalRequired when no terminal
	// sink could be connected to the root.
	ErrMissingTerminal = errors.New("missing terminal")

	// ErrContextState is returned when a Context lifecycle step is called
	// out of order or after the context finished or failed.
	ErrContextState = errors.New("invalid compilation context state")
)

// IsFatal reports whether err aborts compilation of the whole query.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrMalformedClause)
}
