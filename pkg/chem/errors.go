package chem

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownElement         = errors.New("unknown element")
	ErrDuplicateSymbol        = errors.New("duplicate element symbol")
	ErrDuplicateElement       = errors.New("duplicate element in selection")
	ErrMalformedFormulaText   = errors.New("malformed formula text")
	ErrRangeExceeded          = errors.New("amount out of range")
	ErrInexactDivision        = errors.New("inexact division")
	ErrDivisionByZero         = errors.New("division by zero")
	ErrNoSuchElement          = errors.New("no such element")
	ErrUnsupportedIonNotation = errors.New("unsupported ion notation")
)

// FormulaError records the operation and input that failed. It unwraps to
// one of the sentinel errors above so callers can use errors.Is.
type FormulaError struct {
	Op    string
	Input string
	Err   error
}

func (e *FormulaError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Input, e.Err)
}

func (e *FormulaError) Unwrap() error {
	return e.Err
}

func newError(op, input string, err error) error {
	return &FormulaError{Op: op, Input: input, Err: err}
}
