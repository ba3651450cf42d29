package models

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError rejects one field of operator input
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every field problem found in one pass
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ExtractionError means the extraction service failed or answered outside its contract
type ExtractionError struct {
	Provider string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("extraction failed: %v", e.Err)
	}
	return fmt.Sprintf("extraction via %s failed: %v", e.Provider, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrNothingFound signals that extraction succeeded but returned no items
var ErrNothingFound = errors.New("no menu items were found in the uploaded files")

// ConflictError lists the names that already exist under fail-on-duplicate
type ConflictError struct {
	CategoryID string
	Names      []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d item(s) already exist in the category (%s); resolve the duplicates or choose %s or %s",
		len(e.Names), strings.Join(e.Names, ", "), PolicyUpdateExisting, PolicySkipDuplicates)
}

// CommitError wraps a storage failure; the batch was rolled back
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("import was not saved: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
