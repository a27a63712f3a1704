package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned by an insert-if-absent that lost to an existing row.
	ErrDuplicate = errors.New("article already exists")
	// ErrAlreadyAnalyzed is returned when analyzed_date is already set.
	ErrAlreadyAnalyzed = errors.New("article already analyzed")
	ErrSelectorMiss    = errors.New("selector matched nothing")
	ErrNotFound        = errors.New("not found")
)

// SourceFetchError marks a source that could not be fetched for this run.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %q: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}
