// internal/errors/errors.go
package errors

import "fmt"

// ErrUnknownLanguage is returned when a configured fetch language is neither
// "all" nor one of the tracked languages.
type ErrUnknownLanguage struct {
	Language string
}

func (e *ErrUnknownLanguage) Error() string {
	return fmt.Sprintf("unknown language: %q, expected 'all' or a tracked language", e.Language)
}
