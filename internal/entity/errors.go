package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for entity validation. Callers match them with errors.Is.
var (
	// ErrInvalidObjectID reports an identifier that is not a 24-character
	// lowercase hexadecimal object id.
	ErrInvalidObjectID = errors.New("invalid object id")

	// ErrTextTooShort reports free text below the minimum length.
	ErrTextTooShort = errors.New("text too short")

	// ErrInvalidTransition reports a status change the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// MalformedSQLError reports a SQL statement that failed to parse during
// golden record validation. It wraps the underlying parser error.
type MalformedSQLError struct {
	SQL string
	Err error
}

func (e *MalformedSQLError) Error() string {
	return fmt.Sprintf("sql %q is malformed: %v", truncate(e.SQL, 120), e.Err)
}

func (e *MalformedSQLError) Unwrap() error {
	return e.Err
}

// truncate shortens s for error messages, keeping the head of the statement.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
