// Package ids provides correlation-id helpers used to trace one file's
// progress through log lines across the scanner, dispatcher, and worker
// pool.
package ids

import "github.com/google/uuid"

// New returns a fresh random trace id.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s parses as a UUID in any accepted format.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
