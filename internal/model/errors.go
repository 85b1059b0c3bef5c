package model

import "strings"

// ValidationError carries every violation found in one pass so operators
// can fix a submission or configuration without round-tripping.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Add(violation string) {
	e.Violations = append(e.Violations, violation)
}

// Err returns the error if any violation was recorded, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}
