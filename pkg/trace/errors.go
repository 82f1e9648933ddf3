package trace

import (
	"fmt"
	"strings"
)

// MissingColumnsError is returned when a series lacks columns an operation requires.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns in series: [%s]", strings.Join(e.Missing, ", "))
}

// EmptySeriesError is returned when an operation needs at least one sample.
type EmptySeriesError struct {
	Op string
}

func (e *EmptySeriesError) Error() string {
	if e.Op == "" {
		return "series has no samples"
	}
	return fmt.Sprintf("%s: series has no samples", e.Op)
}
