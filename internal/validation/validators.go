// Package validation checks the textual form of temporal column values
package validation

import (
	"fmt"
	"time"

	"github.com/leengari/cardinaldb/internal/domain/schema"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ValidateDate validates a date string in YYYY-MM-DD format
func ValidateDate(value string) error {
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("invalid date format, expected YYYY-MM-DD (e.g., '2024-01-13')")
	}
	return nil
}

// ValidateTime validates a time string in HH:MM:SS or HH:MM format
func ValidateTime(value string) error {
	if _, err := time.Parse("15:04:05", value); err == nil {
		return nil
	}
	if _, err := time.Parse("15:04", value); err != nil {
		return fmt.Errorf("invalid time format, expected HH:MM:SS or HH:MM (e.g., '14:30:00' or '14:30')")
	}
	return nil
}

// ValidateTimestamp accepts RFC 3339 and the common "YYYY-MM-DD HH:MM[:SS]" forms
func ValidateTimestamp(value string) error {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp format, expected RFC 3339 or YYYY-MM-DD HH:MM:SS")
}

// Value validates v against the temporal types. Other types always pass.
func Value(t schema.FieldType, v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	switch t {
	case schema.TypeDate:
		return ValidateDate(s)
	case schema.TypeTime:
		return ValidateTime(s)
	case schema.TypeTimestamp:
		return ValidateTimestamp(s)
	}
	return nil
}
