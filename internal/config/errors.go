package config

import (
	"fmt"
	"strings"
)

// ConfigurationError describes one invalid configuration field.
type ConfigurationError struct {
	Field       string   `json:"field"`       // yaml path of the offending field
	Source      string   `json:"source"`      // "file", "env" or "validation"
	Message     string   `json:"message"`     // human readable description
	Suggestions []string `json:"suggestions"` // actionable hints
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Field, ce.Message)
}

// DetailedError returns a detailed error message with all context
func (ce ConfigurationError) DetailedError() string {
	parts := []string{
		fmt.Sprintf("Configuration Error in field %s", ce.Field),
		fmt.Sprintf("  Source: %s", ce.Source),
		fmt.Sprintf("  Error: %s", ce.Message),
	}

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec ConfigurationErrorCollection) Error() string {
	if len(cec.Errors) == 0 {
		return "no configuration errors"
	}

	if len(cec.Errors) == 1 {
		return cec.Errors[0].Error()
	}

	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// Add appends an error to the collection.
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// DetailedError renders every error in the collection.
func (cec ConfigurationErrorCollection) DetailedError() string {
	parts := make([]string, 0, len(cec.Errors))
	for _, e := range cec.Errors {
		parts = append(parts, e.DetailedError())
	}
	return strings.Join(parts, "\n\n")
}
