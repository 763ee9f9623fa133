package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError describes why driver configuration or engine settings
// could not be loaded.
type ConfigurationError struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	// Source is where the bad value came from: file, environment, merged or settings.
	Source string `json:"source"`
	// Category narrows Source, e.g. "encryption" for settings.
	Category string `json:"category,omitempty"`
	// ErrorType is one of io, parse, validation or decrypt.
	ErrorType   string   `json:"errorType"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (ce ConfigurationError) origin() string {
	if ce.Category == "" {
		return ce.Source
	}
	return ce.Source + "/" + ce.Category
}

func (ce ConfigurationError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", ce.origin(), ce.FileName, ce.Message)
	if ce.Details != "" {
		msg += ": " + ce.Details
	}
	return msg
}

// DetailedError renders the error over several lines, including the file
// path and suggestions.
func (ce ConfigurationError) DetailedError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error in %s (%s)\n", ce.ErrorType, ce.FileName, ce.origin())
	if ce.FilePath != "" {
		fmt.Fprintf(&b, "  file:    %s\n", ce.FilePath)
	}
	fmt.Fprintf(&b, "  problem: %s\n", ce.Message)
	if ce.Details != "" {
		fmt.Fprintf(&b, "  details: %s\n", ce.Details)
	}
	for _, s := range ce.Suggestions {
		fmt.Fprintf(&b, "  hint:    %s\n", s)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ConfigurationErrorCollection is returned when validation finds several
// problems at once.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

func (cec ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// Unwrap exposes the members to errors.As.
func (cec ConfigurationErrorCollection) Unwrap() []error {
	errs := make([]error, len(cec.Errors))
	for i, e := range cec.Errors {
		errs[i] = e
	}
	return errs
}

func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// DetailedError lists every member's detailed report, separated by blank lines.
func (cec ConfigurationErrorCollection) DetailedError() string {
	parts := make([]string, len(cec.Errors))
	for i, e := range cec.Errors {
		parts[i] = e.DetailedError()
	}
	return strings.Join(parts, "\n\n")
}

// Detailed returns the multi-line report of err if it is, or wraps, a
// configuration error, and false otherwise.
func Detailed(err error) (string, bool) {
	var coll ConfigurationErrorCollection
	if errors.As(err, &coll) {
		return coll.DetailedError(), true
	}
	var ce ConfigurationError
	if errors.As(err, &ce) {
		return ce.DetailedError(), true
	}
	return "", false
}
