// Package validation holds request-level validation for the journal API.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxEntryLength caps journal entry text at 50k characters. Long enough
// for any real entry, short enough to bound encrypt and analyze cost.
const MaxEntryLength = 50000

// MaxPromptLength caps reflection prompts.
const MaxPromptLength = 4000

// MaxClusterCount bounds the requested cluster count; the oracle degrades
// badly above this.
const MaxClusterCount = 20

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateEntryText checks a journal entry's text field. Empty text is
// allowed (an entry can be a blank placeholder); malformed or oversized
// text is not.
func ValidateEntryText(text string) []ValidationError {
	var c Collector
	c.Add(validateUTF8("text", text))
	c.Add(validateNoNullBytes("text", text))
	c.Add(validateMaxLength("text", text, MaxEntryLength))
	return c.Errors()
}

// ValidateEntryID checks a path id parameter.
func ValidateEntryID(id string) []ValidationError {
	var c Collector
	c.Add(validateULID("id", id))
	return c.Errors()
}

// ValidateKeyword checks a keyword search query.
func ValidateKeyword(keyword string) []ValidationError {
	var c Collector
	c.Add(validateRequired("q", keyword))
	c.Add(validateUTF8("q", keyword))
	c.Add(validateMaxLength("q", keyword, 200))
	return c.Errors()
}

// ValidateMoodRange checks mood search bounds. Mood scores live in [-1, 1].
func ValidateMoodRange(min, max float64) []ValidationError {
	var c Collector
	c.Add(validateRange("min", min, -1, 1))
	c.Add(validateRange("max", max, -1, 1))
	if min > max {
		c.Add(&ValidationError{Field: "min", Message: "must not exceed max"})
	}
	return c.Errors()
}

// ValidateClusterCount checks a requested cluster count.
func ValidateClusterCount(n int) []ValidationError {
	var c Collector
	if n < 2 || n > MaxClusterCount {
		c.Add(&ValidationError{
			Field:   "cluster_count",
			Message: fmt.Sprintf("must be between 2 and %d", MaxClusterCount),
		})
	}
	return c.Errors()
}

// ValidatePrompt checks a reflection prompt.
func ValidatePrompt(prompt string) []ValidationError {
	var c Collector
	c.Add(validateRequired("prompt", prompt))
	c.Add(validateUTF8("prompt", prompt))
	c.Add(validateNoNullBytes("prompt", prompt))
	c.Add(validateMaxLength("prompt", prompt, MaxPromptLength))
	return c.Errors()
}

func validateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{Field: field, Message: "must be valid UTF-8"}
	}
	return nil
}

func validateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{Field: field, Message: "must not contain null bytes"}
	}
	return nil
}

func validateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

func validateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func validateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// validateULID checks the 26-character Crockford Base32 id format.
func validateULID(field, value string) *ValidationError {
	if len(value) != 26 {
		return &ValidationError{Field: field, Message: "must be a valid ULID (26 characters)"}
	}

	// Crockford Base32 excludes I, L, O, U.
	const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	for _, r := range value {
		upper := strings.ToUpper(string(r))
		if !strings.Contains(crockfordBase32, upper) {
			return &ValidationError{Field: field, Message: "must be a valid ULID (invalid character)"}
		}
	}
	return nil
}
