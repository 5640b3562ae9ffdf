package reasoning

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedResponse is returned when model output cannot be parsed into
// the expected structure, even after JSON repair.
var ErrMalformedResponse = errors.New("malformed reasoning response")

// ContextLengthError reports that a request did not fit the model's
// context window. Limit is the window the provider reported, or 0 when the
// provider did not say.
type ContextLengthError struct {
	Limit int
	Err   error
}

func (e *ContextLengthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Limit > 0 {
		return fmt.Sprintf("context length exceeded (limit %d tokens): %v", e.Limit, e.Err)
	}
	return fmt.Sprintf("context length exceeded: %v", e.Err)
}

func (e *ContextLengthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsContextLength reports whether err is, or wraps, a *ContextLengthError.
func AsContextLength(err error) (*ContextLengthError, bool) {
	var cle *ContextLengthError
	if errors.As(err, &cle) {
		return cle, true
	}
	return nil, false
}

var contextLimitPatterns = []*regexp.Regexp{
	// OpenAI: "This model's maximum context length is 8192 tokens."
	regexp.MustCompile(`maximum context length is (\d+) tokens`),
	// Anthropic: "prompt is too long: 210311 tokens > 200000 maximum"
	regexp.MustCompile(`prompt is too long: \d+ tokens > (\d+) maximum`),
}

var contextLengthMarkers = []string{
	"context_length_exceeded",
	"context length",
	"prompt is too long",
	"too many tokens",
}

// retryableError marks provider failures worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var retryableMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"overloaded",
	"status code: 5",
	"timeout",
	"connection reset",
	"eof",
}

// classifyProviderError turns a raw provider error into a *ContextLengthError,
// a retryable error or leaves it as is.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsContextLength(err); ok {
		return err
	}

	msg := err.Error()
	for _, re := range contextLimitPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			limit, _ := strconv.Atoi(m[1])
			return &ContextLengthError{Limit: limit, Err: err}
		}
	}

	lower := strings.ToLower(msg)
	for _, marker := range contextLengthMarkers {
		if strings.Contains(lower, marker) {
			return &ContextLengthError{Err: err}
		}
	}
	for _, marker := range retryableMarkers {
		if strings.Contains(lower, marker) {
			return &retryableError{err: err}
		}
	}
	return err
}
