package compression

import "errors"

// ErrInsufficientContext is returned when the prompt leaves no room in the
// model's context window even to identify its output format.
var ErrInsufficientContext = errors.New("there is not enough context window left to safely compress the prompt")
