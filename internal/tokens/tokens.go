// Package tokens measures text length in model tokens and knows the context
// window of the models promptzip talks to.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultBytesPerToken is the ratio used by ByteEstimator when none is given.
const DefaultBytesPerToken = 4

// fallbackEncoding is used for models tiktoken has no mapping for (Anthropic models).
const fallbackEncoding = "cl100k_base"

// Measurer returns the token count of a piece of text.
// Implementations must be deterministic and free of side effects.
type Measurer interface {
	Measure(text string) int
}

// MeasurerFunc adapts a function to the Measurer interface.
type MeasurerFunc func(text string) int

// Measure calls f(text).
func (f MeasurerFunc) Measure(text string) int {
	return f(text)
}

// ByteEstimator approximates tokens as ceil(len(bytes)/bytesPerToken).
// A non-positive bytesPerToken uses DefaultBytesPerToken.
func ByteEstimator(bytesPerToken int) MeasurerFunc {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = DefaultBytesPerToken
	}
	return func(text string) int {
		n := len(text)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// Tiktoken counts tokens with the BPE encoding of a model.
type Tiktoken struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktoken loads the encoding for model. Models unknown to tiktoken
// are measured with cl100k_base, which is close enough for budgeting.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	encoding := "model:" + model
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		encoding = fallbackEncoding
		if err != nil {
			return nil, fmt.Errorf("loading %s encoding: %w", fallbackEncoding, err)
		}
	}
	return &Tiktoken{model: model, encoding: encoding, enc: enc}, nil
}

// Measure returns the number of BPE tokens in text.
func (t *Tiktoken) Measure(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Encoding reports which encoding backs this measurer.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}

var _ Measurer = (*Tiktoken)(nil)
var _ Measurer = MeasurerFunc(nil)
