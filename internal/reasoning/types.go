package reasoning

import (
	"fmt"
	"strings"
)

// ChunkMode distinguishes compressed text from a static span reference.
type ChunkMode string

const (
	// ModeCompressed chunks carry compact prose in Text.
	ModeCompressed ChunkMode = "c"
	// ModeReference chunks point at a static span through Target.
	ModeReference ChunkMode = "r"
)

// Chunk is one unit of compressed output.
//
// Wire form: {"m": "c", "t": "..."} or {"m": "r", "i": 0}.
type Chunk struct {
	Mode   ChunkMode `json:"m"`
	Text   string    `json:"t,omitempty"`
	Target *int      `json:"i,omitempty"`
}

// Literal returns a compressed-text chunk.
func Literal(text string) Chunk {
	return Chunk{Mode: ModeCompressed, Text: text}
}

// Reference returns a chunk pointing at static span i.
func Reference(i int) Chunk {
	return Chunk{Mode: ModeReference, Target: &i}
}

// Validate checks the chunk against its mode.
func (c Chunk) Validate() error {
	switch c.Mode {
	case ModeCompressed:
		return nil
	case ModeReference:
		if c.Target == nil {
			return fmt.Errorf("reference chunk missing \"i\"")
		}
		return nil
	case "":
		return fmt.Errorf("chunk missing \"m\"")
	default:
		return fmt.Errorf("unknown chunk mode %q (want \"c\" or \"r\")", c.Mode)
	}
}

// StaticRule is a pattern for spans that must survive compression verbatim,
// plus the reason the service gave for it.
type StaticRule struct {
	Regex  string `json:"regex"`
	Reason string `json:"reason"`
}

// Validate checks that the rule carries a pattern.
func (r StaticRule) Validate() error {
	if strings.TrimSpace(r.Regex) == "" {
		return fmt.Errorf("static rule missing \"regex\"")
	}
	return nil
}

// Comparison is the verdict on whether an expanded text is equivalent to
// the original.
type Comparison struct {
	Discrepancies []string `json:"discrepancies"`
	Equivalent    bool     `json:"equivalent"`
}
