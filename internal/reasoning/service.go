// Package reasoning is the text reasoning service promptzip compresses with.
//
// Service names the seven operations the compression pipeline needs. LLMService
// implements them with langchaingo chat models and prompt templates; CachedService
// memoizes a Service by content; MockService scripts one for tests.
package reasoning

import "context"

// Service is the external reasoning capability.
//
// Operations that return structured data fail with ErrMalformedResponse when
// the model output cannot be parsed, and with *ContextLengthError when the
// input does not fit the model.
type Service interface {
	// IdentifyStaticRules proposes regex rules for spans of prompt that
	// must be kept verbatim.
	IdentifyStaticRules(ctx context.Context, prompt string) ([]StaticRule, error)

	// Chunk compresses prompt into chunks, referencing the numbered static
	// listing where a span must be kept.
	Chunk(ctx context.Context, prompt, statics string) ([]Chunk, error)

	// Expand turns compressed text back into prose, restoring static spans.
	Expand(ctx context.Context, compressed, statics string) (string, error)

	// IdentifyFormat keeps the lines of prompt that describe output format.
	IdentifyFormat(ctx context.Context, prompt string) (string, error)

	// Diff describes the functional differences between two instruction sets.
	Diff(ctx context.Context, original, expanded string) (string, error)

	// JudgeEquivalence decides from a diff analysis whether expanded
	// instructs the same task as the original.
	JudgeEquivalence(ctx context.Context, expanded, format, analysis string) (Comparison, error)

	// Repair re-chunks the original prompt, addressing discrepancies found
	// in a previous expansion.
	Repair(ctx context.Context, original, statics, expanded string, discrepancies []string) ([]Chunk, error)
}
