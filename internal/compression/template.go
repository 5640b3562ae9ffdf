package compression

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/prompts"
)

// PromptTemplate is a langchaingo prompt template whose output is
// compressed.
//
// FormatContext compresses every rendered prompt. CompressTemplate
// compresses the raw template text once and FormatCompressed renders from
// the compressed text after that. The embedded Format renders without
// compressing, so a *PromptTemplate is still a prompts.Formatter.
type PromptTemplate struct {
	prompts.PromptTemplate

	compressor *Compressor
	attempts   int

	mu         sync.Mutex
	compressed *prompts.PromptTemplate
}

// NewPromptTemplate wraps a Go text/template prompt.
func NewPromptTemplate(c *Compressor, template string, inputVars []string) *PromptTemplate {
	return WrapPromptTemplate(c, prompts.NewPromptTemplate(template, inputVars))
}

// WrapPromptTemplate wraps an existing langchaingo template.
func WrapPromptTemplate(c *Compressor, tmpl prompts.PromptTemplate) *PromptTemplate {
	return &PromptTemplate{PromptTemplate: tmpl, compressor: c}
}

// WithAttempts sets the verification rounds used for this template.
func (p *PromptTemplate) WithAttempts(n int) *PromptTemplate {
	p.attempts = n
	return p
}

var (
	_ prompts.Formatter      = (*PromptTemplate)(nil)
	_ prompts.FormatPrompter = (*PromptTemplate)(nil)
)

// FormatContext renders values into the template and compresses the result.
func (p *PromptTemplate) FormatContext(ctx context.Context, values map[string]any) (string, error) {
	rendered, err := p.PromptTemplate.Format(values)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	res, err := p.compressor.Compress(ctx, rendered, p.attempts)
	if err != nil {
		return "", err
	}
	return res.Compressed, nil
}

// CompressTemplate returns the template with its text compressed. The
// first successful call is memoized; failures are not.
func (p *PromptTemplate) CompressTemplate(ctx context.Context) (prompts.PromptTemplate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.compressed != nil {
		return *p.compressed, nil
	}

	res, err := p.compressor.Compress(ctx, p.Template, p.attempts)
	if err != nil {
		return prompts.PromptTemplate{}, err
	}

	tmpl := p.PromptTemplate
	tmpl.Template = res.Compressed
	p.compressed = &tmpl
	return tmpl, nil
}

// FormatCompressed renders values into the compressed template.
func (p *PromptTemplate) FormatCompressed(ctx context.Context, values map[string]any) (string, error) {
	tmpl, err := p.CompressTemplate(ctx)
	if err != nil {
		return "", err
	}
	out, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("rendering compressed template: %w", err)
	}
	return out, nil
}
