package reasoning

import (
	"context"
	"sync"
)

// MockService is a scriptable Service for tests. Each operation calls the
// matching func field when set and otherwise returns a neutral result:
// no rules, a single literal chunk holding the prompt, the input text
// unchanged, and an "equivalent" verdict.
//
// MockService is safe for concurrent use.
type MockService struct {
	IdentifyStaticRulesFunc func(ctx context.Context, prompt string) ([]StaticRule, error)
	ChunkFunc               func(ctx context.Context, prompt, statics string) ([]Chunk, error)
	ExpandFunc              func(ctx context.Context, compressed, statics string) (string, error)
	IdentifyFormatFunc      func(ctx context.Context, prompt string) (string, error)
	DiffFunc                func(ctx context.Context, original, expanded string) (string, error)
	JudgeEquivalenceFunc    func(ctx context.Context, expanded, format, analysis string) (Comparison, error)
	RepairFunc              func(ctx context.Context, original, statics, expanded string, discrepancies []string) ([]Chunk, error)

	mu    sync.Mutex
	calls map[string]int
}

// NewMockService returns a MockService with neutral defaults.
func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how many times op was invoked. Op names match the
// method names: "IdentifyStaticRules", "Chunk", "Expand", ...
func (m *MockService) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// IdentifyStaticRules implements Service.
func (m *MockService) IdentifyStaticRules(ctx context.Context, prompt string) ([]StaticRule, error) {
	m.record("IdentifyStaticRules")
	if m.IdentifyStaticRulesFunc != nil {
		return m.IdentifyStaticRulesFunc(ctx, prompt)
	}
	return nil, nil
}

// Chunk implements Service.
func (m *MockService) Chunk(ctx context.Context, prompt, statics string) ([]Chunk, error) {
	m.record("Chunk")
	if m.ChunkFunc != nil {
		return m.ChunkFunc(ctx, prompt, statics)
	}
	return []Chunk{Literal(prompt)}, nil
}

// Expand implements Service.
func (m *MockService) Expand(ctx context.Context, compressed, statics string) (string, error) {
	m.record("Expand")
	if m.ExpandFunc != nil {
		return m.ExpandFunc(ctx, compressed, statics)
	}
	return compressed, nil
}

// IdentifyFormat implements Service.
func (m *MockService) IdentifyFormat(ctx context.Context, prompt string) (string, error) {
	m.record("IdentifyFormat")
	if m.IdentifyFormatFunc != nil {
		return m.IdentifyFormatFunc(ctx, prompt)
	}
	return "", nil
}

// Diff implements Service.
func (m *MockService) Diff(ctx context.Context, original, expanded string) (string, error) {
	m.record("Diff")
	if m.DiffFunc != nil {
		return m.DiffFunc(ctx, original, expanded)
	}
	return "no functional differences", nil
}

// JudgeEquivalence implements Service.
func (m *MockService) JudgeEquivalence(ctx context.Context, expanded, format, analysis string) (Comparison, error) {
	m.record("JudgeEquivalence")
	if m.JudgeEquivalenceFunc != nil {
		return m.JudgeEquivalenceFunc(ctx, expanded, format, analysis)
	}
	return Comparison{Equivalent: true, Discrepancies: []string{}}, nil
}

// Repair implements Service.
func (m *MockService) Repair(ctx context.Context, original, statics, expanded string, discrepancies []string) ([]Chunk, error) {
	m.record("Repair")
	if m.RepairFunc != nil {
		return m.RepairFunc(ctx, original, statics, expanded, discrepancies)
	}
	return []Chunk{Literal(original)}, nil
}

var _ Service = (*MockService)(nil)
