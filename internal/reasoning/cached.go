package reasoning

import (
	"context"

	"github.com/fyrsmithlabs/promptzip/internal/cache"
)

// CachedService memoizes a Service by argument content.
//
// Every operation except Repair is cached. Keys carry the operation name and
// the model identity, so a fast and a full service sharing one cache never
// collide. Errors are not cached.
type CachedService struct {
	next     Service
	cache    *cache.Cache
	identity string
}

// NewCachedService wraps next. A nil cache disables memoization.
func NewCachedService(next Service, c *cache.Cache, identity string) *CachedService {
	return &CachedService{next: next, cache: c, identity: identity}
}

func (s *CachedService) key(op string, args map[string]any) string {
	args["model"] = s.identity
	return cache.Key(op, args)
}

// IdentifyStaticRules implements Service.
func (s *CachedService) IdentifyStaticRules(ctx context.Context, prompt string) ([]StaticRule, error) {
	key := s.key("identify_static", map[string]any{"prompt": prompt})
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) ([]StaticRule, error) {
		return s.next.IdentifyStaticRules(ctx, prompt)
	})
}

// Chunk implements Service.
func (s *CachedService) Chunk(ctx context.Context, prompt, statics string) ([]Chunk, error) {
	key := s.key("chunk", map[string]any{"prompt": prompt, "statics": statics})
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) ([]Chunk, error) {
		return s.next.Chunk(ctx, prompt, statics)
	})
}

// Expand implements Service.
func (s *CachedService) Expand(ctx context.Context, compressed, statics string) (string, error) {
	key := s.key("expand", map[string]any{"compressed": compressed, "statics": statics})
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) (string, error) {
		return s.next.Expand(ctx, compressed, statics)
	})
}

// IdentifyFormat implements Service.
func (s *CachedService) IdentifyFormat(ctx context.Context, prompt string) (string, error) {
	key := s.key("identify_format", map[string]any{"prompt": prompt})
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) (string, error) {
		return s.next.IdentifyFormat(ctx, prompt)
	})
}

// Diff implements Service.
func (s *CachedService) Diff(ctx context.Context, original, expanded string) (string, error) {
	key := s.key("diff", map[string]any{"original": original, "expanded": expanded})
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) (string, error) {
		return s.next.Diff(ctx, original, expanded)
	})
}

// JudgeEquivalence implements Service.
func (s *CachedService) JudgeEquivalence(ctx context.Context, expanded, format, analysis string) (Comparison, error) {
	key := s.key("judge_equivalence", map[string]any{"expanded": expanded, "format": format, "analysis": analysis})
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) (Comparison, error) {
		return s.next.JudgeEquivalence(ctx, expanded, format, analysis)
	})
}

// Repair implements Service. Repairs are never cached: the same
// discrepancies should get a fresh attempt.
func (s *CachedService) Repair(ctx context.Context, original, statics, expanded string, discrepancies []string) ([]Chunk, error) {
	return s.next.Repair(ctx, original, statics, expanded, discrepancies)
}

var _ Service = (*CachedService)(nil)
