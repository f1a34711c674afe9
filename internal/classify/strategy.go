// Package classify resolves a record's platform bucket and category from
// layered evidence. Each layer is a Strategy; a Chain tries them in order and
// the first one that produces a result decides.
package classify

import "github.com/hpungsan/qlib/internal/query"

// Evidence is everything a strategy may inspect.
type Evidence struct {
	PlatformHint string
	Purpose      string
	Tags         []string
	FileName     string
	FilePath     string
	Name         string
	Body         string
}

// EvidenceFor collects evidence from a parsed record and its origin.
func EvidenceFor(r query.Record) Evidence {
	return Evidence{
		PlatformHint: r.PlatformHint,
		Purpose:      r.Purpose,
		Tags:         r.Tags,
		FileName:     r.Origin.FileName,
		FilePath:     r.Origin.Path,
		Name:         r.Name,
		Body:         r.Body,
	}
}

// Strategy is one evidence layer.
type Strategy[T any] interface {
	Name() string
	Resolve(ev Evidence) (T, bool)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc[T any] struct {
	Label string
	Fn    func(Evidence) (T, bool)
}

// Name implements Strategy.
func (s StrategyFunc[T]) Name() string { return s.Label }

// Resolve implements Strategy.
func (s StrategyFunc[T]) Resolve(ev Evidence) (T, bool) { return s.Fn(ev) }

// DefaultStrategy is the name reported when no strategy matched.
const DefaultStrategy = "default"

// Chain tries strategies in order and falls back to a default.
type Chain[T any] struct {
	strategies []Strategy[T]
	fallback   T
}

// NewChain builds a chain. Strategy order is authoritative.
func NewChain[T any](fallback T, strategies ...Strategy[T]) *Chain[T] {
	return &Chain[T]{strategies: strategies, fallback: fallback}
}

// Resolve returns the first strategy result and the strategy name.
func (c *Chain[T]) Resolve(ev Evidence) (T, string) {
	for _, s := range c.strategies {
		if v, ok := s.Resolve(ev); ok {
			return v, s.Name()
		}
	}
	return c.fallback, DefaultStrategy
}

// Strategies returns the strategy names in order.
func (c *Chain[T]) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Result is a full classification plus the deciding strategies.
type Result struct {
	query.Classification
	PlatformBy string `json:"platform_by"`
	CategoryBy string `json:"category_by"`
}

// Classifier bundles the platform and category chains.
type Classifier struct {
	platform *Chain[PlatformResult]
	category *Chain[query.Category]
}

// New returns a classifier with the built-in strategy order.
func New() *Classifier {
	return &Classifier{
		platform: PlatformChain(),
		category: CategoryChain(),
	}
}

// Classify resolves both dimensions for a record.
func (c *Classifier) Classify(r query.Record) Result {
	ev := EvidenceFor(r)
	p, pBy := c.platform.Resolve(ev)
	cat, cBy := c.category.Resolve(ev)
	return Result{
		Classification: query.Classification{
			Platform: p.Bucket,
			Label:    p.Label,
			Category: cat,
		},
		PlatformBy: pBy,
		CategoryBy: cBy,
	}
}
