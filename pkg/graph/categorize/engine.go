// Package categorize assigns extracted entities to one category of the closed
// entity taxonomy. The keyword Engine is deterministic and free of IO; Hybrid
// adds a confidence-gated call to a generative classifier.
package categorize

import (
	"context"
	"strings"

	"github.com/athapong/fingraph/pkg/graph/catalog"
)

// Methods reported in Result.Method.
const (
	MethodKeyword         = "keyword"
	MethodCatchAll        = "catch_all"
	MethodFallback        = "fallback"
	MethodFallbackInvalid = "fallback_invalid"
	MethodFallbackFailed  = "fallback_failed"
)

const (
	// CatchAllConfidence is returned when neither phase matches.
	CatchAllConfidence = 0.50
	// PhaseTwoPenalty is subtracted from the tier when only name+content matched.
	PhaseTwoPenalty = 0.10
)

// Result is the outcome of categorizing one entity. Phase is 1 for a
// name-only match, 2 for a name+content match and 0 otherwise.
type Result struct {
	Category   catalog.EntityCategory `json:"category"`
	Confidence float64                `json:"confidence"`
	Phase      int                    `json:"phase"`
	Method     string                 `json:"method"`
}

// UsedFallback reports whether the generative classifier was consulted.
func (r Result) UsedFallback() bool {
	return strings.HasPrefix(r.Method, MethodFallback)
}

// Categorizer is implemented by both the keyword Engine and Hybrid so
// callers can be wired either way.
type Categorizer interface {
	Categorize(ctx context.Context, name, content string) Result
}

// Engine is the two-phase keyword categorizer. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine returns an engine over c, or over the built-in catalog when c is nil.
func NewEngine(c *catalog.Catalog) *Engine {
	if c == nil {
		c = catalog.Default()
	}
	return &Engine{catalog: c}
}

// Catalog returns the tables the engine matches against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Categorize implements Categorizer. The context is unused.
func (e *Engine) Categorize(_ context.Context, name, content string) Result {
	return e.Keyword(name, content)
}

// Keyword runs phase 1 on the name alone and, only when that misses, phase 2
// on name and content together. Priority order decides the first match.
func (e *Engine) Keyword(name, content string) Result {
	name = strings.TrimSpace(name)
	content = strings.TrimSpace(content)

	if cat, ok := e.scan(name); ok {
		return Result{
			Category:   catalog.EntityCategory(cat.Name),
			Confidence: Tier(cat.Priority),
			Phase:      1,
			Method:     MethodKeyword,
		}
	}

	if content != "" {
		if cat, ok := e.scan(name + " " + content); ok {
			return Result{
				Category:   catalog.EntityCategory(cat.Name),
				Confidence: roundTier(Tier(cat.Priority) - PhaseTwoPenalty),
				Phase:      2,
				Method:     MethodKeyword,
			}
		}
	}

	return Result{
		Category:   catalog.EntityCategory(e.catalog.Fallback().Name),
		Confidence: CatchAllConfidence,
		Method:     MethodCatchAll,
	}
}

func (e *Engine) scan(text string) (catalog.Category, bool) {
	if text == "" {
		return catalog.Category{}, false
	}
	for _, cat := range e.catalog.Entities() {
		if cat.Fallback {
			continue
		}
		if cat.Match(text) {
			return cat, true
		}
	}
	return catalog.Category{}, false
}

// Tier maps a priority rank to its phase 1 confidence.
func Tier(priority int) float64 {
	switch {
	case priority <= 2:
		return 0.95
	case priority <= 4:
		return 0.85
	case priority <= 7:
		return 0.75
	default:
		return 0.60
	}
}

// roundTier rounds to two decimals so 0.95-0.10 compares equal to 0.85.
func roundTier(c float64) float64 {
	return float64(int(c*100+0.5)) / 100
}
