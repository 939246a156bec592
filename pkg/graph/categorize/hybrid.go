package categorize

import (
	"context"

	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrFallbackUnavailable wraps any classifier failure, including timeouts.
	ErrFallbackUnavailable = errors.New("fallback classifier unavailable")
	// ErrInvalidCategoryLabel is logged when the classifier answers outside the taxonomy.
	ErrInvalidCategoryLabel = errors.New("invalid category label")
)

const (
	// DefaultThreshold is the keyword confidence at or above which the
	// classifier is skipped.
	DefaultThreshold = 0.70
	// FallbackConfidence is assigned to a valid classifier answer.
	FallbackConfidence = 0.90
	// InvalidLabelConfidence is assigned when an unknown label is coerced to the catch-all.
	InvalidLabelConfidence = 0.40
)

// Classifier asks a generative model for a category label.
type Classifier interface {
	Classify(ctx context.Context, req Request) (string, error)
}

// Hybrid runs the keyword engine and consults a Classifier only for
// low-confidence results.
type Hybrid struct {
	engine     *Engine
	classifier Classifier
	threshold  float64
	enabled    bool
	logger     *logrus.Logger
}

// HybridOption configures a Hybrid.
type HybridOption func(*Hybrid)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) HybridOption {
	return func(h *Hybrid) {
		h.threshold = t
	}
}

// WithFallback toggles the classifier call without rewiring.
func WithFallback(enabled bool) HybridOption {
	return func(h *Hybrid) {
		h.enabled = enabled
	}
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(l *logrus.Logger) HybridOption {
	return func(h *Hybrid) {
		h.logger = l
	}
}

// NewHybrid wires engine and classifier. A nil classifier disables the fallback.
func NewHybrid(engine *Engine, classifier Classifier, opts ...HybridOption) *Hybrid {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	h := &Hybrid{
		engine:     engine,
		classifier: classifier,
		threshold:  DefaultThreshold,
		enabled:    classifier != nil,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.classifier == nil {
		h.enabled = false
	}
	return h
}

// Categorize implements Categorizer.
func (h *Hybrid) Categorize(ctx context.Context, name, content string) Result {
	return h.CategorizeHybrid(ctx, name, content)
}

// CategorizeHybrid returns the keyword result when it clears the threshold,
// otherwise the classifier's validated answer. A failed classifier call
// degrades to the keyword result.
func (h *Hybrid) CategorizeHybrid(ctx context.Context, name, content string) Result {
	kw := h.engine.Keyword(name, content)
	if kw.Confidence >= h.threshold || !h.enabled {
		return kw
	}

	cat := h.engine.Catalog()
	req := BuildRequest(cat, name, content)
	label, err := h.classifier.Classify(ctx, req)
	if err != nil {
		err = errors.Wrap(ErrFallbackUnavailable, err.Error())
		h.logger.WithError(err).WithField("entity", name).Warn("Fallback classifier failed, keeping keyword result")
		kw.Method = MethodFallbackFailed
		return kw
	}

	category, ok := cat.Lookup(label)
	if !ok {
		h.logger.WithError(ErrInvalidCategoryLabel).WithFields(logrus.Fields{
			"entity": name,
			"label":  label,
		}).Warn("Classifier returned an unknown category, using catch-all")
		return Result{
			Category:   catalog.EntityCategory(cat.Fallback().Name),
			Confidence: InvalidLabelConfidence,
			Method:     MethodFallbackInvalid,
		}
	}

	return Result{
		Category:   category,
		Confidence: FallbackConfidence,
		Phase:      kw.Phase,
		Method:     MethodFallback,
	}
}
