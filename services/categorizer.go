package services

import (
	"context"

	"github.com/athapong/fingraph/pkg/config"
	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Default model per provider, used when the config leaves it empty.
var defaultModels = map[string]string{
	config.ProviderOpenAI:     "gpt-4o-mini",
	config.ProviderDeepSeek:   "deepseek-chat",
	config.ProviderOllama:     "deepseek-r1:1.5b",
	config.ProviderOpenRouter: "deepseek/deepseek-chat",
	config.ProviderGemini:     "gemini-2.5-flash",
}

// LoadCatalog returns the catalog at cfg.CatalogPath, or the built-in one.
func LoadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.CatalogPath)
}

// NewClassifier builds the rate-limited fallback classifier for the
// configured provider. It returns nil when the fallback is disabled.
func NewClassifier(ctx context.Context, cfg *config.Config) (categorize.Classifier, error) {
	if !cfg.FallbackEnabled || cfg.FallbackProvider == config.ProviderNone {
		return nil, nil
	}

	model := cfg.FallbackModel
	if model == "" {
		model = defaultModels[cfg.FallbackProvider]
	}

	var classifier categorize.Classifier
	switch cfg.FallbackProvider {
	case config.ProviderOpenAI:
		client, err := NewOpenAIClient()
		if err != nil {
			return nil, err
		}
		classifier = categorize.NewOpenAIClassifier(client, model, true)
	case config.ProviderDeepSeek:
		client, err := NewDeepseekClient()
		if err != nil {
			return nil, err
		}
		classifier = categorize.NewOpenAIClassifier(client, model, true)
	case config.ProviderOllama:
		classifier = categorize.NewOpenAIClassifier(NewOllamaClient(), model, false)
	case config.ProviderOpenRouter:
		client, err := NewOpenRouterClient()
		if err != nil {
			return nil, err
		}
		classifier = categorize.NewOpenAIClassifier(client, model, false)
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx)
		if err != nil {
			return nil, err
		}
		classifier = categorize.NewGeminiClassifier(client, model)
	default:
		return nil, errors.Errorf("unknown fallback provider %q", cfg.FallbackProvider)
	}

	retry := categorize.DefaultRetryConfig()
	retry.MaxRetries = cfg.FallbackMaxRetries
	return categorize.NewLimited(classifier,
		categorize.WithRateLimit(cfg.FallbackRPS),
		categorize.WithTimeout(cfg.FallbackTimeout),
		categorize.WithRetry(retry),
	), nil
}

// NewCategorizer returns the hybrid categorizer described by cfg. Without
// a fallback it still runs the keyword phases.
func NewCategorizer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*categorize.Hybrid, error) {
	cat, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	classifier, err := NewClassifier(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "configure %s fallback", cfg.FallbackProvider)
	}

	return categorize.NewHybrid(categorize.NewEngine(cat), classifier,
		categorize.WithThreshold(cfg.HybridThreshold),
		categorize.WithLogger(logger),
	), nil
}
