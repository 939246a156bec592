package services

import (
	"context"
	"io"
	"testing"

	"github.com/athapong/fingraph/pkg/config"
	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClassifierDisabled(t *testing.T) {
	classifier, err := NewClassifier(context.Background(), config.Default())
	require.NoError(t, err)
	assert.Nil(t, classifier)
}

func TestNewClassifierProviders(t *testing.T) {
	cfg := config.Default()
	cfg.FallbackEnabled = true

	cfg.FallbackProvider = config.ProviderOllama
	classifier, err := NewClassifier(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &categorize.Limited{}, classifier)

	t.Setenv("OPENAI_API_KEY", "")
	cfg.FallbackProvider = config.ProviderOpenAI
	_, err = NewClassifier(context.Background(), cfg)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	classifier, err = NewClassifier(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, classifier)

	t.Setenv("DEEPSEEK_API_KEY", "")
	cfg.FallbackProvider = config.ProviderDeepSeek
	_, err = NewClassifier(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewCategorizerKeywordOnly(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h, err := NewCategorizer(context.Background(), config.Default(), logger)
	require.NoError(t, err)

	res := h.Categorize(context.Background(), "NVIDIA", "")
	assert.Equal(t, catalog.Company, res.Category)
	assert.Equal(t, categorize.MethodKeyword, res.Method)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.CatalogPath = "does-not-exist.yaml"
	_, err := LoadCatalog(cfg)
	assert.Error(t, err)
}
