package categorize

import (
	"context"
	"testing"

	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/stretchr/testify/assert"
)

func TestKeywordCategorization(t *testing.T) {
	engine := NewEngine(nil)

	tests := []struct {
		name       string
		entity     string
		content    string
		want       catalog.EntityCategory
		confidence float64
		phase      int
	}{
		{"metric name beats company content", "EPS", "NVIDIA CORPORATION reported quarterly results", catalog.FinancialMetric, 0.95, 1},
		{"bank by name", "Goldman Sachs", "", catalog.Company, 0.95, 1},
		{"corporate suffix", "Acme Holdings", "", catalog.Company, 0.95, 1},
		{"bare number", "500", "", catalog.FinancialMetric, 0.95, 1},
		{"product", "Blackwell", "", catalog.TechnologyProduct, 0.85, 1},
		{"media outlet", "Bloomberg", "", catalog.MediaSource, 0.60, 1},
		{"case insensitive", "gross MARGIN", "", catalog.FinancialMetric, 0.95, 1},
		{"content only match", "Jensen Huang", "the NVIDIA chief executive said", catalog.Company, 0.85, 2},
		{"date falls to catch-all", "October 2, 2025", "", catalog.Other, 0.50, 0},
		{"empty name", "", "", catalog.Other, 0.50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Categorize(context.Background(), tt.entity, tt.content)
			assert.Equal(t, tt.want, got.Category)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.phase, got.Phase)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestCatchAllMethod(t *testing.T) {
	got := NewEngine(nil).Keyword("October 2, 2025", "")
	assert.Equal(t, MethodCatchAll, got.Method)
	assert.False(t, got.UsedFallback())
}

func TestTier(t *testing.T) {
	tests := []struct {
		priority int
		want     float64
	}{
		{1, 0.95}, {2, 0.95}, {3, 0.85}, {4, 0.85},
		{5, 0.75}, {6, 0.75}, {7, 0.75}, {8, 0.60}, {9, 0.60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tier(tt.priority), "priority %d", tt.priority)
	}
}

func TestPhaseTwoIsAlwaysLowerThanPhaseOne(t *testing.T) {
	for p := 1; p <= 9; p++ {
		assert.Less(t, roundTier(Tier(p)-PhaseTwoPenalty), Tier(p))
	}
}
