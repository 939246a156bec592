package processors

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newsDoc(text string) graph.RawDocument {
	return graph.RawDocument{
		ID:   "doc-1",
		Text: text,
		Metadata: graph.Metadata{
			Origin:    "newswire",
			Timestamp: time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestExtractAnalystAction(t *testing.T) {
	x := NewExtractor(WithLogger(quietLogger()))
	got, report := x.Extract(context.Background(), newsDoc("Goldman Sachs raised NVDA to BUY with a $500 price target."))

	assert.Empty(t, report.Degraded)
	assert.Zero(t, report.FallbackCalls)

	goldman, ok := got.Find(graph.TypeCompany, "Goldman Sachs")
	require.True(t, ok)
	assert.InDelta(t, 0.95, goldman.Confidence, 1e-9)
	assert.Equal(t, catalog.Company, goldman.Category)

	nvda, ok := got.Find(graph.TypeTicker, "NVDA")
	require.True(t, ok)
	assert.InDelta(t, 0.75, nvda.Confidence, 1e-9)

	rating, ok := got.Find(graph.TypeRating, "BUY")
	require.True(t, ok)
	assert.InDelta(t, 0.90, rating.Confidence, 1e-9)

	target, ok := got.Find(graph.TypePriceTarget, "500")
	require.True(t, ok)
	assert.Equal(t, catalog.FinancialMetric, target.Category)
	assert.Equal(t, "USD", target.Attributes["currency"])
	assert.Equal(t, categorize.MethodKeyword, target.Attributes["category_method"])

	sentiment := got.ByType(graph.TypeSentiment)
	require.Len(t, sentiment, 1)
	assert.Equal(t, SentimentBullish, sentiment[0].Name)
	assert.Equal(t, catalog.Other, sentiment[0].Category)

	assert.Empty(t, got.ByType(graph.TypePerson))

	for _, e := range got {
		assert.Equal(t, "doc-1", e.SourceRef)
		assert.NoError(t, e.Validate())
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	x := NewExtractor(WithLogger(quietLogger()))
	for _, text := range []string{"", "   \n\t "} {
		got, report := x.Extract(context.Background(), newsDoc(text))
		assert.Empty(t, got)
		assert.Empty(t, report.Degraded)
	}
}

func TestFailingFamilyDegradesGracefully(t *testing.T) {
	x := NewExtractor(
		WithLogger(quietLogger()),
		WithFamilies(
			Family{"exploding", func(string) (graph.EntitySet, error) { panic("boom") }},
			Family{"erroring", func(string) (graph.EntitySet, error) { return nil, errors.New("bad input") }},
			Family{FamilyTickers, ExtractTickers},
		),
	)

	got, report := x.Extract(context.Background(), newsDoc("Shares of $NVDA rallied."))
	assert.Equal(t, []string{"exploding", "erroring"}, report.Degraded)
	require.Len(t, got, 1)
	assert.Equal(t, "NVDA", got[0].Name)
}

func TestDuplicatesKeepHighestConfidence(t *testing.T) {
	x := NewExtractor(
		WithLogger(quietLogger()),
		WithFamilies(Family{FamilyTickers, ExtractTickers}),
	)

	got, _ := x.Extract(context.Background(), newsDoc("NVDA moved. Later $NVDA shares rallied."))
	require.Len(t, got, 1)
	assert.InDelta(t, 0.95, got[0].Confidence, 1e-9)
	assert.Equal(t, "cashtag", got[0].Attributes["form"])
}

func TestConfidenceIsClamped(t *testing.T) {
	x := NewExtractor(
		WithLogger(quietLogger()),
		WithFamilies(Family{"wild", func(string) (graph.EntitySet, error) {
			return graph.EntitySet{
				{Name: "Too High", Type: graph.TypeCompany, Confidence: 3.2},
				{Name: "Too Low", Type: graph.TypeCompany, Confidence: -1},
			}, nil
		}}),
	)

	got, _ := x.Extract(context.Background(), newsDoc("Too High and Too Low."))
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Equal(t, 0.0, got[1].Confidence)
	assert.Equal(t, "Too High and Too Low.", got[0].Context)
}

func TestFallbackCallsAreReported(t *testing.T) {
	classifier := &categorize.StaticClassifier{Label: "Company"}
	hybrid := categorize.NewHybrid(categorize.NewEngine(nil), classifier, categorize.WithLogger(quietLogger()))
	x := NewExtractor(
		WithLogger(quietLogger()),
		WithCategorizer(hybrid),
		WithFamilies(Family{FamilyTickers, ExtractTickers}),
	)

	got, report := x.Extract(context.Background(), newsDoc("Shares of $NVDA rallied on earnings."))
	require.Len(t, got, 1)
	assert.Equal(t, 1, report.FallbackCalls)
	assert.Equal(t, catalog.Company, got[0].Category)
	assert.Equal(t, categorize.MethodFallback, got[0].Attributes["category_method"])

	requests := classifier.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "NVDA", requests[0].Name)
	assert.Empty(t, requests[0].Content)
}

func TestDatesTakeCatchAll(t *testing.T) {
	classifier := &categorize.StaticClassifier{Label: "Company"}
	hybrid := categorize.NewHybrid(categorize.NewEngine(nil), classifier, categorize.WithLogger(quietLogger()))
	x := NewExtractor(WithLogger(quietLogger()), WithCategorizer(hybrid))

	got, report := x.Extract(context.Background(), newsDoc("Apple reports earnings on October 2, 2025."))

	date, ok := got.Find(graph.TypeDate, "October 2, 2025")
	require.True(t, ok)
	assert.Equal(t, catalog.Other, date.Category)
	assert.Empty(t, date.Attributes["category_method"])

	apple, ok := got.Find(graph.TypeCompany, "Apple")
	require.True(t, ok)
	assert.Equal(t, catalog.Company, apple.Category)

	for _, req := range classifier.Requests() {
		assert.NotEqual(t, "October 2, 2025", req.Name)
	}
	assert.Equal(t, len(classifier.Requests()), report.FallbackCalls)
}

func TestIdentifierCategoryIgnoresNeighbours(t *testing.T) {
	x := NewExtractor(WithLogger(quietLogger()))
	texts := []string{
		"Goldman Sachs raised NVDA to BUY.",
		"Shares of NVDA rose 5%.",
		"NVDA revenue beat estimates.",
	}

	var categories []catalog.EntityCategory
	for _, text := range texts {
		got, _ := x.Extract(context.Background(), newsDoc(text))
		nvda, ok := got.Find(graph.TypeTicker, "NVDA")
		require.True(t, ok, text)
		categories = append(categories, nvda.Category)
	}
	for _, c := range categories[1:] {
		assert.Equal(t, categories[0], c)
	}
}
