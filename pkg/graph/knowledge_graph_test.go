package graph

import (
	"context"
	"io"
	"testing"

	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const analystNote = "Goldman Sachs raised NVDA to BUY with a $500 price target."

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestBuilder(opts ...BuilderOption) *Builder {
	return NewBuilder(append([]BuilderOption{WithBuilderLogger(quietLogger())}, opts...)...)
}

func entity(name string, typ EntityType, cat catalog.EntityCategory, conf float64, ctx string) ExtractedEntity {
	e := NewEntity(name, typ, conf)
	e.Category = cat
	e.Context = ctx
	return e
}

func analystPair(id string) DocumentEntityPair {
	return DocumentEntityPair{
		Document: RawDocument{ID: id, Text: analystNote},
		Entities: EntitySet{
			entity("Goldman Sachs", TypeCompany, catalog.Company, 0.95, analystNote),
			entity("NVDA", TypeTicker, catalog.Company, 0.75, analystNote),
			entity("BUY", TypeRating, catalog.MediaSource, 0.90, analystNote),
			entity("500", TypePriceTarget, catalog.FinancialMetric, 0.90, analystNote),
			entity("bullish", TypeSentiment, catalog.Other, 0.70, ""),
		},
	}
}

func edgesOfType(g *KnowledgeGraphData, typ string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func nodeByLabel(t *testing.T, g *KnowledgeGraphData, label string) Node {
	t.Helper()
	for _, n := range g.Nodes {
		if n.Label == label {
			return n
		}
	}
	t.Fatalf("no node labelled %q", label)
	return Node{}
}

func TestAnalystRecommendation(t *testing.T) {
	g, report := newTestBuilder().Build(context.Background(), []DocumentEntityPair{analystPair("doc-1")})

	assert.Equal(t, 1, report.Documents)
	assert.Zero(t, report.Skipped)
	require.Len(t, g.Nodes, 4, "sentiment never becomes a node")
	require.Len(t, g.Edges, 4)

	goldman := nodeByLabel(t, g, "Goldman Sachs")
	nvda := nodeByLabel(t, g, "NVDA")
	rating := nodeByLabel(t, g, "BUY")
	target := nodeByLabel(t, g, "500")

	recs := edgesOfType(g, "ANALYST_RECOMMENDS")
	require.Len(t, recs, 1)
	assert.Equal(t, goldman.ID, recs[0].Source)
	assert.Equal(t, nvda.ID, recs[0].Target)
	assert.Equal(t, catalog.RelMedia, recs[0].Category)
	assert.InDelta(t, 0.75, recs[0].Confidence, 1e-9)
	assert.Equal(t, EdgeID(goldman.ID, "ANALYST_RECOMMENDS", nvda.ID), recs[0].ID)

	rated := edgesOfType(g, "RATED")
	require.Len(t, rated, 1)
	assert.Equal(t, nvda.ID, rated[0].Source)
	assert.Equal(t, rating.ID, rated[0].Target)

	sets := edgesOfType(g, "SETS_PRICE_TARGET")
	require.Len(t, sets, 1)
	assert.Equal(t, goldman.ID, sets[0].Source)
	assert.Equal(t, target.ID, sets[0].Target)

	has := edgesOfType(g, "HAS_PRICE_TARGET")
	require.Len(t, has, 1)
	assert.Equal(t, nvda.ID, has[0].Source)

	for _, e := range g.Edges {
		assert.GreaterOrEqual(t, e.Confidence, 0.0)
		assert.LessOrEqual(t, e.Confidence, 1.0)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	b := newTestBuilder()
	pairs := []DocumentEntityPair{analystPair("doc-1"), analystPair("doc-2")}

	first, _ := b.Build(context.Background(), pairs)
	second, report := b.Build(context.Background(), pairs)

	assert.Equal(t, len(first.Nodes), len(second.Nodes))
	assert.Equal(t, len(first.Edges), len(second.Edges))
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Duplicates)

	other, _ := newTestBuilder().Build(context.Background(), pairs)
	for i := range first.Nodes {
		assert.Equal(t, first.Nodes[i].ID, other.Nodes[i].ID, "node ids are deterministic")
	}
}

func TestNodesMergeAcrossDocuments(t *testing.T) {
	b := newTestBuilder()
	g, _ := b.Build(context.Background(), []DocumentEntityPair{analystPair("doc-1"), analystPair("doc-2")})

	nvda := nodeByLabel(t, g, "NVDA")
	assert.Equal(t, 2, nvda.Observations)
	assert.Equal(t, []string{"doc-1", "doc-2"}, nvda.Sources)

	recs := edgesOfType(g, "ANALYST_RECOMMENDS")
	require.Len(t, recs, 1)
	assert.Equal(t, 2.0, recs[0].Weight)
	assert.Equal(t, []string{"doc-1", "doc-2"}, recs[0].Sources)
}

func TestNodeIdentityIgnoresCaseAndSpacing(t *testing.T) {
	a := DocumentEntityPair{
		Document: RawDocument{ID: "a", Text: "x"},
		Entities: EntitySet{entity("Goldman  Sachs", TypeCompany, catalog.Company, 0.6, "")},
	}
	b := DocumentEntityPair{
		Document: RawDocument{ID: "b", Text: "y"},
		Entities: EntitySet{entity("goldman sachs", TypeCompany, catalog.Company, 0.9, "")},
	}
	g, _ := newTestBuilder().Build(context.Background(), []DocumentEntityPair{a, b})
	require.Len(t, g.Nodes, 1)
	assert.InDelta(t, 0.9, g.Nodes[0].Confidence, 1e-9)
	assert.Equal(t, "Goldman  Sachs", g.Nodes[0].Label)
}

func TestRecencyWeightedConfidence(t *testing.T) {
	mk := func(id string, conf float64) DocumentEntityPair {
		return DocumentEntityPair{
			Document: RawDocument{ID: id, Text: "NVDA"},
			Entities: EntitySet{entity("NVDA", TypeTicker, catalog.Company, conf, "")},
		}
	}
	b := newTestBuilder(WithNodeConfidence(RecencyWeighted(DefaultRecencyAlpha)))
	require.NoError(t, b.Add(mk("a", 0.6)))
	require.NoError(t, b.Add(mk("b", 1.0)))

	g := b.Generate()
	require.Len(t, g.Nodes, 1)
	assert.InDelta(t, 0.8, g.Nodes[0].Confidence, 1e-9)
}

func TestWeightedAverageEdgeConfidence(t *testing.T) {
	g, _ := newTestBuilder(WithEdgeConfidence(WeightedAverage(0.5))).
		Build(context.Background(), []DocumentEntityPair{analystPair("doc-1")})

	recs := edgesOfType(g, "ANALYST_RECOMMENDS")
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.85, recs[0].Confidence, 1e-9)
}

func TestMalformedPairsAreSkipped(t *testing.T) {
	bad := []DocumentEntityPair{
		{Document: RawDocument{ID: "", Text: "no id"}},
		{Document: RawDocument{ID: "x", Text: "t"}, Entities: EntitySet{{Name: "  ", Type: TypeCompany, Confidence: 0.9}}},
		{Document: RawDocument{ID: "y", Text: "t"}, Entities: EntitySet{{Name: "NVDA", Type: TypeTicker, Confidence: 1.4}}},
	}
	b := newTestBuilder()
	g, report := b.Build(context.Background(), append(bad, analystPair("ok")))

	assert.Equal(t, 3, report.Skipped)
	assert.Len(t, report.Reasons, 3)
	assert.Equal(t, 1, report.Documents)
	assert.Len(t, g.Nodes, 4)

	err := b.Add(bad[0])
	assert.ErrorIs(t, err, ErrMalformedPair)
}

func TestEntitiesInSeparateSentencesDoNotLink(t *testing.T) {
	text := "Apple launched a phone. Separately, Exxon Mobil Corp reported."
	pair := DocumentEntityPair{
		Document: RawDocument{ID: "d", Text: text},
		Entities: EntitySet{
			entity("Apple", TypeCompany, catalog.Company, 0.95, "Apple launched a phone."),
			entity("Exxon Mobil Corp", TypeCompany, catalog.Company, 0.85, "Separately, Exxon Mobil Corp reported."),
		},
	}
	g, _ := newTestBuilder().Build(context.Background(), []DocumentEntityPair{pair})
	assert.Len(t, g.Nodes, 2)
	assert.Empty(t, g.Edges)
}

func TestFallbackRelationship(t *testing.T) {
	text := "Apple and Microsoft were mentioned."
	pair := DocumentEntityPair{
		Document: RawDocument{ID: "d", Text: text},
		Entities: EntitySet{
			entity("Apple", TypeCompany, catalog.Company, 0.95, text),
			entity("Microsoft", TypeCompany, catalog.Company, 0.9, text),
		},
	}
	g, _ := newTestBuilder().Build(context.Background(), []DocumentEntityPair{pair})
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "RELATED_TO", g.Edges[0].Type)
	assert.Equal(t, catalog.RelOther, g.Edges[0].Category)
	assert.InDelta(t, 0.63, g.Edges[0].Confidence, 1e-9)
}

func TestTierScale(t *testing.T) {
	tests := []struct {
		priority int
		want     float64
	}{
		{1, 1.0}, {2, 1.0}, {3, 0.9}, {4, 0.9}, {5, 0.8}, {7, 0.8}, {8, 0.7}, {10, 0.7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierScale(tt.priority), "priority %d", tt.priority)
	}
}

func TestMemoryKnowledgeGraph(t *testing.T) {
	data, _ := newTestBuilder().Build(context.Background(), []DocumentEntityPair{analystPair("doc-1")})
	kg := NewMemoryKnowledgeGraph(data)
	ctx := context.Background()

	found, err := kg.FindNodes(ctx, "nvda")
	require.NoError(t, err)
	require.Len(t, found, 1)

	related, err := kg.GetRelatedNodes(ctx, found[0].ID, "")
	require.NoError(t, err)
	assert.Len(t, related, 3)

	rated, err := kg.GetRelatedNodes(ctx, found[0].ID, "RATED")
	require.NoError(t, err)
	require.Len(t, rated, 1)
	assert.Equal(t, "BUY", rated[0].Label)

	_, err = kg.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	empty := NewMemoryKnowledgeGraph(nil)
	nodes, err := empty.FindNodes(ctx, "anything")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestAnalystDoesNotRecommendEmployer(t *testing.T) {
	text := "Analyst Jane Doe at JPMorgan cut TSLA to SELL."
	pair := DocumentEntityPair{
		Document: RawDocument{ID: "note", Text: text},
		Entities: EntitySet{
			entity("Jane Doe", TypePerson, catalog.Other, 0.80, text),
			entity("JPMorgan", TypeCompany, catalog.Company, 0.95, text),
			entity("TSLA", TypeTicker, catalog.Other, 0.75, text),
			entity("SELL", TypeRating, catalog.MediaSource, 0.90, text),
		},
	}
	g, _ := newTestBuilder().Build(context.Background(), []DocumentEntityPair{pair})

	tsla := nodeByLabel(t, g, "TSLA")
	jpm := nodeByLabel(t, g, "JPMorgan")
	recs := edgesOfType(g, "ANALYST_RECOMMENDS")
	require.Len(t, recs, 2)
	for _, e := range recs {
		assert.Equal(t, tsla.ID, e.Target)
		assert.NotEqual(t, jpm.ID, e.Target)
	}
}
