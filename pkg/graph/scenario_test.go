package graph_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/athapong/fingraph/pkg/graph/markup"
	"github.com/athapong/fingraph/pkg/graph/processors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalystNoteEndToEnd(t *testing.T) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	p := graph.NewPipeline(
		processors.NewExtractor(processors.WithLogger(quiet)),
		graph.WithEnhancer(markup.NewBuilder(markup.WithLogger(quiet))),
		graph.WithPipelineLogger(quiet),
		graph.WithBuilderOptions(graph.WithBuilderLogger(quiet)),
	)

	docs := []graph.RawDocument{
		{ID: "note-1", Text: "Goldman Sachs raised NVDA to BUY with a $500 price target.", Metadata: graph.Metadata{Origin: "email"}},
		{ID: "note-2", Text: "", Metadata: graph.Metadata{Origin: "email"}},
		{ID: "note-3", Text: "EBIT rose 4% while the RMB weakened.", Metadata: graph.Metadata{Origin: "api"}},
	}
	res := p.Run(context.Background(), docs)

	require.Len(t, res.Batch.Pairs, 3)
	for i := range docs {
		assert.Equal(t, docs[i].ID, res.Batch.Pairs[i].Document.ID)
	}
	assert.Empty(t, res.Batch.Pairs[1].Entities)
	assert.Empty(t, res.Batch.Pairs[2].Entities.ByType(graph.TypeTicker))

	nodes := make(map[string]graph.Node)
	for _, n := range res.Graph.Nodes {
		nodes[n.ID] = n
	}
	var recs []graph.Edge
	for _, e := range res.Graph.Edges {
		if e.Type == "ANALYST_RECOMMENDS" {
			recs = append(recs, e)
		}
	}
	require.Len(t, recs, 1)
	assert.Equal(t, "Goldman Sachs", nodes[recs[0].Source].Label)
	assert.Equal(t, "NVDA", nodes[recs[0].Target].Label)

	enhanced := res.Enhanced[0].Text
	assert.True(t, strings.HasPrefix(enhanced, "[SOURCE:email|document:note-1]\n"))
	assert.Contains(t, enhanced, "[TICKER:NVDA|")
	assert.Contains(t, enhanced, "[PRICE_TARGET:500|category:Financial Metric|")
	assert.True(t, strings.HasSuffix(enhanced, "\n\n"+docs[0].Text))
}

func TestTickerMergesAcrossDocuments(t *testing.T) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	p := graph.NewPipeline(
		processors.NewExtractor(processors.WithLogger(quiet)),
		graph.WithPipelineLogger(quiet),
		graph.WithBuilderOptions(graph.WithBuilderLogger(quiet)),
	)

	docs := []graph.RawDocument{
		{ID: "a", Text: "Goldman Sachs raised NVDA to BUY."},
		{ID: "b", Text: "Shares of NVDA rose 5%."},
		{ID: "c", Text: "Apple reports earnings on October 2, 2025."},
	}
	res := p.Run(context.Background(), docs)

	var tickers, dates []graph.Node
	for _, n := range res.Graph.Nodes {
		switch n.Type {
		case graph.TypeTicker:
			tickers = append(tickers, n)
		case graph.TypeDate:
			dates = append(dates, n)
		}
	}

	require.Len(t, tickers, 1)
	assert.Equal(t, "NVDA", tickers[0].Label)
	assert.Equal(t, 2, tickers[0].Observations)
	assert.ElementsMatch(t, []string{"a", "b"}, tickers[0].Sources)

	require.Len(t, dates, 1)
	assert.Equal(t, "October 2, 2025", dates[0].Label)
	assert.Equal(t, catalog.Other, dates[0].Category)
}
