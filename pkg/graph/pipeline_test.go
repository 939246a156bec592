package graph

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoExtractor returns one entity named after the document, after a random
// delay so workers finish out of order.
type echoExtractor struct {
	panicOn string
}

func (x echoExtractor) Extract(ctx context.Context, doc RawDocument) (EntitySet, ExtractReport) {
	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	if doc.ID == x.panicOn {
		panic("extractor exploded")
	}
	if doc.Text == "" {
		return nil, ExtractReport{}
	}
	e := NewEntity(doc.Text, TypeCompany, 0.9)
	e.Category = catalog.Company
	e.SourceRef = doc.ID
	return EntitySet{e}, ExtractReport{FallbackCalls: 1}
}

type countingEnhancer struct{}

func (countingEnhancer) Build(doc RawDocument, entities EntitySet) EnhancedDocument {
	return EnhancedDocument{DocumentID: doc.ID, Text: doc.Text, Tags: len(entities)}
}

func testPipeline(x EntityExtractor, opts ...PipelineOption) *Pipeline {
	opts = append([]PipelineOption{
		WithPipelineLogger(quietLogger()),
		WithBuilderOptions(WithBuilderLogger(quietLogger())),
	}, opts...)
	return NewPipeline(x, opts...)
}

func makeDocs(n int) []RawDocument {
	docs := make([]RawDocument, n)
	for i := range docs {
		docs[i] = RawDocument{ID: fmt.Sprintf("doc-%03d", i), Text: fmt.Sprintf("Company %d", i)}
	}
	return docs
}

func TestExtractBatchKeepsAlignment(t *testing.T) {
	docs := makeDocs(64)
	batch := testPipeline(echoExtractor{}, WithPipelineWorkers(8)).ExtractBatch(context.Background(), docs)

	require.Len(t, batch.Pairs, len(docs))
	assert.Len(t, batch.Documents(), len(batch.EntitySets()))
	for i, pair := range batch.Pairs {
		assert.Equal(t, docs[i].ID, pair.Document.ID)
		require.Len(t, pair.Entities, 1)
		assert.Equal(t, docs[i].ID, pair.Entities[0].SourceRef)
		assert.Equal(t, docs[i].Text, pair.Entities[0].Name)
	}
	assert.Equal(t, 64, batch.Summary.Documents)
	assert.Equal(t, 64, batch.Summary.Entities)
	assert.Equal(t, 64, batch.Summary.FallbackCalls)
	assert.Empty(t, batch.Summary.Degraded)
}

func TestExtractBatchEmpty(t *testing.T) {
	batch := testPipeline(echoExtractor{}).ExtractBatch(context.Background(), nil)
	assert.Empty(t, batch.Pairs)
	assert.Zero(t, batch.Summary.Documents)
}

func TestFailingDocumentKeepsItsSlot(t *testing.T) {
	docs := makeDocs(5)
	docs[3].Text = ""
	batch := testPipeline(echoExtractor{panicOn: "doc-002"}).ExtractBatch(context.Background(), docs)

	require.Len(t, batch.Pairs, 5)
	assert.Equal(t, "doc-002", batch.Pairs[2].Document.ID)
	assert.NotNil(t, batch.Pairs[2].Entities)
	assert.Empty(t, batch.Pairs[2].Entities)
	assert.Empty(t, batch.Pairs[3].Entities)
	assert.Equal(t, map[string][]string{"doc-002": {FamilyExtractor}}, batch.Summary.Degraded)
	assert.Equal(t, 3, batch.Summary.Entities)
}

func TestCheckAlignmentPanics(t *testing.T) {
	docs := makeDocs(2)

	assertViolation := func(pairs []DocumentEntityPair, index int) {
		t.Helper()
		defer func() {
			r := recover()
			require.NotNil(t, r)
			v, ok := r.(AlignmentViolation)
			require.True(t, ok)
			assert.Equal(t, index, v.Index)
			assert.True(t, strings.HasPrefix(v.Error(), "alignment violation"))
		}()
		CheckAlignment(docs, pairs)
	}

	assertViolation([]DocumentEntityPair{{Document: docs[0]}}, -1)
	assertViolation([]DocumentEntityPair{{Document: docs[1]}, {Document: docs[0]}}, 0)

	assert.NotPanics(t, func() {
		CheckAlignment(docs, []DocumentEntityPair{{Document: docs[0]}, {Document: docs[1]}})
	})
}

func TestRun(t *testing.T) {
	docs := makeDocs(3)
	res := testPipeline(echoExtractor{}, WithEnhancer(countingEnhancer{})).Run(context.Background(), docs)

	require.Len(t, res.Enhanced, 3)
	for i, e := range res.Enhanced {
		assert.Equal(t, docs[i].ID, e.DocumentID)
		assert.Equal(t, 1, e.Tags)
	}
	assert.Len(t, res.Graph.Nodes, 3)
	assert.Equal(t, 3, res.Report.Documents)
}

func TestRunAccumulatesIntoSharedBuilder(t *testing.T) {
	b := newTestBuilder()
	p := testPipeline(echoExtractor{}, WithGraphBuilder(b))

	first := p.Run(context.Background(), makeDocs(3))
	second := p.Run(context.Background(), makeDocs(3))

	assert.Equal(t, len(first.Graph.Nodes), len(second.Graph.Nodes))
	assert.Equal(t, 3, second.Report.Duplicates)
}
