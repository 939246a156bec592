package graph

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	pipelineProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "fingraph_pipeline_processing_duration_seconds",
			Help: "Time spent in each pipeline stage",
		},
		[]string{"stage"},
	)

	documentProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fingraph_pipeline_documents_processed_total",
			Help: "Total number of documents processed",
		},
		[]string{"status"},
	)

	fallbackCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fingraph_pipeline_fallback_calls_total",
			Help: "Generative fallback calls made while extracting",
		},
	)
)

func init() {
	prometheus.MustRegister(pipelineProcessingDuration)
	prometheus.MustRegister(documentProcessedTotal)
	prometheus.MustRegister(fallbackCallsTotal)
}

// FamilyExtractor is reported as degraded when an extractor panics as a whole.
const FamilyExtractor = "extractor"

// Pipeline runs extraction, markup and graph construction over batches.
type Pipeline struct {
	extractor   EntityExtractor
	enhancer    DocumentEnhancer
	builder     *Builder
	builderOpts []BuilderOption
	workers     int
	logger      *logrus.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithEnhancer renders enhanced documents in Run.
func WithEnhancer(e DocumentEnhancer) PipelineOption {
	return func(p *Pipeline) {
		p.enhancer = e
	}
}

// WithGraphBuilder makes Run merge into b instead of a fresh builder, so
// repeated runs accumulate into one graph.
func WithGraphBuilder(b *Builder) PipelineOption {
	return func(p *Pipeline) {
		p.builder = b
	}
}

// WithBuilderOptions configures the builder Run creates for each batch.
func WithBuilderOptions(opts ...BuilderOption) PipelineOption {
	return func(p *Pipeline) {
		p.builderOpts = append(p.builderOpts, opts...)
	}
}

// WithPipelineWorkers bounds concurrent extractions.
func WithPipelineWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithPipelineLogger(l *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a new document processing pipeline
func NewPipeline(extractor EntityExtractor, opts ...PipelineOption) *Pipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	p := &Pipeline{
		extractor: extractor,
		workers:   DefaultWorkers,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractBatch extracts every document concurrently. Each worker writes only
// its own slot, so result i always holds document i. A document that fails
// to extract gets an empty entity set; the batch never fails.
func (p *Pipeline) ExtractBatch(ctx context.Context, docs []RawDocument) Batch {
	p.logger.WithField("document_count", len(docs)).Info("Starting batch extraction")
	timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("extract"))
	defer timer.ObserveDuration()

	pairs := make([]DocumentEntityPair, len(docs))
	reports := make([]ExtractReport, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, doc := range docs {
		g.Go(func() error {
			entities, report := p.extractOne(gctx, doc)
			pairs[i] = DocumentEntityPair{Document: doc, Entities: entities}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	CheckAlignment(docs, pairs)

	summary := BatchSummary{Documents: len(pairs)}
	for i, pair := range pairs {
		summary.Entities += len(pair.Entities)
		summary.FallbackCalls += reports[i].FallbackCalls
		status := "ok"
		if len(reports[i].Degraded) > 0 {
			if summary.Degraded == nil {
				summary.Degraded = make(map[string][]string)
			}
			summary.Degraded[pair.Document.ID] = reports[i].Degraded
			status = "degraded"
		}
		documentProcessedTotal.WithLabelValues(status).Inc()
	}
	fallbackCallsTotal.Add(float64(summary.FallbackCalls))

	p.logger.WithFields(logrus.Fields{
		"documents":      summary.Documents,
		"entities":       summary.Entities,
		"degraded":       len(summary.Degraded),
		"fallback_calls": summary.FallbackCalls,
	}).Info("Batch extraction completed")
	return Batch{Pairs: pairs, Summary: summary}
}

func (p *Pipeline) extractOne(ctx context.Context, doc RawDocument) (entities EntitySet, report ExtractReport) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("doc_id", doc.ID).Errorf("Extractor panicked: %v", r)
			entities = EntitySet{}
			report = ExtractReport{Degraded: []string{FamilyExtractor}}
		}
	}()

	entities, report = p.extractor.Extract(ctx, doc)
	if entities == nil {
		entities = EntitySet{}
	}
	return entities, report
}

// CheckAlignment panics with an AlignmentViolation unless pairs holds
// exactly one entry per document, in order.
func CheckAlignment(docs []RawDocument, pairs []DocumentEntityPair) {
	if len(docs) != len(pairs) {
		panic(AlignmentViolation{Documents: len(docs), Pairs: len(pairs), Index: -1})
	}
	for i := range docs {
		if docs[i].ID != pairs[i].Document.ID || docs[i].Text != pairs[i].Document.Text {
			panic(AlignmentViolation{Documents: len(docs), Pairs: len(pairs), Index: i})
		}
	}
}

// Result is everything a pipeline run produces.
type Result struct {
	Batch    Batch               `json:"batch"`
	Enhanced []EnhancedDocument  `json:"enhanced,omitempty"`
	Graph    *KnowledgeGraphData `json:"graph"`
	Report   BuildReport         `json:"report"`
}

// Run extracts, renders and graphs a batch. Bad documents are reported in
// the summaries, never returned as errors.
func (p *Pipeline) Run(ctx context.Context, docs []RawDocument) Result {
	batch := p.ExtractBatch(ctx, docs)
	res := Result{Batch: batch}

	if p.enhancer != nil {
		timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("markup"))
		res.Enhanced = make([]EnhancedDocument, len(batch.Pairs))
		for i, pair := range batch.Pairs {
			res.Enhanced[i] = p.enhancer.Build(pair.Document, pair.Entities)
		}
		timer.ObserveDuration()
	}

	builder := p.builder
	if builder == nil {
		builder = NewBuilder(p.builderOpts...)
	}
	timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("graph"))
	res.Graph, res.Report = builder.Build(ctx, batch.Pairs)
	timer.ObserveDuration()

	if res.Report.Skipped > 0 {
		p.logger.WithField("skipped", res.Report.Skipped).Warn("Graph builder skipped malformed pairs")
	}
	return res
}
