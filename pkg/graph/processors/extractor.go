package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/athapong/fingraph/pkg/graph/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var processingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "fingraph_extraction_duration_seconds",
		Help: "Time spent extracting entities, by family",
	},
	[]string{"family"},
)

func init() {
	prometheus.MustRegister(processingDuration)
}

// Family names, as reported in ExtractReport.Degraded.
const (
	FamilyTickers      = "tickers"
	FamilyRatings      = "ratings"
	FamilyCompanies    = "companies"
	FamilyPersons      = "persons"
	FamilyPriceTargets = "price_targets"
	FamilyMetrics      = "metrics"
	FamilyPercentages  = "percentages"
	FamilyDates        = "dates"
	FamilySentiment    = "sentiment"
)

// Func is a sub-extractor: a pure function from text to entities.
type Func func(text string) (graph.EntitySet, error)

// Family is a named sub-extractor.
type Family struct {
	Name string
	Fn   Func
}

// DefaultFamilies is the fixed list of sub-extractors. Relative dates are
// resolved against base.
func DefaultFamilies(base time.Time) []Family {
	return []Family{
		{FamilyTickers, ExtractTickers},
		{FamilyRatings, ExtractRatings},
		{FamilyCompanies, ExtractCompanies},
		{FamilyPersons, ExtractPersons},
		{FamilyPriceTargets, ExtractPriceTargets},
		{FamilyMetrics, ExtractMetrics},
		{FamilyPercentages, ExtractPercentages},
		{FamilyDates, NewDateExtractor(base).Extract},
		{FamilySentiment, ExtractSentiment},
	}
}

// Extractor runs every sub-extractor over a document, categorizes what they
// found and deduplicates the result. It implements graph.EntityExtractor.
type Extractor struct {
	categorizer categorize.Categorizer
	families    func(base time.Time) []Family
	logger      *logrus.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCategorizer sets the categorizer (keyword Engine or Hybrid).
func WithCategorizer(c categorize.Categorizer) Option {
	return func(e *Extractor) {
		e.categorizer = c
	}
}

// WithFamilies replaces the sub-extractor list.
func WithFamilies(families ...Family) Option {
	return func(e *Extractor) {
		e.families = func(time.Time) []Family { return families }
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor creates an extractor using the keyword engine over the
// built-in catalog unless configured otherwise.
func NewExtractor(opts ...Option) *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &Extractor{
		categorizer: categorize.NewEngine(nil),
		families:    DefaultFamilies,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract implements graph.EntityExtractor. Empty text yields an empty set.
// A failing or panicking sub-extractor contributes nothing and is listed in
// the report; Extract itself never fails.
func (x *Extractor) Extract(ctx context.Context, doc graph.RawDocument) (graph.EntitySet, graph.ExtractReport) {
	var report graph.ExtractReport
	if strings.TrimSpace(doc.Text) == "" {
		return graph.EntitySet{}, report
	}

	raw := make(graph.EntitySet, 0)
	for _, fam := range x.families(doc.Metadata.Timestamp) {
		found, err := x.run(fam, doc.Text)
		if err != nil {
			x.logger.WithError(err).WithFields(logrus.Fields{
				"doc_id": doc.ID,
				"family": fam.Name,
			}).Warn("Sub-extractor failed, continuing without it")
			metrics.ExtractionFailures.WithLabelValues(fam.Name).Inc()
			report.Degraded = append(report.Degraded, fam.Name)
			continue
		}
		raw = append(raw, found...)
	}

	out := make(graph.EntitySet, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, e := range raw {
		e.SourceRef = doc.ID
		if i, ok := index[e.Key()]; ok {
			if e.Confidence > out[i].Confidence {
				e.Category = out[i].Category
				e.Attributes = mergeAttributes(out[i].Attributes, e.Attributes)
				out[i] = e
			}
			continue
		}

		input := categoryInputFor(e.Type)
		if input == categoryFixed {
			e.Category = catalog.Other
		} else {
			content := e.Context
			if input == categoryByName {
				content = ""
			}
			res := x.categorizer.Categorize(ctx, e.Name, content)
			e.Category = res.Category
			e.Attributes = mergeAttributes(e.Attributes, map[string]string{
				"category_confidence": fmt.Sprintf("%.2f", res.Confidence),
				"category_method":     res.Method,
			})
			if res.UsedFallback() {
				report.FallbackCalls++
			}
			metrics.Categorizations.WithLabelValues(res.Method, string(res.Category)).Inc()
		}

		index[e.Key()] = len(out)
		out = append(out, e)
	}

	for _, e := range out {
		metrics.EntitiesExtracted.WithLabelValues(string(e.Type)).Inc()
	}
	x.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"entities": len(out),
		"degraded": len(report.Degraded),
	}).Debug("Extraction completed")
	return out, report
}

type categoryInput int

const (
	categoryWithContext categoryInput = iota
	categoryByName
	categoryFixed
)

// categoryInputFor decides what the categorizer sees for an entity type.
// Tickers and persons are identifiers: their category is part of the graph
// node identity, so it must not depend on neighbouring words. Dates and
// sentiment labels always take the catch-all.
func categoryInputFor(t graph.EntityType) categoryInput {
	switch t {
	case graph.TypeDate, graph.TypeSentiment:
		return categoryFixed
	case graph.TypeTicker, graph.TypePerson:
		return categoryByName
	default:
		return categoryWithContext
	}
}

func (x *Extractor) run(fam Family, text string) (found graph.EntitySet, err error) {
	timer := prometheus.NewTimer(processingDuration.WithLabelValues(fam.Name))
	defer timer.ObserveDuration()
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("sub-extractor %s panicked: %v", fam.Name, r)
		}
	}()

	found, err = fam.Fn(text)
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Confidence = graph.ClampConfidence(found[i].Confidence)
		if found[i].Context == "" && found[i].Type != graph.TypeSentiment {
			found[i].Context = sentenceContaining(text, found[i].Name)
		}
	}
	return found, nil
}

func sentenceContaining(text, name string) string {
	if name == "" {
		return ""
	}
	pos := strings.Index(strings.ToLower(text), strings.ToLower(name))
	if pos < 0 {
		return ""
	}
	return contextAt(text, splitSentences(text), pos)
}

func mergeAttributes(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
