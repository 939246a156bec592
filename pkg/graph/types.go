package graph

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/pkg/errors"
)

// ErrMalformedPair marks a document/entity pair the graph builder cannot use.
var ErrMalformedPair = errors.New("malformed document entity pair")

// Metadata carries source attribution for a document.
type Metadata struct {
	Origin      string            `json:"origin"`
	Sender      string            `json:"sender,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Attachments []string          `json:"attachments,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// RawDocument is decoded text handed to the pipeline by an ingestion
// collaborator. The library never mutates it.
type RawDocument struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// EntityType is the family an extractor assigned to an entity.
type EntityType string

const (
	TypeTicker          EntityType = "TICKER"
	TypeCompany         EntityType = "COMPANY"
	TypePerson          EntityType = "PERSON"
	TypeRating          EntityType = "RATING"
	TypePriceTarget     EntityType = "PRICE_TARGET"
	TypeFinancialMetric EntityType = "FINANCIAL_METRIC"
	TypePercentage      EntityType = "PERCENTAGE"
	TypeDate            EntityType = "DATE"
	TypeSentiment       EntityType = "SENTIMENT"
)

// EntityTypes lists every type in markup sort order.
var EntityTypes = []EntityType{
	TypeCompany, TypeDate, TypeFinancialMetric, TypePercentage, TypePerson,
	TypePriceTarget, TypeRating, TypeSentiment, TypeTicker,
}

// ExtractedEntity is a typed fragment of a document. Entities are values:
// once built by the extractor they are only read.
type ExtractedEntity struct {
	Name       string                 `json:"name"`
	Type       EntityType             `json:"type"`
	Category   catalog.EntityCategory `json:"category"`
	Confidence float64                `json:"confidence"`
	Context    string                 `json:"context,omitempty"`
	SourceRef  string                 `json:"source_ref"`
	Attributes map[string]string      `json:"attributes,omitempty"`
}

// NewEntity builds an entity with its confidence clamped into [0,1] and
// rounded to two decimals.
func NewEntity(name string, typ EntityType, confidence float64) ExtractedEntity {
	return ExtractedEntity{
		Name:       strings.TrimSpace(name),
		Type:       typ,
		Confidence: Round2(ClampConfidence(confidence)),
	}
}

// ClampConfidence maps any value into [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Round2 rounds a confidence to two decimals.
func Round2(c float64) float64 {
	return math.Round(c*100) / 100
}

// Key returns the normalized identity used for deduplication within a document.
func (e ExtractedEntity) Key() string {
	return string(e.Type) + "|" + NormalizeName(e.Name)
}

// Validate reports why an entity cannot be placed in a graph.
func (e ExtractedEntity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.Wrap(ErrMalformedPair, "entity with empty name")
	}
	if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
		return errors.Wrapf(ErrMalformedPair, "entity %q has confidence %v", e.Name, e.Confidence)
	}
	return nil
}

// NormalizeName lowercases and collapses whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// EntitySet is the bag of entities extracted from one document.
type EntitySet []ExtractedEntity

// Above returns the entities whose confidence is at least threshold.
func (s EntitySet) Above(threshold float64) EntitySet {
	out := make(EntitySet, 0, len(s))
	for _, e := range s {
		if e.Confidence >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// ByType returns the entities of a single type.
func (s EntitySet) ByType(t EntityType) EntitySet {
	out := make(EntitySet, 0)
	for _, e := range s {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the first entity with the given type and normalized name.
func (s EntitySet) Find(t EntityType, name string) (ExtractedEntity, bool) {
	norm := NormalizeName(name)
	for _, e := range s {
		if e.Type == t && NormalizeName(e.Name) == norm {
			return e, true
		}
	}
	return ExtractedEntity{}, false
}

// DocumentEntityPair binds a document to the entities extracted from it.
type DocumentEntityPair struct {
	Document RawDocument `json:"document"`
	Entities EntitySet   `json:"entities"`
}

// Validate checks a pair before it is merged into a graph.
func (p DocumentEntityPair) Validate() error {
	if strings.TrimSpace(p.Document.ID) == "" {
		return errors.Wrap(ErrMalformedPair, "document without id")
	}
	for _, e := range p.Entities {
		if err := e.Validate(); err != nil {
			return errors.Wrapf(err, "document %s", p.Document.ID)
		}
	}
	return nil
}

// ExtractReport describes what went wrong while extracting one document.
type ExtractReport struct {
	Degraded      []string `json:"degraded,omitempty"`
	FallbackCalls int      `json:"fallback_calls"`
}

// BatchSummary aggregates extraction reports over a batch.
type BatchSummary struct {
	Documents     int                 `json:"documents"`
	Entities      int                 `json:"entities"`
	Degraded      map[string][]string `json:"degraded,omitempty"`
	FallbackCalls int                 `json:"fallback_calls"`
}

// Batch is the aligned result of extracting a list of documents. Index i of
// Documents() and EntitySets() always refers to the same source document.
type Batch struct {
	Pairs   []DocumentEntityPair `json:"pairs"`
	Summary BatchSummary         `json:"summary"`
}

// Documents returns the document view of the batch.
func (b Batch) Documents() []RawDocument {
	docs := make([]RawDocument, len(b.Pairs))
	for i, p := range b.Pairs {
		docs[i] = p.Document
	}
	return docs
}

// EntitySets returns the entity view of the batch.
func (b Batch) EntitySets() []EntitySet {
	sets := make([]EntitySet, len(b.Pairs))
	for i, p := range b.Pairs {
		sets[i] = p.Entities
	}
	return sets
}

// EnhancedDocument is a document rendered with inline entity markup.
type EnhancedDocument struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Tags       int    `json:"tags"`
	TokenCount int    `json:"token_count,omitempty"`
}

// EntityExtractor turns one document into its entity set. Implementations
// never fail: degraded families are listed in the report.
type EntityExtractor interface {
	Extract(ctx context.Context, doc RawDocument) (EntitySet, ExtractReport)
}

// DocumentEnhancer renders a document with its entities.
type DocumentEnhancer interface {
	Build(doc RawDocument, entities EntitySet) EnhancedDocument
}

// DocumentLoader decodes a file of a supported type into a RawDocument.
type DocumentLoader interface {
	Load(ctx context.Context, name string, content []byte) (RawDocument, error)
	SupportedTypes() []string
}

// AlignmentViolation is raised (as a panic) when a batch loses the 1:1
// correspondence between documents and entity sets.
type AlignmentViolation struct {
	Documents int
	Pairs     int
	Index     int
}

func (v AlignmentViolation) Error() string {
	if v.Index >= 0 {
		return fmt.Sprintf("alignment violation: pair %d does not hold document %d", v.Index, v.Index)
	}
	return fmt.Sprintf("alignment violation: %d documents but %d entity sets", v.Documents, v.Pairs)
}
