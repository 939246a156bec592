package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/athapong/fingraph/pkg/graph/metrics"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNodeNotFound is returned by graph lookups for an unknown node id.
var ErrNodeNotFound = errors.New("node not found")

// Node represents a node in the knowledge graph
type Node struct {
	ID           string                 `json:"id"`
	Label        string                 `json:"label"`
	Key          string                 `json:"key"`
	Type         EntityType             `json:"type"`
	Category     catalog.EntityCategory `json:"category"`
	Confidence   float64                `json:"confidence"`
	Observations int                    `json:"observations"`
	Sources      []string               `json:"sources,omitempty"` // Document IDs where this node was found
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

// Edge represents a relationship between nodes in the knowledge graph
type Edge struct {
	ID         string                       `json:"id"`
	Source     string                       `json:"source"` // Source node ID
	Target     string                       `json:"target"` // Target node ID
	Type       string                       `json:"type"`
	Category   catalog.RelationshipCategory `json:"category"`
	Confidence float64                      `json:"confidence"`
	Weight     float64                      `json:"weight"` // Number of supporting documents
	Sources    []string                     `json:"sources,omitempty"`
	Properties map[string]interface{}       `json:"properties,omitempty"`
}

// KnowledgeGraphData is the interchange form of a built graph.
type KnowledgeGraphData struct {
	Version     string    `json:"version"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NodeKey is the identity of a node: normalized name and category.
func NodeKey(name string, category catalog.EntityCategory) string {
	return NormalizeName(name) + "|" + strings.ToLower(string(category))
}

// NodeID derives the deterministic node id for a key.
func NodeID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("fingraph:node:"+key)).String()
}

// EdgeID is the id of a typed edge between two nodes.
func EdgeID(source, edgeType, target string) string {
	return fmt.Sprintf("%s-%s-%s", source, edgeType, target)
}

// NodeConfidenceStrategy combines the stored confidence of a node or edge
// with a new observation.
type NodeConfidenceStrategy func(existing, incoming float64) float64

// MaxConfidence keeps the highest confidence seen.
func MaxConfidence(existing, incoming float64) float64 {
	if incoming > existing {
		return incoming
	}
	return existing
}

// DefaultRecencyAlpha is the weight of the newest observation.
const DefaultRecencyAlpha = 0.5

// RecencyWeighted moves the stored confidence towards each new observation
// by alpha.
func RecencyWeighted(alpha float64) NodeConfidenceStrategy {
	return func(existing, incoming float64) float64 {
		return Round2(alpha*incoming + (1-alpha)*existing)
	}
}

// EdgeConfidenceFunc derives an edge confidence from its endpoint entities.
type EdgeConfidenceFunc func(a, b float64) float64

// MinConfidence takes the weaker endpoint.
func MinConfidence(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// WeightedAverage weighs the source endpoint by w and the target by 1-w.
func WeightedAverage(w float64) EdgeConfidenceFunc {
	return func(a, b float64) float64 {
		return w*a + (1-w)*b
	}
}

// DefaultWorkers bounds the fan-out of extraction and candidate generation.
const DefaultWorkers = 4

// BuildReport counts what the builder did with the pairs it was given.
type BuildReport struct {
	Documents  int      `json:"documents"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Reasons    []string `json:"reasons,omitempty"`
	Nodes      int      `json:"nodes"`
	Edges      int      `json:"edges"`
}

// Builder turns aligned document/entity pairs into a deduplicated graph.
// Add and Build may be called from several goroutines; merges are serialized.
type Builder struct {
	catalog        *catalog.Catalog
	nodeStrategy   NodeConfidenceStrategy
	edgeConfidence EdgeConfidenceFunc
	skipTypes      mapset.Set[EntityType]
	minConfidence  float64
	workers        int

	nodes     map[string]*Node
	edges     map[string]*Edge
	documents mapset.Set[string]
	report    BuildReport
	mutex     sync.Mutex
	logger    *logrus.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCatalog sets the relationship tables.
func WithCatalog(c *catalog.Catalog) BuilderOption {
	return func(b *Builder) {
		b.catalog = c
	}
}

// WithNodeConfidence sets how repeated observations merge.
func WithNodeConfidence(s NodeConfidenceStrategy) BuilderOption {
	return func(b *Builder) {
		b.nodeStrategy = s
	}
}

// WithEdgeConfidence sets how endpoint confidences combine.
func WithEdgeConfidence(f EdgeConfidenceFunc) BuilderOption {
	return func(b *Builder) {
		b.edgeConfidence = f
	}
}

// WithSkipTypes replaces the entity types that never become nodes.
func WithSkipTypes(types ...EntityType) BuilderOption {
	return func(b *Builder) {
		b.skipTypes = mapset.NewSet(types...)
	}
}

// WithMinConfidence drops entities below c before they reach the graph.
func WithMinConfidence(c float64) BuilderOption {
	return func(b *Builder) {
		b.minConfidence = c
	}
}

// WithWorkers bounds the goroutines computing candidates in Build.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(l *logrus.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a new, empty graph builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	b := &Builder{
		catalog:        catalog.Default(),
		nodeStrategy:   MaxConfidence,
		edgeConfidence: MinConfidence,
		skipTypes:      mapset.NewSet(TypeSentiment),
		workers:        DefaultWorkers,
		nodes:          make(map[string]*Node),
		edges:          make(map[string]*Edge),
		documents:      mapset.NewSet[string](),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.catalog == nil {
		b.catalog = catalog.Default()
	}
	return b
}

// Candidates is the graph contribution of a single pair.
type Candidates struct {
	DocumentID string
	Nodes      []Node
	Edges      []Edge
}

// Candidates computes the nodes and edges one pair contributes. It reads
// only the pair and the catalog, so it can run in parallel.
func (b *Builder) Candidates(pair DocumentEntityPair) Candidates {
	c := Candidates{DocumentID: pair.Document.ID}

	entities := make(EntitySet, 0, len(pair.Entities))
	ids := make([]string, 0, len(pair.Entities))
	index := make(map[string]int)
	for _, e := range pair.Entities {
		if b.skipTypes.Contains(e.Type) || e.Confidence < b.minConfidence {
			continue
		}
		key := NodeKey(e.Name, e.Category)
		id := NodeID(key)
		entities = append(entities, e)
		ids = append(ids, id)

		if i, ok := index[id]; ok {
			c.Nodes[i].Confidence = MaxConfidence(c.Nodes[i].Confidence, e.Confidence)
			mergeProperties(c.Nodes[i].Properties, e.Attributes)
			continue
		}
		index[id] = len(c.Nodes)
		c.Nodes = append(c.Nodes, Node{
			ID:           id,
			Label:        e.Name,
			Key:          key,
			Type:         e.Type,
			Category:     e.Category,
			Confidence:   e.Confidence,
			Observations: 1,
			Sources:      []string{pair.Document.ID},
			Properties:   mergeProperties(make(map[string]interface{}), e.Attributes),
		})
	}

	seen := make(map[string]int)
	for _, r := range b.relations(pair.Document, entities) {
		source, target := ids[r.source], ids[r.target]
		if source == target {
			continue
		}
		id := EdgeID(source, r.rule.Type, target)
		confidence := Round2(ClampConfidence(
			b.edgeConfidence(entities[r.source].Confidence, entities[r.target].Confidence) * TierScale(r.category.Priority),
		))
		if i, ok := seen[id]; ok {
			c.Edges[i].Confidence = MaxConfidence(c.Edges[i].Confidence, confidence)
			continue
		}
		seen[id] = len(c.Edges)
		c.Edges = append(c.Edges, Edge{
			ID:         id,
			Source:     source,
			Target:     target,
			Type:       r.rule.Type,
			Category:   catalog.RelationshipCategory(r.category.Name),
			Confidence: confidence,
			Weight:     1,
			Sources:    []string{pair.Document.ID},
			Properties: map[string]interface{}{"evidence": r.window},
		})
	}
	return c
}

// Add merges one pair into the graph. A malformed pair is skipped and its
// error returned; a document that was already merged is ignored.
func (b *Builder) Add(pair DocumentEntityPair) error {
	if err := pair.Validate(); err != nil {
		b.skip(pair, err)
		return err
	}
	return b.merge(b.Candidates(pair))
}

// Build merges a batch of pairs and returns the resulting graph. Candidates
// are computed concurrently and merged in input order, so the output does
// not depend on scheduling.
func (b *Builder) Build(ctx context.Context, pairs []DocumentEntityPair) (*KnowledgeGraphData, BuildReport) {
	cands := make([]*Candidates, len(pairs))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, pair := range pairs {
		if err := pair.Validate(); err != nil {
			b.skip(pair, err)
			continue
		}
		g.Go(func() error {
			c := b.Candidates(pair)
			cands[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range cands {
		if c != nil {
			_ = b.merge(*c)
		}
	}
	return b.Generate(), b.Report()
}

func (b *Builder) skip(pair DocumentEntityPair, err error) {
	b.mutex.Lock()
	b.report.Skipped++
	b.report.Reasons = append(b.report.Reasons, err.Error())
	b.mutex.Unlock()

	metrics.SkippedPairs.Inc()
	b.logger.WithError(err).WithField("doc_id", pair.Document.ID).Warn("Skipping malformed document entity pair")
}

func (b *Builder) merge(c Candidates) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	// Skip if document was already processed
	if b.documents.Contains(c.DocumentID) {
		b.report.Duplicates++
		return nil
	}
	b.documents.Add(c.DocumentID)
	b.report.Documents++

	for _, n := range c.Nodes {
		existing, ok := b.nodes[n.ID]
		if !ok {
			node := n
			b.nodes[n.ID] = &node
			continue
		}
		existing.Confidence = b.nodeStrategy(existing.Confidence, n.Confidence)
		existing.Observations++
		existing.Sources = appendSource(existing.Sources, c.DocumentID)
		for k, v := range n.Properties {
			if _, ok := existing.Properties[k]; !ok {
				existing.Properties[k] = v
			}
		}
	}

	for _, e := range c.Edges {
		existing, ok := b.edges[e.ID]
		if !ok {
			edge := e
			b.edges[e.ID] = &edge
			continue
		}
		existing.Confidence = b.nodeStrategy(existing.Confidence, e.Confidence)
		existing.Sources = appendSource(existing.Sources, c.DocumentID)
		existing.Weight = float64(len(existing.Sources))
	}

	b.logger.WithFields(logrus.Fields{
		"doc_id": c.DocumentID,
		"nodes":  len(c.Nodes),
		"edges":  len(c.Edges),
	}).Debug("Merged document into graph")
	return nil
}

// Generate builds and returns the final knowledge graph. Nodes are ordered
// by key and edges by id.
func (b *Builder) Generate() *KnowledgeGraphData {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	// Convert maps to slices
	nodes := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		nodes = append(nodes, cloneNode(*n))
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })

	edges := make([]Edge, 0, len(b.edges))
	for _, e := range b.edges {
		edge := *e
		edge.Sources = append([]string(nil), e.Sources...)
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	metrics.GraphNodeCount.Reset()
	for _, n := range nodes {
		metrics.GraphNodeCount.WithLabelValues(string(n.Type)).Inc()
	}
	metrics.GraphEdgeCount.Reset()
	for _, e := range edges {
		metrics.GraphEdgeCount.WithLabelValues(e.Type).Inc()
	}

	return &KnowledgeGraphData{
		Version:     b.catalog.Version,
		Nodes:       nodes,
		Edges:       edges,
		GeneratedAt: time.Now().UTC(),
	}
}

// Report returns the counters accumulated so far.
func (b *Builder) Report() BuildReport {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	r := b.report
	r.Reasons = append([]string(nil), b.report.Reasons...)
	r.Nodes = len(b.nodes)
	r.Edges = len(b.edges)
	return r
}

func appendSource(sources []string, id string) []string {
	for _, s := range sources {
		if s == id {
			return sources
		}
	}
	return append(sources, id)
}

func mergeProperties(dst map[string]interface{}, attrs map[string]string) map[string]interface{} {
	for k, v := range attrs {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

func cloneNode(n Node) Node {
	n.Sources = append([]string(nil), n.Sources...)
	props := make(map[string]interface{}, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	n.Properties = props
	return n
}

// KnowledgeGraph is read access to a built graph.
type KnowledgeGraph interface {
	GetNode(ctx context.Context, id string) (*Node, error)
	GetRelatedNodes(ctx context.Context, id string, relationType string) ([]Node, error)
	FindNodes(ctx context.Context, label string) ([]Node, error)
}

// MemoryKnowledgeGraph indexes a KnowledgeGraphData for lookups.
type MemoryKnowledgeGraph struct {
	data    *KnowledgeGraphData
	nodeMap map[string]*Node   // For quick lookup by ID
	edgeMap map[string][]*Edge // Edges touching a node
	mutex   sync.RWMutex
}

// NewMemoryKnowledgeGraph creates an index over data. A nil data yields an
// empty graph.
func NewMemoryKnowledgeGraph(data *KnowledgeGraphData) *MemoryKnowledgeGraph {
	g := &MemoryKnowledgeGraph{}
	g.Load(data)
	return g
}

// Load replaces the indexed graph.
func (g *MemoryKnowledgeGraph) Load(data *KnowledgeGraphData) {
	if data == nil {
		data = &KnowledgeGraphData{Nodes: []Node{}, Edges: []Edge{}}
	}

	nodeMap := make(map[string]*Node, len(data.Nodes))
	for i := range data.Nodes {
		nodeMap[data.Nodes[i].ID] = &data.Nodes[i]
	}
	edgeMap := make(map[string][]*Edge)
	for i := range data.Edges {
		e := &data.Edges[i]
		edgeMap[e.Source] = append(edgeMap[e.Source], e)
		edgeMap[e.Target] = append(edgeMap[e.Target], e)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.data, g.nodeMap, g.edgeMap = data, nodeMap, edgeMap
}

// GetNode retrieves a node by ID
func (g *MemoryKnowledgeGraph) GetNode(ctx context.Context, id string) (*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	node, exists := g.nodeMap[id]
	if !exists {
		return nil, errors.Wrap(ErrNodeNotFound, id)
	}
	n := cloneNode(*node)
	return &n, nil
}

// GetRelatedNodes gets nodes connected to id in either direction, optionally
// restricted to one edge type.
func (g *MemoryKnowledgeGraph) GetRelatedNodes(ctx context.Context, id string, relationType string) ([]Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if _, exists := g.nodeMap[id]; !exists {
		return nil, errors.Wrap(ErrNodeNotFound, id)
	}

	related := make([]Node, 0)
	for _, edge := range g.edgeMap[id] {
		if relationType != "" && edge.Type != relationType {
			continue
		}
		other := edge.Target
		if other == id {
			other = edge.Source
		}
		if n, ok := g.nodeMap[other]; ok {
			related = append(related, cloneNode(*n))
		}
	}
	return related, nil
}

// FindNodes returns nodes whose normalized label equals label.
func (g *MemoryKnowledgeGraph) FindNodes(ctx context.Context, label string) ([]Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	want := NormalizeName(label)
	found := make([]Node, 0)
	for _, n := range g.data.Nodes {
		if NormalizeName(n.Label) == want {
			found = append(found, cloneNode(n))
		}
	}
	return found, nil
}

// Edges returns the edges touching a node.
func (g *MemoryKnowledgeGraph) Edges(id string) []Edge {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]Edge, 0, len(g.edgeMap[id]))
	for _, e := range g.edgeMap[id] {
		out = append(out, *e)
	}
	return out
}

// GetData returns the graph data for serialization or visualization
func (g *MemoryKnowledgeGraph) GetData() *KnowledgeGraphData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return g.data
}
