package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/catalog"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
)

// attrPrefix marks flattened node and edge properties, since Neo4j cannot
// store nested maps.
const attrPrefix = "attr_"

const mergeNodeQuery = `
	MERGE (e:Entity {id: $id})
	ON CREATE SET e.created_at = datetime()
	SET e.label = $label,
		e.key = $key,
		e.type = $type,
		e.category = $category,
		e.confidence = $confidence,
		e.observations = $observations,
		e.sources = $sources,
		e.updated_at = datetime()
	SET e += $attrs
`

const mergeEdgeQuery = `
	MATCH (from:Entity {id: $fromID})
	MATCH (to:Entity {id: $toID})
	MERGE (from)-[r:RELATES {id: $id}]->(to)
	ON CREATE SET r.created_at = datetime()
	SET r.type = $type,
		r.category = $category,
		r.confidence = $confidence,
		r.weight = $weight,
		r.sources = $sources,
		r.updated_at = datetime()
	SET r += $attrs
`

// Neo4jStorage exports graphs to Neo4j. Nodes and edges are MERGEd on
// their ids, so storing the same graph twice leaves Neo4j unchanged.
type Neo4jStorage struct {
	driver neo4j.Driver
	uri    string
}

// NewNeo4jStorage creates a new Neo4j storage instance
func NewNeo4jStorage(uri, username, password string) (*Neo4jStorage, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}

	return &Neo4jStorage{
		driver: driver,
		uri:    uri,
	}, nil
}

// Connect verifies the server is reachable.
func (s *Neo4jStorage) Connect(ctx context.Context) error {
	return errors.Wrapf(s.driver.VerifyConnectivity(), "connect to %s", s.uri)
}

func (s *Neo4jStorage) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

// StoreGraph merges every node, then every edge, in one write transaction.
func (s *Neo4jStorage) StoreGraph(ctx context.Context, g *graph.KnowledgeGraphData) error {
	if g == nil {
		return errors.New("cannot store nil graph")
	}

	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	// Schema changes cannot share a transaction with writes.
	if result, err := session.Run(`CREATE INDEX entity_id IF NOT EXISTS FOR (e:Entity) ON (e.id)`, nil); err != nil {
		return errors.Wrap(err, "create index")
	} else if _, err := result.Consume(); err != nil {
		return errors.Wrap(err, "create index")
	}

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		for _, n := range g.Nodes {
			if _, err := tx.Run(mergeNodeQuery, nodeParams(n)); err != nil {
				return nil, errors.Wrapf(err, "merge node %s", n.ID)
			}
		}
		for _, e := range g.Edges {
			if _, err := tx.Run(mergeEdgeQuery, edgeParams(e)); err != nil {
				return nil, errors.Wrapf(err, "merge edge %s", e.ID)
			}
		}
		return nil, nil
	})
	return err
}

// LoadGraph reads every Entity node and RELATES edge back.
func (s *Neo4jStorage) LoadGraph(ctx context.Context) (*graph.KnowledgeGraphData, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	out, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		data := &graph.KnowledgeGraphData{Nodes: []graph.Node{}, Edges: []graph.Edge{}, GeneratedAt: time.Now().UTC()}

		result, err := tx.Run(`MATCH (e:Entity) RETURN e ORDER BY e.key`, nil)
		if err != nil {
			return nil, err
		}
		for result.Next() {
			node, ok := result.Record().Values[0].(neo4j.Node)
			if !ok {
				continue
			}
			data.Nodes = append(data.Nodes, nodeFromProps(node.Props))
		}
		if err := result.Err(); err != nil {
			return nil, err
		}

		result, err = tx.Run(`MATCH (from:Entity)-[r:RELATES]->(to:Entity) RETURN r, from.id, to.id ORDER BY r.id`, nil)
		if err != nil {
			return nil, err
		}
		for result.Next() {
			record := result.Record()
			rel, ok := record.Values[0].(neo4j.Relationship)
			if !ok {
				continue
			}
			from, _ := record.Values[1].(string)
			to, _ := record.Values[2].(string)
			data.Edges = append(data.Edges, edgeFromProps(rel.Props, from, to))
		}
		return data, result.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "load graph from neo4j")
	}
	return out.(*graph.KnowledgeGraphData), nil
}

func nodeParams(n graph.Node) map[string]interface{} {
	return map[string]interface{}{
		"id":           n.ID,
		"label":        n.Label,
		"key":          n.Key,
		"type":         string(n.Type),
		"category":     string(n.Category),
		"confidence":   n.Confidence,
		"observations": int64(n.Observations),
		"sources":      n.Sources,
		"attrs":        flatten(n.Properties),
	}
}

func edgeParams(e graph.Edge) map[string]interface{} {
	return map[string]interface{}{
		"id":         e.ID,
		"fromID":     e.Source,
		"toID":       e.Target,
		"type":       e.Type,
		"category":   string(e.Category),
		"confidence": e.Confidence,
		"weight":     e.Weight,
		"sources":    e.Sources,
		"attrs":      flatten(e.Properties),
	}
}

func flatten(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case string, bool, int64, float64:
			out[attrPrefix+k] = val
		case int:
			out[attrPrefix+k] = int64(val)
		default:
			out[attrPrefix+k] = fmt.Sprint(val)
		}
	}
	return out
}

func unflatten(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range props {
		if strings.HasPrefix(k, attrPrefix) {
			out[strings.TrimPrefix(k, attrPrefix)] = v
		}
	}
	return out
}

func nodeFromProps(p map[string]interface{}) graph.Node {
	return graph.Node{
		ID:           str(p["id"]),
		Label:        str(p["label"]),
		Key:          str(p["key"]),
		Type:         graph.EntityType(str(p["type"])),
		Category:     catalog.EntityCategory(str(p["category"])),
		Confidence:   float(p["confidence"]),
		Observations: int(integer(p["observations"])),
		Sources:      strs(p["sources"]),
		Properties:   unflatten(p),
	}
}

func edgeFromProps(p map[string]interface{}, from, to string) graph.Edge {
	return graph.Edge{
		ID:         str(p["id"]),
		Source:     from,
		Target:     to,
		Type:       str(p["type"]),
		Category:   catalog.RelationshipCategory(str(p["category"])),
		Confidence: float(p["confidence"]),
		Weight:     float(p["weight"]),
		Sources:    strs(p["sources"]),
		Properties: unflatten(p),
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func float(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func integer(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func strs(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
