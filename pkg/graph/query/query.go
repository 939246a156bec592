package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/athapong/fingraph/pkg/graph"
)

// Field names a node attribute a Filter can test.
type Field string

const (
	FieldLabel      Field = "label"
	FieldType       Field = "type"
	FieldCategory   Field = "category"
	FieldConfidence Field = "confidence"
	FieldSource     Field = "source"
)

type Operator string

const (
	Equals   Operator = "eq"
	Contains Operator = "contains"
	AtLeast  Operator = "gte"
)

type Filter struct {
	Field    Field       `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Query selects nodes by filters and, when RelationType is set, keeps only
// nodes that have at least one edge of that type.
type Query struct {
	Filters      []Filter `json:"filters"`
	RelationType string   `json:"relation_type,omitempty"`
	Limit        int      `json:"limit"`
	Skip         int      `json:"skip"`
}

func NewQuery() *Query {
	return &Query{Filters: make([]Filter, 0)}
}

func (q *Query) AddFilter(filter Filter) *Query {
	q.Filters = append(q.Filters, filter)
	return q
}

func (q *Query) Where(field Field, op Operator, value interface{}) *Query {
	return q.AddFilter(Filter{Field: field, Operator: op, Value: value})
}

func (q *Query) WithRelation(relationType string) *Query {
	q.RelationType = relationType
	return q
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

func (q *Query) SetSkip(skip int) *Query {
	q.Skip = skip
	return q
}

func (q *Query) String() string {
	bytes, _ := json.MarshalIndent(q, "", "  ")
	return string(bytes)
}

// Validate rejects filters the executor cannot evaluate.
func (q *Query) Validate() error {
	for _, f := range q.Filters {
		switch f.Field {
		case FieldLabel, FieldType, FieldCategory, FieldSource:
			if f.Operator != Equals && f.Operator != Contains {
				return fmt.Errorf("operator %q not supported on %s", f.Operator, f.Field)
			}
			if _, ok := f.Value.(string); !ok {
				return fmt.Errorf("%s filter needs a string value", f.Field)
			}
		case FieldConfidence:
			if f.Operator != AtLeast && f.Operator != Equals {
				return fmt.Errorf("operator %q not supported on %s", f.Operator, f.Field)
			}
			if _, ok := number(f.Value); !ok {
				return fmt.Errorf("%s filter needs a numeric value", f.Field)
			}
		default:
			return fmt.Errorf("unknown field %q", f.Field)
		}
	}
	if q.Limit < 0 || q.Skip < 0 {
		return fmt.Errorf("limit and skip must not be negative")
	}
	return nil
}

// Execute runs the query against a built graph. Matches are ordered by
// descending confidence, then label.
func (q *Query) Execute(data *graph.KnowledgeGraphData) ([]graph.Node, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if data == nil {
		return []graph.Node{}, nil
	}

	var related map[string]bool
	if q.RelationType != "" {
		related = make(map[string]bool)
		for _, e := range data.Edges {
			if e.Type == q.RelationType {
				related[e.Source] = true
				related[e.Target] = true
			}
		}
	}

	matches := make([]graph.Node, 0)
	for _, n := range data.Nodes {
		if related != nil && !related[n.ID] {
			continue
		}
		if q.matches(n) {
			matches = append(matches, n)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Label < matches[j].Label
	})

	if q.Skip >= len(matches) {
		return []graph.Node{}, nil
	}
	matches = matches[q.Skip:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (q *Query) matches(n graph.Node) bool {
	for _, f := range q.Filters {
		if !f.matches(n) {
			return false
		}
	}
	return true
}

func (f Filter) matches(n graph.Node) bool {
	if f.Field == FieldConfidence {
		want, _ := number(f.Value)
		if f.Operator == AtLeast {
			return n.Confidence >= want
		}
		return n.Confidence == want
	}

	want, _ := f.Value.(string)
	var candidates []string
	switch f.Field {
	case FieldLabel:
		candidates = []string{n.Label}
	case FieldType:
		candidates = []string{string(n.Type)}
	case FieldCategory:
		candidates = []string{string(n.Category)}
	case FieldSource:
		candidates = n.Sources
	}
	for _, c := range candidates {
		if f.Operator == Equals && strings.EqualFold(c, want) {
			return true
		}
		if f.Operator == Contains && strings.Contains(strings.ToLower(c), strings.ToLower(want)) {
			return true
		}
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
