package algorithms

import (
	"context"
	"fmt"

	"github.com/athapong/fingraph/pkg/graph"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// GraphTraversal walks a knowledge graph outwards from a start node,
// following edges in either direction.
type GraphTraversal struct {
	graph        graph.KnowledgeGraph
	relationType string
}

func NewGraphTraversal(g graph.KnowledgeGraph) *GraphTraversal {
	return &GraphTraversal{graph: g}
}

// WithRelationType restricts the walk to edges of one type.
func (t *GraphTraversal) WithRelationType(relationType string) *GraphTraversal {
	t.relationType = relationType
	return t
}

// Traverse returns the nodes reachable from startID within maxDepth hops,
// start node first. A depth of zero yields only the start node.
func (t *GraphTraversal) Traverse(ctx context.Context, startID string, maxDepth int, traversalType TraversalType) ([]graph.Node, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth must not be negative: %d", maxDepth)
	}
	visited := make(map[string]bool)

	switch traversalType {
	case BFS:
		return t.bfs(ctx, startID, maxDepth, visited)
	case DFS:
		result := make([]graph.Node, 0)
		if err := t.dfs(ctx, startID, maxDepth, visited, &result); err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported traversal type: %s", traversalType)
	}
}

func (t *GraphTraversal) bfs(ctx context.Context, startID string, maxDepth int, visited map[string]bool) ([]graph.Node, error) {
	start, err := t.graph.GetNode(ctx, startID)
	if err != nil {
		return nil, err
	}
	visited[startID] = true
	result := []graph.Node{*start}
	frontier := []string{startID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []string
		for _, current := range frontier {
			related, err := t.graph.GetRelatedNodes(ctx, current, t.relationType)
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				if visited[r.ID] {
					continue
				}
				visited[r.ID] = true
				result = append(result, r)
				next = append(next, r.ID)
			}
		}
		frontier = next
	}

	return result, nil
}

func (t *GraphTraversal) dfs(ctx context.Context, currentID string, depth int, visited map[string]bool, result *[]graph.Node) error {
	if visited[currentID] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	visited[currentID] = true
	node, err := t.graph.GetNode(ctx, currentID)
	if err != nil {
		return err
	}
	*result = append(*result, *node)
	if depth == 0 {
		return nil
	}

	related, err := t.graph.GetRelatedNodes(ctx, currentID, t.relationType)
	if err != nil {
		return err
	}
	for _, r := range related {
		if err := t.dfs(ctx, r.ID, depth-1, visited, result); err != nil {
			return err
		}
	}
	return nil
}
