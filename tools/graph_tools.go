package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/algorithms"
	"github.com/athapong/fingraph/pkg/graph/processors"
	"github.com/athapong/fingraph/pkg/graph/query"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxRelatedDepth = 5

func extractEntitiesTool() mcp.Tool {
	return mcp.NewTool("extract_entities",
		mcp.WithDescription("Extract financial entities (tickers, companies, persons, ratings, price targets, metrics, percentages, dates, sentiment) from text. Returns a JSON entity set with categories and confidences."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text to analyze")),
		mcp.WithString("origin", mcp.Description("Where the text came from, e.g. email or api")),
		mcp.WithString("sender", mcp.Description("Author or sender of the text")),
		mcp.WithNumber("min_confidence", mcp.Description("Drop entities below this confidence (0-1)")),
	)
}

func categorizeEntityTool() mcp.Tool {
	return mcp.NewTool("categorize_entity",
		mcp.WithDescription("Assign a financial category to an entity name, optionally using surrounding content and the LLM fallback"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entity name")),
		mcp.WithString("content", mcp.Description("Surrounding text used by the second keyword phase")),
		mcp.WithBoolean("hybrid", mcp.Description("Consult the fallback classifier for low-confidence results (default true)")),
	)
}

func enhanceDocumentTool() mcp.Tool {
	return mcp.NewTool("enhance_document",
		mcp.WithDescription("Return the text prefixed with a SOURCE tag and one tag line per confident entity"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text to enhance")),
		mcp.WithString("origin", mcp.Description("Where the text came from, e.g. email or api")),
		mcp.WithString("sender", mcp.Description("Author or sender of the text")),
	)
}

func buildGraphTool() mcp.Tool {
	return mcp.NewTool("build_graph",
		mcp.WithDescription("Extract entities from a batch of documents and build a knowledge graph. The graph is kept for related_entities and query_graph."),
		mcp.WithArray("documents", mcp.Required(), mcp.WithStringItems(), mcp.Description("Document texts")),
		mcp.WithString("origin", mcp.Description("Origin recorded for every document")),
	)
}

func relatedEntitiesTool() mcp.Tool {
	return mcp.NewTool("related_entities",
		mcp.WithDescription("List entities connected to a label in the last built graph"),
		mcp.WithString("label", mcp.Required(), mcp.Description("Entity name, matched case-insensitively")),
		mcp.WithNumber("depth", mcp.Description(fmt.Sprintf("Number of hops to follow (1-%d, default 1)", maxRelatedDepth))),
		mcp.WithString("relation", mcp.Description("Only follow edges of this type, e.g. ANALYST_RECOMMENDS")),
	)
}

func queryGraphTool() mcp.Tool {
	return mcp.NewTool("query_graph",
		mcp.WithDescription("Filter nodes of the last built graph by category, type, confidence and relation"),
		mcp.WithString("category", mcp.Description("Entity category, e.g. Company")),
		mcp.WithString("type", mcp.Description("Entity type, e.g. TICKER")),
		mcp.WithNumber("min_confidence", mcp.Description("Minimum node confidence (0-1)")),
		mcp.WithString("relation", mcp.Description("Keep nodes with at least one edge of this type")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of nodes (default 20)")),
	)
}

func rawDocument(request mcp.CallToolRequest, text string) graph.RawDocument {
	return graph.RawDocument{
		ID:   processors.DocumentID([]byte(text)),
		Text: text,
		Metadata: graph.Metadata{
			Origin:    request.GetString("origin", "mcp"),
			Sender:    request.GetString("sender", ""),
			Timestamp: time.Now().UTC(),
		},
	}
}

func (svc *Service) extractEntitiesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}

	doc := rawDocument(request, text)
	entities, report := svc.extractor.Extract(ctx, doc)
	if floor := request.GetFloat("min_confidence", 0); floor > 0 {
		entities = entities.Above(floor)
	}

	return jsonResult(map[string]interface{}{
		"document_id":    doc.ID,
		"entities":       entities,
		"degraded":       report.Degraded,
		"fallback_calls": report.FallbackCalls,
	})
}

func (svc *Service) categorizeEntityHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	content := request.GetString("content", "")

	if request.GetBool("hybrid", true) {
		return jsonResult(svc.categorizer.Categorize(ctx, name, content))
	}
	return jsonResult(svc.engine.Keyword(name, content))
}

func (svc *Service) enhanceDocumentHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}

	doc := rawDocument(request, text)
	entities, _ := svc.extractor.Extract(ctx, doc)
	return mcp.NewToolResultText(svc.markup.Build(doc, entities).Text), nil
}

func (svc *Service) buildGraphHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	texts := request.GetStringSlice("documents", nil)
	if len(texts) == 0 {
		return mcp.NewToolResultError("documents must be a non-empty array of strings"), nil
	}

	docs := make([]graph.RawDocument, len(texts))
	for i, text := range texts {
		docs[i] = rawDocument(request, text)
	}

	res := svc.pipeline().Run(ctx, docs)
	svc.setLast(res.Graph)

	return jsonResult(map[string]interface{}{
		"summary": res.Batch.Summary,
		"report":  res.Report,
		"graph":   res.Graph,
	})
}

func (svc *Service) relatedEntitiesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := request.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError("label is required"), nil
	}
	kg := svc.lastGraph()
	if kg == nil {
		return mcp.NewToolResultError("no graph has been built yet; call build_graph first"), nil
	}

	depth := request.GetInt("depth", 1)
	if depth < 1 || depth > maxRelatedDepth {
		return mcp.NewToolResultError(fmt.Sprintf("depth must be between 1 and %d", maxRelatedDepth)), nil
	}

	starts, err := kg.FindNodes(ctx, label)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(starts) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no entity labelled %q in the graph", label)), nil
	}

	traversal := algorithms.NewGraphTraversal(kg).WithRelationType(request.GetString("relation", ""))
	seen := make(map[string]bool)
	related := make([]graph.Node, 0)
	for _, start := range starts {
		seen[start.ID] = true
	}
	for _, start := range starts {
		nodes, err := traversal.Traverse(ctx, start.ID, depth, algorithms.BFS)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		for _, n := range nodes {
			if !seen[n.ID] {
				seen[n.ID] = true
				related = append(related, n)
			}
		}
	}

	return jsonResult(map[string]interface{}{
		"label":   label,
		"matches": starts,
		"related": related,
	})
}

func (svc *Service) queryGraphHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kg := svc.lastGraph()
	if kg == nil {
		return mcp.NewToolResultError("no graph has been built yet; call build_graph first"), nil
	}

	q := query.NewQuery().SetLimit(request.GetInt("limit", 20))
	if category := request.GetString("category", ""); category != "" {
		q.Where(query.FieldCategory, query.Equals, category)
	}
	if typ := request.GetString("type", ""); typ != "" {
		q.Where(query.FieldType, query.Equals, typ)
	}
	if floor := request.GetFloat("min_confidence", 0); floor > 0 {
		q.Where(query.FieldConfidence, query.AtLeast, floor)
	}
	if relation := request.GetString("relation", ""); relation != "" {
		q.WithRelation(relation)
	}

	nodes, err := q.Execute(kg.GetData())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"count": len(nodes), "nodes": nodes})
}
