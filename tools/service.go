package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/athapong/fingraph/pkg/config"
	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/athapong/fingraph/pkg/graph/markup"
	"github.com/athapong/fingraph/pkg/graph/processors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// Service holds the pipeline components shared by the graph tools and the
// graph produced by the most recent build_graph call.
type Service struct {
	engine      *categorize.Engine
	categorizer categorize.Categorizer
	extractor   *processors.Extractor
	markup      *markup.Builder
	builderOpts []graph.BuilderOption
	workers     int
	httpClient  *http.Client
	logger      *logrus.Logger

	mutex sync.RWMutex
	last  *graph.MemoryKnowledgeGraph
}

// NewService wires the tools to cfg. A nil categorizer falls back to
// keyword-only categorization with engine.
func NewService(cfg *config.Config, engine *categorize.Engine, categorizer categorize.Categorizer, logger *logrus.Logger) *Service {
	if categorizer == nil {
		categorizer = engine
	}
	return &Service{
		engine:      engine,
		categorizer: categorizer,
		extractor: processors.NewExtractor(
			processors.WithCategorizer(categorizer),
			processors.WithLogger(logger),
		),
		markup: markup.NewBuilder(
			markup.WithThreshold(cfg.MarkupThreshold),
			markup.WithLogger(logger),
		),
		builderOpts: append(cfg.BuilderOptions(), graph.WithCatalog(engine.Catalog()), graph.WithBuilderLogger(logger)),
		workers:     cfg.Workers,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Register adds every enabled graph tool to s.
func (svc *Service) Register(s *server.MCPServer, isEnabled func(string) bool) {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{extractEntitiesTool(), svc.extractEntitiesHandler},
		{categorizeEntityTool(), svc.categorizeEntityHandler},
		{enhanceDocumentTool(), svc.enhanceDocumentHandler},
		{buildGraphTool(), svc.buildGraphHandler},
		{relatedEntitiesTool(), svc.relatedEntitiesHandler},
		{queryGraphTool(), svc.queryGraphHandler},
		{fetchDocumentTool(), svc.fetchDocumentHandler},
	}
	for _, t := range tools {
		if isEnabled(t.tool.Name) {
			s.AddTool(t.tool, errorGuard(svc.logger, t.handler))
		}
	}
}

func (svc *Service) pipeline() *graph.Pipeline {
	return graph.NewPipeline(svc.extractor,
		graph.WithEnhancer(svc.markup),
		graph.WithBuilderOptions(svc.builderOpts...),
		graph.WithPipelineWorkers(svc.workers),
		graph.WithPipelineLogger(svc.logger),
	)
}

func (svc *Service) setLast(data *graph.KnowledgeGraphData) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.last = graph.NewMemoryKnowledgeGraph(data)
}

func (svc *Service) lastGraph() *graph.MemoryKnowledgeGraph {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	return svc.last
}

// errorGuard turns a panicking handler into an error result.
func errorGuard(logger *logrus.Logger, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("tool", request.Params.Name).Errorf("Tool panicked: %v", r)
				result = mcp.NewToolResultError(fmt.Sprintf("internal error: %v", r))
				err = nil
			}
		}()
		return handler(ctx, request)
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
