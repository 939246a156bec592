package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"

	"github.com/athapong/fingraph/pkg/config"
	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/markup"
	"github.com/athapong/fingraph/pkg/graph/metrics"
	"github.com/athapong/fingraph/pkg/graph/processors"
	"github.com/athapong/fingraph/pkg/graph/storage"
	"github.com/athapong/fingraph/pkg/graph/visualizer"
	"github.com/athapong/fingraph/services"
	"github.com/sirupsen/logrus"
)

var (
	inputDir        = flag.String("input", "", "Directory containing input documents (.txt, .md, .eml, .html, .pdf)")
	outputFile      = flag.String("output", "knowledge_graph.json", "Output file path for the knowledge graph")
	enhancedDir     = flag.String("enhanced-dir", "", "Directory for enhanced documents (skipped when empty)")
	visualize       = flag.Bool("visualize", false, "Generate a visualization of the knowledge graph")
	visualizeOutput = flag.String("viz-output", "knowledge_graph.html", "Output file for the visualization")
	configFile      = flag.String("config", os.Getenv("FINGRAPH_CONFIG"), "Path to YAML config file")
	envFile         = flag.String("env", ".env", "Path to environment file")
	logLevel        = flag.String("log-level", "", "Logging level (debug, info, warn, error); overrides the config")
	exportNeo4j     = flag.Bool("neo4j", false, "Export the graph to the configured Neo4j database")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid log level: %v", err)
		}
	}
	logger := cfg.NewLogger()

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}

	ctx := context.Background()
	files, err := readInputFiles(*inputDir)
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input files found")
	}

	logger.Infof("Processing %d input files...", len(files))

	documents := make([]graph.RawDocument, 0, len(files))
	for _, file := range files {
		doc, err := processors.LoadFile(ctx, file)
		if err != nil {
			logger.WithError(err).WithField("file", file).Error("Failed to load document")
			continue
		}
		documents = append(documents, doc)
	}

	categorizer, err := services.NewCategorizer(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to configure categorizer: %v", err)
	}
	cat, err := services.LoadCatalog(cfg)
	if err != nil {
		logger.Fatalf("Failed to load catalog: %v", err)
	}

	pipeline := graph.NewPipeline(
		processors.NewExtractor(processors.WithCategorizer(categorizer), processors.WithLogger(logger)),
		graph.WithEnhancer(markup.NewBuilder(
			markup.WithThreshold(cfg.MarkupThreshold),
			markup.WithTokenCounter(tokenCounter(logger)),
			markup.WithLogger(logger),
		)),
		graph.WithBuilderOptions(append(cfg.BuilderOptions(), graph.WithCatalog(cat), graph.WithBuilderLogger(logger))...),
		graph.WithPipelineWorkers(cfg.Workers),
		graph.WithPipelineLogger(logger),
	)

	res := pipeline.Run(ctx, documents)
	logSummary(logger, res)

	if *enhancedDir != "" {
		if err := storage.WriteEnhancedDocuments(*enhancedDir, res.Enhanced); err != nil {
			logger.Fatalf("Failed to write enhanced documents: %v", err)
		}
		logger.Infof("Enhanced documents written to %s", *enhancedDir)
	}

	graphStore := storage.NewJSONGraphStore(*outputFile)
	if err := graphStore.StoreGraph(ctx, res.Graph); err != nil {
		logger.Fatalf("Failed to store knowledge graph: %v", err)
	}
	logger.Infof("Knowledge graph generated with %d nodes and %d edges", len(res.Graph.Nodes), len(res.Graph.Edges))
	logger.Infof("Knowledge graph saved to %s", graphStore.Path())

	if *exportNeo4j {
		if err := exportToNeo4j(ctx, cfg, res.Graph); err != nil {
			logger.Errorf("Failed to export to Neo4j: %v", err)
		} else {
			logger.Infof("Knowledge graph exported to %s", cfg.Neo4j.URI)
		}
	}

	if *visualize {
		viz := visualizer.NewD3Visualizer(*visualizeOutput)
		if err := viz.Visualize(res.Graph); err != nil {
			logger.Errorf("Failed to visualize knowledge graph: %v", err)
		} else {
			logger.Infof("Visualization saved to %s", *visualizeOutput)
		}
	}

	metrics.UpdateSystemMetrics()
}

func tokenCounter(logger *logrus.Logger) markup.TokenCounter {
	counter, err := markup.NewTiktokenCounter("")
	if err != nil {
		logger.WithError(err).Warn("Tokenizer unavailable, counting words instead")
		return markup.WordCounter{}
	}
	return counter
}

func logSummary(logger *logrus.Logger, res graph.Result) {
	summary := res.Batch.Summary
	logger.WithFields(logrus.Fields{
		"documents":      summary.Documents,
		"entities":       summary.Entities,
		"fallback_calls": summary.FallbackCalls,
		"degraded":       len(summary.Degraded),
		"duplicates":     res.Report.Duplicates,
		"skipped":        res.Report.Skipped,
	}).Info("Batch processed")

	ids := make([]string, 0, len(summary.Degraded))
	for id := range summary.Degraded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		logger.WithField("doc_id", id).Warnf("Degraded extraction: %v", summary.Degraded[id])
	}
	for _, reason := range res.Report.Reasons {
		logger.Warnf("Skipped pair: %s", reason)
	}
}

func exportToNeo4j(ctx context.Context, cfg *config.Config, g *graph.KnowledgeGraphData) error {
	store, err := storage.NewNeo4jStorage(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Connect(ctx); err != nil {
		return err
	}
	return store.StoreGraph(ctx, g)
}

// readInputFiles lists every file under inputDir that has a loader.
func readInputFiles(inputDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if _, ok := processors.LoaderFor(path); ok {
				files = append(files, path)
			}
		}
		return nil
	})

	return files, err
}
