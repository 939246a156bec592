package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athapong/fingraph/pkg/config"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/athapong/fingraph/prompts"
	"github.com/athapong/fingraph/services"
	"github.com/athapong/fingraph/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	configFile := flag.String("config", os.Getenv("FINGRAPH_CONFIG"), "Path to YAML config file")
	enableSSE := flag.Bool("sse", false, "Enable SSE server")
	sseAddr := flag.String("sse-addr", ":8080", "Address for SSE server to listen on")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for SSE endpoints")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	// stdout carries the MCP stdio protocol.
	logger.SetOutput(os.Stderr)

	ctx := context.Background()
	categorizer, err := services.NewCategorizer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure categorizer")
	}
	cat, err := services.LoadCatalog(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load catalog")
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"fingraph",
		"1.0.0",
		server.WithLogging(),
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
	)

	isEnabled := tools.EnabledFunc()
	if isEnabled("tool_manager") {
		tools.RegisterToolManagerTool(mcpServer)
	}
	svc := tools.NewService(cfg, categorize.NewEngine(cat), categorizer, logger)
	svc.Register(mcpServer, isEnabled)
	prompts.RegisterEntityReviewPrompt(mcpServer)

	logger.WithFields(logrus.Fields{
		"fallback": cfg.FallbackEnabled,
		"provider": cfg.FallbackProvider,
		"catalog":  cat.Version,
	}).Info("fingraph MCP server configured")

	// Check if SSE server should be enabled
	if *enableSSE || os.Getenv("ENABLE_SSE") == "true" {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBasePath(*sseBasePath),
			server.WithKeepAlive(true),
		)

		go func() {
			logger.Infof("Starting SSE server on %s with base path %s", *sseAddr, *sseBasePath)
			if err := sseServer.Start(*sseAddr); err != nil {
				logger.WithError(err).Fatal("Failed to start SSE server")
			}
		}()

		// Set up signal handling for graceful shutdown
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigCh
		logger.Infof("Received signal %v, shutting down...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sseServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Error during SSE server shutdown")
		}
		logger.Info("SSE server shutdown complete")
	} else {
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.WithError(err).Fatal("Server error")
		}
	}
}
