package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/athapong/fingraph/pkg/graph/categorize"
	"github.com/athapong/fingraph/pkg/graph/markup"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Fallback providers.
const (
	ProviderNone       = "none"
	ProviderOpenAI     = "openai"
	ProviderDeepSeek   = "deepseek"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Confidence strategies.
const (
	NodeConfidenceMax     = "max"
	NodeConfidenceRecency = "recency"
	EdgeConfidenceMin     = "min"
	EdgeConfidenceAverage = "average"
)

// Config holds every tunable of the extraction pipeline.
type Config struct {
	MarkupThreshold    float64       `yaml:"markup_threshold"`
	HybridThreshold    float64       `yaml:"hybrid_threshold"`
	FallbackEnabled    bool          `yaml:"fallback_enabled"`
	FallbackProvider   string        `yaml:"fallback_provider"`
	FallbackModel      string        `yaml:"fallback_model"`
	FallbackTimeout    time.Duration `yaml:"fallback_timeout"`
	FallbackRPS        int           `yaml:"fallback_rps"`
	FallbackMaxRetries int           `yaml:"fallback_max_retries"`
	CatalogPath        string        `yaml:"catalog_path"`
	Workers            int           `yaml:"workers"`
	NodeConfidence     string        `yaml:"node_confidence"`
	EdgeConfidence     string        `yaml:"edge_confidence"`
	EdgeSourceWeight   float64       `yaml:"edge_source_weight"`
	Neo4j              Neo4jConfig   `yaml:"neo4j"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Enabled reports whether a Neo4j export target is configured.
func (n Neo4jConfig) Enabled() bool {
	return n.URI != ""
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MarkupThreshold:    markup.DefaultThreshold,
		HybridThreshold:    categorize.DefaultThreshold,
		FallbackEnabled:    false,
		FallbackProvider:   ProviderNone,
		FallbackTimeout:    categorize.DefaultTimeout,
		FallbackRPS:        categorize.DefaultRPS,
		FallbackMaxRetries: categorize.DefaultMaxRetries,
		Workers:            graph.DefaultWorkers,
		NodeConfidence:     NodeConfidenceMax,
		EdgeConfidence:     EdgeConfidenceMin,
		EdgeSourceWeight:   0.5,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads an optional env file, an optional YAML file and then the
// FINGRAPH_* environment, in that order of precedence (last wins).
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func applyEnvOverrides(cfg *Config) error {
	var errs []string
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	float("FINGRAPH_MARKUP_THRESHOLD", &cfg.MarkupThreshold)
	float("FINGRAPH_HYBRID_THRESHOLD", &cfg.HybridThreshold)
	if v := os.Getenv("FINGRAPH_FALLBACK_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("FINGRAPH_FALLBACK_ENABLED: %v", err))
		} else {
			cfg.FallbackEnabled = b
		}
	}
	str("FINGRAPH_FALLBACK_PROVIDER", &cfg.FallbackProvider)
	str("FINGRAPH_FALLBACK_MODEL", &cfg.FallbackModel)
	if v := os.Getenv("FINGRAPH_FALLBACK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("FINGRAPH_FALLBACK_TIMEOUT: %v", err))
		} else {
			cfg.FallbackTimeout = d
		}
	}
	integer("FINGRAPH_FALLBACK_RPS", &cfg.FallbackRPS)
	integer("FINGRAPH_FALLBACK_MAX_RETRIES", &cfg.FallbackMaxRetries)
	str("FINGRAPH_CATALOG_PATH", &cfg.CatalogPath)
	integer("FINGRAPH_WORKERS", &cfg.Workers)
	str("FINGRAPH_NODE_CONFIDENCE", &cfg.NodeConfidence)
	str("FINGRAPH_EDGE_CONFIDENCE", &cfg.EdgeConfidence)
	float("FINGRAPH_EDGE_SOURCE_WEIGHT", &cfg.EdgeSourceWeight)
	str("FINGRAPH_NEO4J_URI", &cfg.Neo4j.URI)
	str("FINGRAPH_NEO4J_USER", &cfg.Neo4j.User)
	str("FINGRAPH_NEO4J_PASSWORD", &cfg.Neo4j.Password)
	str("FINGRAPH_LOG_LEVEL", &cfg.LogLevel)
	str("FINGRAPH_LOG_FORMAT", &cfg.LogFormat)

	if len(errs) > 0 {
		return errors.Errorf("invalid environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be within [0, 1], got %v", name, v))
		}
	}
	unit("markup_threshold", c.MarkupThreshold)
	unit("hybrid_threshold", c.HybridThreshold)
	unit("edge_source_weight", c.EdgeSourceWeight)

	switch c.FallbackProvider {
	case ProviderNone, ProviderOpenAI, ProviderDeepSeek, ProviderOllama, ProviderOpenRouter, ProviderGemini:
	default:
		problems = append(problems, fmt.Sprintf("unknown fallback_provider %q", c.FallbackProvider))
	}
	if c.FallbackEnabled && c.FallbackProvider == ProviderNone {
		problems = append(problems, "fallback_enabled requires a fallback_provider")
	}
	if c.FallbackTimeout <= 0 {
		problems = append(problems, "fallback_timeout must be positive")
	}
	if c.FallbackRPS <= 0 {
		problems = append(problems, "fallback_rps must be positive")
	}
	if c.FallbackMaxRetries < 0 {
		problems = append(problems, "fallback_max_retries must not be negative")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.NodeConfidence != NodeConfidenceMax && c.NodeConfidence != NodeConfidenceRecency {
		problems = append(problems, fmt.Sprintf("unknown node_confidence %q", c.NodeConfidence))
	}
	if c.EdgeConfidence != EdgeConfidenceMin && c.EdgeConfidence != EdgeConfidenceAverage {
		problems = append(problems, fmt.Sprintf("unknown edge_confidence %q", c.EdgeConfidence))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewLogger builds a logger at the configured level and format.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// BuilderOptions translates the graph settings into builder options.
func (c *Config) BuilderOptions() []graph.BuilderOption {
	opts := []graph.BuilderOption{graph.WithWorkers(c.Workers)}
	if c.NodeConfidence == NodeConfidenceRecency {
		opts = append(opts, graph.WithNodeConfidence(graph.RecencyWeighted(graph.DefaultRecencyAlpha)))
	}
	if c.EdgeConfidence == EdgeConfidenceAverage {
		opts = append(opts, graph.WithEdgeConfidence(graph.WeightedAverage(c.EdgeSourceWeight)))
	}
	return opts
}
