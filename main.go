// An MCP server implementation for the Definite API that enables AI agents
// to run SQL and Cube queries against Definite data integrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/acrmp/mcp"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
)

func main() {
	cfg, err := setupConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logStartup(cfg)

	tools, err := createTools(cfg)
	if err != nil {
		log.Fatalf("create tools: %v", err)
	}

	info := mcp.Implementation{
		Name:    "definite-mcp",
		Version: Version,
	}

	s := mcp.NewServer(info, tools)
	s.Serve()
}

// Version information
var (
	Version   = "dev"     // Set by goreleaser
	CommitSHA = "unknown" // Set by goreleaser
	BuildTime = "unknown" // Set by goreleaser
)

// defaultBaseURL is the production Definite API endpoint. Non-production
// endpoints require explicitly setting DEFINITE_API_BASE_URL.
const defaultBaseURL = "https://api.definite.app/v1"

// config holds the server configuration parameters
type config struct {
	// Definite connection settings
	apiKey               string // API key for bearer authentication
	baseURL              string // API base URL
	defaultIntegrationID string // Fallback integration for SQL queries

	// Request behaviour
	queryTimeout time.Duration // Per-request timeout for outbound API calls

	// Rate limiting configuration passed to the MCP runtime
	queryRateLimit float64 // Maximum queries per second
	queryRateBurst int     // Maximum burst capacity for queries
}

// setupConfig initializes and parses the configuration
func setupConfig() (config, error) {
	// Load a .env file when present, for local development. When launched by
	// an MCP host the environment is passed via its server configuration.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("definite-mcp", flag.ExitOnError)

	var cfg config
	fs.StringVar(&cfg.apiKey, "api-key", "", "Definite API key")
	fs.StringVar(&cfg.baseURL, "api-base-url", defaultBaseURL, "Definite API base URL")
	fs.StringVar(&cfg.defaultIntegrationID, "default-integration-id", "", "Integration ID used for SQL queries when none is given")
	fs.DurationVar(&cfg.queryTimeout, "query-timeout", 30*time.Second, "Timeout for a single API request")
	fs.Float64Var(&cfg.queryRateLimit, "query-rate", 1, "Queries per second limit")
	fs.IntVar(&cfg.queryRateBurst, "query-burst", 1, "Query burst capacity")

	var configFile string
	fs.StringVar(&configFile, "config", "", "config file path")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("DEFINITE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.apiKey == "" {
		return cfg, errors.New("Definite API key must be provided via -api-key flag, DEFINITE_API_KEY env var, or config file")
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	if cfg.baseURL == "" {
		return cfg, errors.New("Definite API base URL must not be empty")
	}

	return cfg, nil
}

// logStartup reports the effective configuration on stderr so that MCP host
// logs show which endpoint is in use. The key itself is never logged.
func logStartup(cfg config) {
	slog.Info("definite-mcp starting",
		"base_url", cfg.baseURL,
		"api_key_configured", cfg.apiKey != "",
		"default_integration_configured", cfg.defaultIntegrationID != "",
		"query_timeout", cfg.queryTimeout,
	)
}
