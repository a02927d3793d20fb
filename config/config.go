package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreBackendHTTP     = "http"
	StoreBackendPostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Stores        StoresConfig
	Koji          KojiConfig
	Policies      PoliciesConfig
	Decision      DecisionConfig
	Cache         CacheConfig
	Listener      ListenerConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// StoresConfig selects where results and waivers are read from
type StoresConfig struct {
	Backend         string // http or postgres
	ResultsDBURL    string
	WaiverDBURL     string
	RequestsTimeout time.Duration
	RetryMaxElapsed time.Duration

	// Only used by the postgres backend
	ResultsDatabase DatabaseConfig
	WaiversDatabase DatabaseConfig
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// KojiConfig holds the Koji hub location
type KojiConfig struct {
	BaseURL string
}

// PoliciesConfig holds the locations of policy and subject type documents
type PoliciesConfig struct {
	PoliciesDir     string
	SubjectTypesDir string
}

// DecisionConfig holds the evaluation options
type DecisionConfig struct {
	OutcomesPassed          []string
	OutcomesError           []string
	OutcomesIncomplete      []string
	DistinctLatestResultsOn []string
	IncompleteResultsBlock  bool

	// RemoteRulePolicies maps a subject type, or "*", to remote rule URL
	// templates
	RemoteRulePolicies   map[string][]string
	DistGitURLTemplate   string
	RemoteRuleGitTimeout time.Duration
}

// CacheConfig holds the external cache configuration
type CacheConfig struct {
	Backend       string // memory, redis or none
	TTL           time.Duration
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ListenerConfig holds the message listener configuration
type ListenerConfig struct {
	Enabled                   bool
	JWTSecret                 string
	DecisionUpdateDestination string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	return Load(ctx, ".env")
}

// Load creates a Config, reading envFile first if it exists
func Load(ctx context.Context, envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	remoteRulePolicies, err := parseRemoteRulePolicies(getEnv("REMOTE_RULE_POLICIES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid REMOTE_RULE_POLICIES: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Stores: StoresConfig{
			Backend:         getEnv("STORE_BACKEND", StoreBackendHTTP),
			ResultsDBURL:    getEnv("RESULTSDB_API_URL", "http://localhost:5001/api/v2.0"),
			WaiverDBURL:     getEnv("WAIVERDB_API_URL", "http://localhost:5004/api/v1.0"),
			RequestsTimeout: getEnvAsDuration("REQUESTS_TIMEOUT", 60*time.Second),
			RetryMaxElapsed: getEnvAsDuration("RETRY_MAX_ELAPSED", 30*time.Second),
			ResultsDatabase: loadDatabaseConfig("RESULTSDB_DATABASE_URL"),
			WaiversDatabase: loadDatabaseConfig("WAIVERDB_DATABASE_URL"),
		},
		Koji: KojiConfig{
			BaseURL: getEnv("KOJI_BASE_URL", "https://koji.fedoraproject.org/kojihub"),
		},
		Policies: PoliciesConfig{
			PoliciesDir:     getEnv("POLICIES_DIR", "/etc/greenwave/policies"),
			SubjectTypesDir: getEnv("SUBJECT_TYPES_DIR", "/etc/greenwave/subject_types"),
		},
		Decision: DecisionConfig{
			OutcomesPassed:          getEnvAsList("OUTCOMES_PASSED", []string{"PASSED", "INFO"}),
			OutcomesError:           getEnvAsList("OUTCOMES_ERROR", []string{"ERROR"}),
			OutcomesIncomplete:      getEnvAsList("OUTCOMES_INCOMPLETE", []string{"QUEUED", "RUNNING"}),
			DistinctLatestResultsOn: getEnvAsList("DISTINCT_LATEST_RESULTS_ON", []string{"scenario", "system_architecture", "system_variant"}),
			IncompleteResultsBlock:  getEnvAsBool("INCOMPLETE_RESULTS_BLOCK", false),
			RemoteRulePolicies:      remoteRulePolicies,
			DistGitURLTemplate:      getEnv("DIST_GIT_URL_TEMPLATE", ""),
			RemoteRuleGitTimeout:    getEnvAsDuration("REMOTE_RULE_GIT_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			TTL:           getEnvAsDuration("CACHE_TTL", time.Hour),
			MaxEntries:    getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Listener: ListenerConfig{
			Enabled:                   getEnvAsBool("LISTENER_ENABLED", false),
			JWTSecret:                 getEnv("LISTENER_JWT_SECRET", ""),
			DecisionUpdateDestination: getEnv("LISTENER_DECISION_UPDATE_DESTINATION", "greenwave.decision.update"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Stores.Backend {
	case StoreBackendHTTP:
		if c.Stores.ResultsDBURL == "" {
			return fmt.Errorf("RESULTSDB_API_URL is required")
		}
		if c.Stores.WaiverDBURL == "" {
			return fmt.Errorf("WAIVERDB_API_URL is required")
		}
	case StoreBackendPostgres:
		if c.Stores.ResultsDatabase.ConnectionString == "" {
			return fmt.Errorf("RESULTSDB_DATABASE_URL is required for the postgres store backend")
		}
		if c.Stores.WaiversDatabase.ConnectionString == "" {
			return fmt.Errorf("WAIVERDB_DATABASE_URL is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Stores.Backend)
	}

	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
	}

	if len(c.Decision.OutcomesPassed) == 0 {
		return fmt.Errorf("OUTCOMES_PASSED must not be empty")
	}

	// Listener webhooks must be authenticated in production
	if c.IsProduction() && c.Listener.Enabled && c.Listener.JWTSecret == "" {
		return fmt.Errorf("listener JWT secret is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from connection string>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

func loadDatabaseConfig(urlKey string) DatabaseConfig {
	return DatabaseConfig{
		ConnectionString: getEnv(urlKey, ""),
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// parseRemoteRulePolicies reads a YAML (or JSON) mapping of subject type to
// a URL template or a list of templates
func parseRemoteRulePolicies(value string) (map[string][]string, error) {
	policies := make(map[string][]string)
	if strings.TrimSpace(value) == "" {
		return policies, nil
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(value), &raw); err != nil {
		return nil, err
	}
	for subjectType, v := range raw {
		switch templates := v.(type) {
		case string:
			policies[subjectType] = []string{templates}
		case []interface{}:
			for _, t := range templates {
				s, ok := t.(string)
				if !ok {
					return nil, fmt.Errorf("template for %q must be a string", subjectType)
				}
				policies[subjectType] = append(policies[subjectType], s)
			}
		default:
			return nil, fmt.Errorf("templates for %q must be a string or a list", subjectType)
		}
	}
	return policies, nil
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 5005)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 5005
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
