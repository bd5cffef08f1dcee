package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// NewViperInstance creates a viper instance pre-seeded with every default
// matching the Config struct's `default` tags.
func NewViperInstance() *viper.Viper {
	v := viper.New()

	v.SetDefault("database.provider", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.sqlite.path", "orchestrator.db")
	v.SetDefault("database.sqlite.busy_timeout", "5s")

	v.SetDefault("queue.provider", "inprocess")
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.base_backoff", "2s")
	v.SetDefault("queue.max_backoff", "5m")
	v.SetDefault("queue.rate_limit_per_sec", 10)
	v.SetDefault("queue.concurrency_per_queue", 5)
	v.SetDefault("queue.completed_retention", "24h")
	v.SetDefault("queue.failed_retention", "168h")
	v.SetDefault("queue.sqs.region", "us-west-2")
	v.SetDefault("queue.sqs.visibility_timeout", "30s")

	v.SetDefault("pipeline.workers_per_stage", 5)
	v.SetDefault("pipeline.max_review_attempts", 3)
	v.SetDefault("pipeline.stage_timeouts.planning", "15m")
	v.SetDefault("pipeline.stage_timeouts.coding", "30m")
	v.SetDefault("pipeline.stage_timeouts.reviewing", "15m")
	v.SetDefault("pipeline.stage_timeouts.pr_open", "5m")
	v.SetDefault("pipeline.drain_timeout", "30s")
	v.SetDefault("pipeline.engine", "inprocess")

	v.SetDefault("restate.admin_endpoint", "http://localhost:9070")
	v.SetDefault("restate.service_name", "orchestrator-pipeline")
	v.SetDefault("restate.auth_type", "none")
	v.SetDefault("restate.register_on_startup", true)
	v.SetDefault("restate.retry_attempts", 3)
	v.SetDefault("restate.register_timeout", "30s")

	v.SetDefault("agent.provider", "mock")

	v.SetDefault("pr_collab.provider", "mock")
	v.SetDefault("pr_collab.github.base_branch", "main")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "development")

	return v
}

// BindEnvironmentVariables binds every env-tagged field to its viper key.
func BindEnvironmentVariables(v *viper.Viper) error {
	bindings := map[string]string{
		"database.provider":            "DB_PROVIDER",
		"database.host":                "DB_HOST",
		"database.port":                "DB_PORT",
		"database.user":                "DB_USER",
		"database.password":            "DB_PASSWORD",
		"database.database":            "DB_DATABASE",
		"database.ssl_mode":            "DB_SSLMODE",
		"database.max_connections":     "DB_MAX_CONNECTIONS",
		"database.min_connections":     "DB_MIN_CONNECTIONS",
		"database.connect_timeout":     "DB_CONNECT_TIMEOUT",
		"database.max_conn_lifetime":   "DB_MAX_CONN_LIFETIME",
		"database.max_conn_idle_time":  "DB_MAX_CONN_IDLE_TIME",
		"database.sqlite.path":         "DB_SQLITE_PATH",
		"database.sqlite.busy_timeout": "DB_SQLITE_BUSY_TIMEOUT",
		"database.sqlite.pragmas":      "DB_SQLITE_PRAGMAS",

		"queue.provider":              "QUEUE_PROVIDER",
		"queue.max_retries":           "QUEUE_MAX_RETRIES",
		"queue.base_backoff":          "QUEUE_BASE_BACKOFF",
		"queue.max_backoff":           "QUEUE_MAX_BACKOFF",
		"queue.rate_limit_per_sec":    "QUEUE_RATE_LIMIT_PER_SEC",
		"queue.concurrency_per_queue": "QUEUE_CONCURRENCY_PER_QUEUE",
		"queue.sqs.region":            "QUEUE_SQS_REGION",
		"queue.sqs.visibility_timeout": "QUEUE_SQS_VISIBILITY_TIMEOUT",
		"queue.completed_retention":   "QUEUE_COMPLETED_RETENTION",
		"queue.failed_retention":      "QUEUE_FAILED_RETENTION",

		"pipeline.workers_per_stage":    "PIPELINE_WORKERS_PER_STAGE",
		"pipeline.max_review_attempts":  "PIPELINE_MAX_REVIEW_ATTEMPTS",
		"pipeline.stage_timeouts.planning":  "PIPELINE_TIMEOUT_PLANNING",
		"pipeline.stage_timeouts.coding":    "PIPELINE_TIMEOUT_CODING",
		"pipeline.stage_timeouts.reviewing": "PIPELINE_TIMEOUT_REVIEWING",
		"pipeline.stage_timeouts.pr_open":   "PIPELINE_TIMEOUT_PR_OPEN",
		"pipeline.drain_timeout":        "PIPELINE_DRAIN_TIMEOUT",
		"pipeline.engine":               "PIPELINE_ENGINE",

		"restate.admin_endpoint":      "PIPELINE_RESTATE_ADMIN_ENDPOINT",
		"restate.service_name":        "PIPELINE_RESTATE_SERVICE_NAME",
		"restate.auth_type":           "PIPELINE_RESTATE_AUTH_TYPE",
		"restate.api_key":             "PIPELINE_RESTATE_API_KEY",
		"restate.register_on_startup": "PIPELINE_RESTATE_REGISTER_ON_STARTUP",
		"restate.advertised_url":      "PIPELINE_RESTATE_ADVERTISED_URL",
		"restate.retry_attempts":      "PIPELINE_RESTATE_RETRY_ATTEMPTS",
		"restate.register_timeout":    "PIPELINE_RESTATE_REGISTER_TIMEOUT",

		"agent.provider": "AGENT_PROVIDER",

		"pr_collab.provider":                  "PRCOLLAB_PROVIDER",
		"pr_collab.github.app_id":             "PRCOLLAB_GITHUB_APP_ID",
		"pr_collab.github.installation_id":    "PRCOLLAB_GITHUB_INSTALLATION_ID",
		"pr_collab.github.private_key_path":   "PRCOLLAB_GITHUB_PRIVATE_KEY_PATH",
		"pr_collab.github.base_branch":        "PRCOLLAB_GITHUB_BASE_BRANCH",

		"log.level":  "LOG_LEVEL",
		"log.format": "LOG_FORMAT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// FindConfigFile resolves a config file by precedence: explicit path,
// ORCHESTRATOR_CONFIG env var, then standard locations.
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", configPath)
		}
		return configPath, nil
	}

	if envPath := os.Getenv("ORCHESTRATOR_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	locations := []string{".", "/etc/orchestrator"}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		locations = append(locations, filepath.Join(xdg, "orchestrator"))
	}
	for _, loc := range locations {
		for _, ext := range []string{"yaml", "json"} {
			path := filepath.Join(loc, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", nil
}

// LoadConfigFile reads filePath (YAML or JSON) into v.
func LoadConfigFile(v *viper.Viper, filePath string) error {
	if filePath == "" {
		return nil
	}
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		return fmt.Errorf("unsupported config file type: %s", filePath)
	}
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", filePath, err)
	}
	return nil
}

// LoadFromViper unmarshals and validates a Config from v.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}
