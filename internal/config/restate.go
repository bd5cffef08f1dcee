package config

import (
	"fmt"
	"net/url"
	"time"
)

// RestateConfig addresses the durable pipeline.WorkerEngine binding over
// restatedev/sdk-go. Only consulted when PipelineConfig.Engine == "restate".
type RestateConfig struct {
	AdminEndpoint string `mapstructure:"admin_endpoint" env:"PIPELINE_RESTATE_ADMIN_ENDPOINT" default:"http://localhost:9070"`
	ServiceName   string `mapstructure:"service_name" env:"PIPELINE_RESTATE_SERVICE_NAME" default:"orchestrator-pipeline"`
	AuthType      string `mapstructure:"auth_type" env:"PIPELINE_RESTATE_AUTH_TYPE" default:"none"`
	APIKey        string `mapstructure:"api_key" env:"PIPELINE_RESTATE_API_KEY"`

	RegisterOnStartup bool          `mapstructure:"register_on_startup" env:"PIPELINE_RESTATE_REGISTER_ON_STARTUP" default:"true"`
	AdvertisedURL     string        `mapstructure:"advertised_url" env:"PIPELINE_RESTATE_ADVERTISED_URL"`
	RetryAttempts     int           `mapstructure:"retry_attempts" env:"PIPELINE_RESTATE_RETRY_ATTEMPTS" default:"3"`
	RegisterTimeout   time.Duration `mapstructure:"register_timeout" env:"PIPELINE_RESTATE_REGISTER_TIMEOUT" default:"30s"`
}

func (r *RestateConfig) Validate() error {
	if r.AdminEndpoint == "" {
		return fmt.Errorf("admin_endpoint is required for the restate engine")
	}
	if err := validateRestateEndpointURL(r.AdminEndpoint); err != nil {
		return fmt.Errorf("invalid admin endpoint: %w", err)
	}
	if r.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if r.RegisterOnStartup && r.AdvertisedURL == "" {
		return fmt.Errorf("advertised_url is required when register_on_startup is true")
	}
	return nil
}

func validateRestateEndpointURL(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint must include host")
	}
	return nil
}
