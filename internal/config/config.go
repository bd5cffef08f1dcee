package config

import "fmt"

// Config aggregates every ambient and domain configuration surface.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Restate  RestateConfig  `mapstructure:"restate"`
	Agent    AgentConfig    `mapstructure:"agent"`
	PRCollab PRCollabConfig `mapstructure:"pr_collab"`
	Log      LogConfig      `mapstructure:"log"`
}

func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if c.Pipeline.Engine == "restate" {
		if err := c.Restate.Validate(); err != nil {
			return fmt.Errorf("restate config: %w", err)
		}
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}
	if err := c.PRCollab.Validate(); err != nil {
		return fmt.Errorf("pr_collab config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}
