package config

import (
	"fmt"
	"time"
)

// PipelineConfig tunes the worker pools and the rejection-loop cap.
type PipelineConfig struct {
	WorkersPerStage int `mapstructure:"workers_per_stage" env:"PIPELINE_WORKERS_PER_STAGE" default:"5"`

	// MaxReviewAttempts closes the rejection-loop-cap design note: the
	// Reviewing Worker fires REVIEW_EXHAUSTED instead of REVIEW_REJECTED
	// once a job's coding attempts counter reaches this value.
	MaxReviewAttempts int `mapstructure:"max_review_attempts" env:"PIPELINE_MAX_REVIEW_ATTEMPTS" default:"3"`

	StageTimeouts StageTimeouts `mapstructure:"stage_timeouts"`

	// DrainTimeout bounds how long Lifecycle.Stop waits for in-flight
	// handlers before forcing shutdown.
	DrainTimeout time.Duration `mapstructure:"drain_timeout" env:"PIPELINE_DRAIN_TIMEOUT" default:"30s"`

	// Engine selects the WorkerEngine binding: "inprocess" (default) or
	// "restate".
	Engine string `mapstructure:"engine" env:"PIPELINE_ENGINE" default:"inprocess"`
}

// StageTimeouts are the per-stage agent-call deadlines suggested by the
// spec (15m/30m/15m/5m).
type StageTimeouts struct {
	Planning time.Duration `mapstructure:"planning" env:"PIPELINE_TIMEOUT_PLANNING" default:"15m"`
	Coding   time.Duration `mapstructure:"coding" env:"PIPELINE_TIMEOUT_CODING" default:"30m"`
	Reviewing time.Duration `mapstructure:"reviewing" env:"PIPELINE_TIMEOUT_REVIEWING" default:"15m"`
	PROpen   time.Duration `mapstructure:"pr_open" env:"PIPELINE_TIMEOUT_PR_OPEN" default:"5m"`
}

func (p *PipelineConfig) Validate() error {
	if p.WorkersPerStage < 1 {
		return fmt.Errorf("workers_per_stage must be at least 1")
	}
	if p.MaxReviewAttempts < 1 {
		return fmt.Errorf("max_review_attempts must be at least 1")
	}
	switch p.Engine {
	case "inprocess", "restate":
	default:
		return fmt.Errorf("invalid pipeline engine: %s (supported: inprocess, restate)", p.Engine)
	}
	return nil
}

// AgentConfig selects the agent.Registry's active binding.
type AgentConfig struct {
	Provider string `mapstructure:"provider" env:"AGENT_PROVIDER" default:"mock"`
}

func (a *AgentConfig) Validate() error {
	if a.Provider == "" {
		return fmt.Errorf("agent provider must not be empty")
	}
	return nil
}

// PRCollabConfig selects the prcollab.Opener binding.
type PRCollabConfig struct {
	Provider string `mapstructure:"provider" env:"PRCOLLAB_PROVIDER" default:"mock"`
	GitHub   GitHubOpenerConfig `mapstructure:"github"`
}

// GitHubOpenerConfig configures the google/go-github-backed Opener.
type GitHubOpenerConfig struct {
	AppID          int64  `mapstructure:"app_id" env:"PRCOLLAB_GITHUB_APP_ID"`
	InstallationID int64  `mapstructure:"installation_id" env:"PRCOLLAB_GITHUB_INSTALLATION_ID"`
	PrivateKeyPath string `mapstructure:"private_key_path" env:"PRCOLLAB_GITHUB_PRIVATE_KEY_PATH"`
	BaseBranch     string `mapstructure:"base_branch" env:"PRCOLLAB_GITHUB_BASE_BRANCH" default:"main"`
}

func (p *PRCollabConfig) Validate() error {
	switch p.Provider {
	case "mock":
	case "github":
		if p.GitHub.AppID == 0 || p.GitHub.InstallationID == 0 || p.GitHub.PrivateKeyPath == "" {
			return fmt.Errorf("github pr-collaborator provider requires app_id, installation_id and private_key_path")
		}
	default:
		return fmt.Errorf("invalid pr-collaborator provider: %s (supported: mock, github)", p.Provider)
	}
	return nil
}
