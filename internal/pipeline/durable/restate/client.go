// Package restate implements a durable pipeline.WorkerEngine binding:
// the same four StageWorker.HandleOnce handlers run as handlers of one
// Restate service instead of queue.Broker.Consume loops, grounded on the
// teacher's internal/workflow/providers/restate package.
package restate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/config"
)

// errAdminAPINotSupported marks a registration call the admin API
// rejected as unknown rather than failed, so Register can treat it as a
// soft no-op instead of a startup-blocking error.
var errAdminAPINotSupported = errors.New("restate admin api does not support this operation")

// adminClient is a narrow binding to the Restate admin API: just enough
// to register this process's deployment URI so the Restate server starts
// invoking our handlers.
type adminClient struct {
	adminEndpoint string
	authType      string
	apiKey        string
	httpClient    *http.Client
	logger        *zap.Logger
}

func newAdminClient(cfg config.RestateConfig, logger *zap.Logger) *adminClient {
	return &adminClient{
		adminEndpoint: cfg.AdminEndpoint,
		authType:      cfg.AuthType,
		apiKey:        cfg.APIKey,
		httpClient:    &http.Client{},
		logger:        logger.With(zap.String("component", "restate-admin-client")),
	}
}

type registerDeploymentRequest struct {
	URI string `json:"uri"`
}

// registerDeployment announces this process's advertised address to the
// Restate admin API so it starts routing invocations to it.
func (c *adminClient) registerDeployment(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("deployment uri is required")
	}

	payload, err := json.Marshal(registerDeploymentRequest{URI: uri})
	if err != nil {
		return fmt.Errorf("encode deployment payload: %w", err)
	}

	url := fmt.Sprintf("%s/deployments", c.adminEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create deployment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.addAuthHeader(req); err != nil {
		return fmt.Errorf("add auth header: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("register deployment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		bodyText := strings.ToLower(string(body))
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
			return fmt.Errorf("%w: %s", errAdminAPINotSupported, strings.TrimSpace(bodyText))
		}
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info("deployment registered", zap.String("uri", uri))
	return nil
}

func (c *adminClient) addAuthHeader(req *http.Request) error {
	switch c.authType {
	case "api_key":
		if c.apiKey == "" {
			return fmt.Errorf("api_key authentication configured but no api key provided")
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	case "", "none":
	default:
		return fmt.Errorf("unknown auth type: %s", c.authType)
	}
	return nil
}
