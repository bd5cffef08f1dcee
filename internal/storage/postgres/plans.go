package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeforge-run/orchestrator/internal/storage"
)

const getPlanQuery = `
SELECT id, name, display_name, price_usd, billing_interval,
       max_repos, max_prs_per_month, max_tokens_per_month, max_llm_calls_per_month,
       features, is_active, created_at, updated_at
FROM plans WHERE id = $1
`

// GetPlan is a transparent pass-through: plans carry no tenant_id and are
// never filtered (spec.md §4.3's non-multi-tenant-table case).
func (c *Client) GetPlan(ctx context.Context, id string) (*storage.Plan, error) {
	planID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse plan id: %w", err)
	}
	p := &storage.Plan{}
	var featuresJSON []byte
	err = c.q(ctx).QueryRow(ctx, getPlanQuery, planID).Scan(
		&p.ID, &p.Name, &p.DisplayName, &p.PriceUSD, &p.BillingInterval,
		&p.MaxRepos, &p.MaxPRsPerMonth, &p.MaxTokensPerMonth, &p.MaxLLMCallsPerMonth,
		&featuresJSON, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrPlanNotFound
		}
		return nil, fmt.Errorf("postgres: get plan: %w", err)
	}
	if err := unmarshalInterfaceMap(featuresJSON, &p.Features); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal plan features: %w", err)
	}
	return p, nil
}

const listActivePlansQuery = `
SELECT id, name, display_name, price_usd, billing_interval,
       max_repos, max_prs_per_month, max_tokens_per_month, max_llm_calls_per_month,
       features, is_active, created_at, updated_at
FROM plans WHERE is_active = true ORDER BY price_usd ASC
`

func (c *Client) ListActivePlans(ctx context.Context) ([]*storage.Plan, error) {
	rows, err := c.q(ctx).Query(ctx, listActivePlansQuery)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active plans: %w", err)
	}
	defer rows.Close()

	var plans []*storage.Plan
	for rows.Next() {
		p := &storage.Plan{}
		var featuresJSON []byte
		if err := rows.Scan(
			&p.ID, &p.Name, &p.DisplayName, &p.PriceUSD, &p.BillingInterval,
			&p.MaxRepos, &p.MaxPRsPerMonth, &p.MaxTokensPerMonth, &p.MaxLLMCallsPerMonth,
			&featuresJSON, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		if err := unmarshalInterfaceMap(featuresJSON, &p.Features); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal plan features: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func unmarshalInterfaceMap(data []byte, m *map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, m)
}

func jsonbOrEmpty(m map[string]interface{}) interface{} {
	if len(m) == 0 {
		return "{}"
	}
	return m
}
