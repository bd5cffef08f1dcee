package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codeforge-run/orchestrator/internal/storage"
)

type planRow struct {
	ID                  string `db:"id"`
	Name                string `db:"name"`
	DisplayName         string `db:"display_name"`
	PriceUSD            int64  `db:"price_usd"`
	BillingInterval     string `db:"billing_interval"`
	MaxRepos            int    `db:"max_repos"`
	MaxPRsPerMonth      int    `db:"max_prs_per_month"`
	MaxTokensPerMonth   int64  `db:"max_tokens_per_month"`
	MaxLLMCallsPerMonth int64  `db:"max_llm_calls_per_month"`
	Features            string `db:"features"`
	IsActive            bool   `db:"is_active"`
	CreatedAt           string `db:"created_at"`
	UpdatedAt           string `db:"updated_at"`
}

const getPlanQuery = `
SELECT id, name, display_name, price_usd, billing_interval,
       max_repos, max_prs_per_month, max_tokens_per_month, max_llm_calls_per_month,
       features, is_active, created_at, updated_at
FROM plans WHERE id = ?
`

// GetPlan is a transparent pass-through: plans carry no tenant_id and are
// never filtered.
func (c *Client) GetPlan(ctx context.Context, id string) (*storage.Plan, error) {
	var row planRow
	if err := c.q(ctx).QueryRowxContext(ctx, getPlanQuery, id).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPlanNotFound
		}
		return nil, fmt.Errorf("sqlite: get plan: %w", err)
	}
	return rowToPlan(row)
}

const listActivePlansQuery = `
SELECT id, name, display_name, price_usd, billing_interval,
       max_repos, max_prs_per_month, max_tokens_per_month, max_llm_calls_per_month,
       features, is_active, created_at, updated_at
FROM plans WHERE is_active = 1 ORDER BY price_usd ASC
`

func (c *Client) ListActivePlans(ctx context.Context) ([]*storage.Plan, error) {
	rows, err := c.q(ctx).QueryxContext(ctx, listActivePlansQuery)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active plans: %w", err)
	}
	defer rows.Close()

	var plans []*storage.Plan
	for rows.Next() {
		var row planRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("sqlite: scan plan: %w", err)
		}
		p, err := rowToPlan(row)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func rowToPlan(row planRow) (*storage.Plan, error) {
	p := &storage.Plan{
		Name:                row.Name,
		DisplayName:         row.DisplayName,
		PriceUSD:            row.PriceUSD,
		BillingInterval:     row.BillingInterval,
		MaxRepos:            row.MaxRepos,
		MaxPRsPerMonth:      row.MaxPRsPerMonth,
		MaxTokensPerMonth:   row.MaxTokensPerMonth,
		MaxLLMCallsPerMonth: row.MaxLLMCallsPerMonth,
		IsActive:            row.IsActive,
	}
	if err := parseUUID(row.ID, &p.ID); err != nil {
		return nil, err
	}
	if err := unmarshalInterfaceMap(row.Features, &p.Features); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal plan features: %w", err)
	}
	if err := parseTimestamp(row.CreatedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.UpdatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalInterfaceMap(data string, m *map[string]interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), m)
}

func jsonOrEmpty(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}
