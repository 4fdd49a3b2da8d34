package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"irouter/internal/repository/db"
)

// GetAiConfig retrieves the configuration of a logical model
func (p *PostgresDB) GetAiConfig(ctx context.Context, modelID string) (*db.AiConfig, error) {
	var cfg db.AiConfig
	query := `
	SELECT id, provider, model, input_cost, output_cost, multiplier, image_support
	FROM ai_configs
	WHERE id = $1
	`

	err := p.conn.QueryRowContext(ctx, query, modelID).Scan(
		&cfg.ID, &cfg.Provider, &cfg.Model, &cfg.InputCost, &cfg.OutputCost, &cfg.Multiplier, &cfg.ImageSupport,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving ai config: %w", err)
	}

	return &cfg, nil
}

// GetSystemPrompt returns the most recent stored system prompt, or "" when none exists
func (p *PostgresDB) GetSystemPrompt(ctx context.Context) (string, error) {
	var content string
	query := `SELECT content FROM system_prompts ORDER BY created_at DESC LIMIT 1`

	err := p.conn.QueryRowContext(ctx, query).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("error retrieving system prompt: %w", err)
	}

	return content, nil
}
