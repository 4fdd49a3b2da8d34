package postgres

import (
	"context"
	"fmt"
	"irouter/internal/logger"
	"irouter/internal/repository/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// SaveChatLog appends one exchange to the chat log
func (p *PostgresDB) SaveChatLog(ctx context.Context, log db.ChatLog) error {
	query := `
	INSERT INTO chat_logs (
		id, email, session_id, regenerate, title, prompt, response, timestamp,
		input_token, output_token, output_time, chat_type, file_urls, model, points, count
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	c := log.Chat
	_, err := p.conn.ExecContext(ctx, query,
		uuid.New().String(), log.Email, log.SessionID, log.ReGenerate, log.Title,
		c.Prompt, c.Response, c.Timestamp, c.InputToken, c.OutputToken, c.OutputTime,
		c.ChatType, pq.Array(c.FileURLs), c.Model, c.Points, c.Count,
	)
	if err != nil {
		return fmt.Errorf("error saving chat log: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"session_id": log.SessionID, "model": c.Model}).Debug("Saved chat log")
	return nil
}

// SaveUsageLog stores one billing record
func (p *PostgresDB) SaveUsageLog(ctx context.Context, log db.UsageLog) error {
	query := `
	INSERT INTO usage_logs (
		id, date, user_id, model_id, plan_id, input_tokens, output_tokens, total_tokens, points_usage
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	t := log.Stats.TokenUsage
	_, err := p.conn.ExecContext(ctx, query,
		uuid.New().String(), log.Date, log.UserID, log.ModelID, log.PlanID,
		t.Input, t.Output, t.Total, log.Stats.PointsUsage,
	)
	if err != nil {
		return fmt.Errorf("error saving usage log: %w", err)
	}

	return nil
}

// GetChatHistory returns the prior exchanges of a session, oldest first
func (p *PostgresDB) GetChatHistory(ctx context.Context, email, sessionID string) ([]db.ChatTurn, error) {
	query := `
	SELECT prompt, response, timestamp, input_token, output_token, points, model, file_urls
	FROM chat_logs
	WHERE email = $1 AND session_id = $2
	ORDER BY timestamp ASC
	`

	rows, err := p.conn.QueryContext(ctx, query, email, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error querying chat history: %w", err)
	}
	defer rows.Close()

	var turns []db.ChatTurn
	for rows.Next() {
		var turn db.ChatTurn
		if err := rows.Scan(&turn.Prompt, &turn.Response, &turn.Timestamp, &turn.InputToken,
			&turn.OutputToken, &turn.Points, &turn.Model, pq.Array(&turn.FileURLs)); err != nil {
			return nil, fmt.Errorf("error scanning chat turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat history: %w", err)
	}

	return turns, nil
}
