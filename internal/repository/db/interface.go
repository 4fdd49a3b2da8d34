package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Database is the persistence contract used by the generation flows
type Database interface {
	// Model configuration
	GetAiConfig(ctx context.Context, modelID string) (*AiConfig, error)
	GetSystemPrompt(ctx context.Context) (string, error)

	// Accounts
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	DebitUserPoints(ctx context.Context, userID string, points float64) (*User, error)

	// Logs
	SaveChatLog(ctx context.Context, log ChatLog) error
	SaveUsageLog(ctx context.Context, log UsageLog) error
	GetChatHistory(ctx context.Context, email, sessionID string) ([]ChatTurn, error)
}

// VectorStore persists embedded chunks grouped into collections
type VectorStore interface {
	CreateCollection(ctx context.Context, collection Collection, chunks []Chunk) error
	ListCollections(ctx context.Context) ([]Collection, error)
	LatestCollection(ctx context.Context) (*Collection, error)
	DeleteCollection(ctx context.Context, id string) error
	SearchChunks(ctx context.Context, collectionID string, embedding []float32, k int) ([]ScoredChunk, error)
}
