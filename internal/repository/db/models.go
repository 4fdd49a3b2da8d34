package db

import "time"

// AiConfig describes a logical model: which vendor serves it and how it is billed
type AiConfig struct {
	ID           string
	Provider     string
	Model        string
	InputCost    float64
	OutputCost   float64
	Multiplier   float64
	ImageSupport bool
}

// User is the point-holding account document
type User struct {
	ID              string
	Email           string
	AvailablePoints float64
	PointsUsed      float64
	CurrentPlan     string
}

// ChatTurn is one prior prompt/response pair of a session
type ChatTurn struct {
	Prompt      string
	Response    string
	Timestamp   time.Time
	InputToken  int
	OutputToken int
	Points      float64
	Model       string
	FileURLs    []string
}

// ChatEntry is the per-exchange payload of a chat log
type ChatEntry struct {
	Prompt      string
	Response    string
	Timestamp   time.Time
	InputToken  int
	OutputToken int
	OutputTime  float64
	ChatType    int
	FileURLs    []string
	Model       string
	Points      float64
	Count       int
}

// ChatLog is the persisted record of one exchange
type ChatLog struct {
	Email      string
	SessionID  string
	ReGenerate bool
	Title      string
	Chat       ChatEntry
}

// TokenStats holds token counts of one usage record
type TokenStats struct {
	Input  int
	Output int
	Total  int
}

// UsageStats groups token and point usage
type UsageStats struct {
	TokenUsage  TokenStats
	PointsUsage float64
}

// UsageLog is the per-request billing record
type UsageLog struct {
	Date    time.Time
	UserID  string
	ModelID string
	PlanID  string
	Stats   UsageStats
}

// Collection is a named group of embedded document chunks
type Collection struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Chunk is one embedded piece of a document
type Chunk struct {
	ID           string
	CollectionID string
	Content      string
	Source       string
	Embedding    []float32
}

// ScoredChunk is a search hit with its cosine distance
type ScoredChunk struct {
	Chunk
	Distance float64
}
