package testutil

import (
	"context"
	"errors"
	"io"
	"irouter/internal/app"
	"irouter/internal/config"
	"irouter/internal/repository/db"
	"irouter/internal/service/llm"
	"irouter/internal/service/storage"
	"sync"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	GetAiConfigFunc     func(ctx context.Context, modelID string) (*db.AiConfig, error)
	GetSystemPromptFunc func(ctx context.Context) (string, error)
	GetUserByEmailFunc  func(ctx context.Context, email string) (*db.User, error)
	DebitUserPointsFunc func(ctx context.Context, userID string, points float64) (*db.User, error)
	SaveChatLogFunc     func(ctx context.Context, log db.ChatLog) error
	SaveUsageLogFunc    func(ctx context.Context, log db.UsageLog) error
	GetChatHistoryFunc  func(ctx context.Context, email, sessionID string) ([]db.ChatTurn, error)
}

func (m *MockDatabase) GetAiConfig(ctx context.Context, modelID string) (*db.AiConfig, error) {
	if m.GetAiConfigFunc != nil {
		return m.GetAiConfigFunc(ctx, modelID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetSystemPrompt(ctx context.Context) (string, error) {
	if m.GetSystemPromptFunc != nil {
		return m.GetSystemPromptFunc(ctx)
	}
	return "", errors.New("not implemented")
}

func (m *MockDatabase) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DebitUserPoints(ctx context.Context, userID string, points float64) (*db.User, error) {
	if m.DebitUserPointsFunc != nil {
		return m.DebitUserPointsFunc(ctx, userID, points)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) SaveChatLog(ctx context.Context, log db.ChatLog) error {
	if m.SaveChatLogFunc != nil {
		return m.SaveChatLogFunc(ctx, log)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) SaveUsageLog(ctx context.Context, log db.UsageLog) error {
	if m.SaveUsageLogFunc != nil {
		return m.SaveUsageLogFunc(ctx, log)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) GetChatHistory(ctx context.Context, email, sessionID string) ([]db.ChatTurn, error) {
	if m.GetChatHistoryFunc != nil {
		return m.GetChatHistoryFunc(ctx, email, sessionID)
	}
	return nil, errors.New("not implemented")
}

// MockVectorStore is a mock implementation of db.VectorStore for testing
type MockVectorStore struct {
	CreateCollectionFunc func(ctx context.Context, collection db.Collection, chunks []db.Chunk) error
	ListCollectionsFunc  func(ctx context.Context) ([]db.Collection, error)
	LatestCollectionFunc func(ctx context.Context) (*db.Collection, error)
	DeleteCollectionFunc func(ctx context.Context, id string) error
	SearchChunksFunc     func(ctx context.Context, collectionID string, embedding []float32, k int) ([]db.ScoredChunk, error)
}

func (m *MockVectorStore) CreateCollection(ctx context.Context, collection db.Collection, chunks []db.Chunk) error {
	if m.CreateCollectionFunc != nil {
		return m.CreateCollectionFunc(ctx, collection, chunks)
	}
	return errors.New("not implemented")
}

func (m *MockVectorStore) ListCollections(ctx context.Context) ([]db.Collection, error) {
	if m.ListCollectionsFunc != nil {
		return m.ListCollectionsFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *MockVectorStore) LatestCollection(ctx context.Context) (*db.Collection, error) {
	if m.LatestCollectionFunc != nil {
		return m.LatestCollectionFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *MockVectorStore) DeleteCollection(ctx context.Context, id string) error {
	if m.DeleteCollectionFunc != nil {
		return m.DeleteCollectionFunc(ctx, id)
	}
	return errors.New("not implemented")
}

func (m *MockVectorStore) SearchChunks(ctx context.Context, collectionID string, embedding []float32, k int) ([]db.ScoredChunk, error) {
	if m.SearchChunksFunc != nil {
		return m.SearchChunksFunc(ctx, collectionID, embedding, k)
	}
	return nil, errors.New("not implemented")
}

// MockChatClient is a mock implementation of llm.ChatClient for testing.
// It records the messages of every call.
type MockChatClient struct {
	SettingsValue llm.ClientSettings
	GenerateFunc  func(ctx context.Context, messages []llm.Message) (string, error)
	StreamFunc    func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error)

	mu    sync.Mutex
	calls [][]llm.Message
}

func (m *MockChatClient) Settings() llm.ClientSettings {
	return m.SettingsValue
}

func (m *MockChatClient) record(messages []llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
}

// Calls returns the message lists the client was invoked with
func (m *MockChatClient) Calls() [][]llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llm.Message(nil), m.calls...)
}

func (m *MockChatClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	m.record(messages)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages)
	}
	return "", errors.New("not implemented")
}

func (m *MockChatClient) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	m.record(messages)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages)
	}
	return nil, errors.New("not implemented")
}

// StreamOf returns a StreamFunc that emits the given fragments in order
func StreamOf(fragments ...string) func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	return func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
		ch := make(chan llm.StreamChunk, len(fragments))
		for _, f := range fragments {
			ch <- llm.StreamChunk{Content: f}
		}
		close(ch)
		return ch, nil
	}
}

// MockSelector is a mock implementation of llm.Selector for testing
type MockSelector struct {
	SelectFunc func(provider, model string, streaming bool) llm.ChatClient
	Client     llm.ChatClient
}

func (m *MockSelector) Select(provider, model string, streaming bool) llm.ChatClient {
	if m.SelectFunc != nil {
		return m.SelectFunc(provider, model, streaming)
	}
	return m.Client
}

// MockMedia is a mock image and speech generator for testing
type MockMedia struct {
	GenerateImageFunc    func(ctx context.Context, prompt string) (*llm.GeneratedImage, error)
	SynthesizeSpeechFunc func(ctx context.Context, text string) (io.ReadCloser, error)
}

func (m *MockMedia) GenerateImage(ctx context.Context, prompt string) (*llm.GeneratedImage, error) {
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, prompt)
	}
	return nil, errors.New("not implemented")
}

func (m *MockMedia) SynthesizeSpeech(ctx context.Context, text string) (io.ReadCloser, error) {
	if m.SynthesizeSpeechFunc != nil {
		return m.SynthesizeSpeechFunc(ctx, text)
	}
	return nil, errors.New("not implemented")
}

// MockEmbedder is a mock embedding client for testing
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	return nil, errors.New("not implemented")
}

// MockObjectStore is a mock object storage for testing
type MockObjectStore struct {
	UploadFileFunc func(ctx context.Context, localPath, key string, opts storage.UploadOptions) error
	BaseURL        string
}

func (m *MockObjectStore) UploadFile(ctx context.Context, localPath, key string, opts storage.UploadOptions) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, localPath, key, opts)
	}
	return errors.New("not implemented")
}

func (m *MockObjectStore) URL(key string) string {
	return m.BaseURL + "/" + key
}

// MockFileProcessor is a mock file processor for testing
type MockFileProcessor struct {
	IdentifyFilesFunc func(refs []string) ([]string, []string)
	ProcessFilesFunc  func(ctx context.Context, refs []string) (string, error)
}

func (m *MockFileProcessor) IdentifyFiles(refs []string) ([]string, []string) {
	if m.IdentifyFilesFunc != nil {
		return m.IdentifyFilesFunc(refs)
	}
	return nil, refs
}

func (m *MockFileProcessor) ProcessFiles(ctx context.Context, refs []string) (string, error) {
	if m.ProcessFilesFunc != nil {
		return m.ProcessFilesFunc(ctx, refs)
	}
	return "", errors.New("not implemented")
}

// MockRetriever is a mock document retriever for testing
type MockRetriever struct {
	IndexFunc    func(ctx context.Context, textRefs []string) (*db.Collection, error)
	RetrieveFunc func(ctx context.Context, collection *db.Collection, query string) ([]db.ScoredChunk, error)
}

func (m *MockRetriever) Index(ctx context.Context, textRefs []string) (*db.Collection, error) {
	if m.IndexFunc != nil {
		return m.IndexFunc(ctx, textRefs)
	}
	return nil, errors.New("not implemented")
}

func (m *MockRetriever) Retrieve(ctx context.Context, collection *db.Collection, query string) ([]db.ScoredChunk, error) {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, collection, query)
	}
	return nil, errors.New("not implemented")
}

// MockFetcher is a mock file downloader for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context, ref string) ([]byte, error)
	CDNBase   string
}

func (m *MockFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, ref)
	}
	return nil, errors.New("not implemented")
}

func (m *MockFetcher) ResolveURL(ref string) string {
	return m.CDNBase + "/" + ref
}

// NewMockConfig creates a mock app.Config for testing
func NewMockConfig(database db.Database) *app.Config {
	return &app.Config{
		DB: database,
		AppConfig: &config.AppConfig{
			LLM: config.LLMConfig{
				APIKeys:   map[string]string{"openai": "test-key"},
				Providers: config.DefaultProvidersConfig("http://localhost:11434"),
			},
			Auth: config.AuthConfig{
				JWTSecret: []byte("test-secret-key-at-least-32-chars-long"),
			},
			Storage: config.StorageConfig{
				CDNBaseURL: "https://cdn.example.com",
			},
			Retrieval: config.RetrievalConfig{
				ChunkSize:    500,
				ChunkOverlap: 100,
				TopK:         4,
			},
			Billing: config.BillingConfig{
				DefaultPlanID:     "680f11c0d44970f933ae5e54",
				MaxResponseTokens: 2000,
			},
		},
	}
}
