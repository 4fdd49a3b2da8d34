package config

import (
	"fmt"
	"irouter/internal/logger"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Billing   BillingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	// Generation requests per second allowed for one caller; 0 disables limiting
	RateLimit float64
	RateBurst int
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LLMConfig holds vendor credentials and endpoints
type LLMConfig struct {
	APIKeys        map[string]string
	OllamaBaseURL  string
	EmbeddingModel string
	Providers      *ProvidersConfig
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret []byte
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	CDNBaseURL      string
	TempDir         string
}

// RetrievalConfig holds chunking and search settings for document context
type RetrievalConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	MaxAge       time.Duration
}

// BillingConfig holds point accounting settings
type BillingConfig struct {
	DefaultPlanID     string
	MaxResponseTokens int
}

// apiKeyEnv maps provider names to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"xai":        "XAI_API_KEY",
	"mistralai":  "MISTRAL_API_KEY",
	"cerebras":   "CEREBRAS_API_KEY",
	"ollama":     "OLLAMA_API_KEY",
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:           getEnvOrDefault("SERVER_PORT", "8080"),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimit:      getEnvAsFloat("RATE_LIMIT_RPS", 1),
		RateBurst:      getEnvAsInt("RATE_LIMIT_BURST", 5),
	}

	config.Database = DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "postgres"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:     getEnvOrDefault("DB_NAME", "irouter"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	keys := make(map[string]string, len(apiKeyEnv))
	for provider, env := range apiKeyEnv {
		keys[provider] = os.Getenv(env)
	}
	if keys["openai"] == "" {
		logger.Log.Warn("OPENAI_API_KEY environment variable not set")
	}
	// edith runs on the cerebras account
	keys["edith"] = keys["cerebras"]

	ollamaBase := getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	providersPath := getEnvOrDefault("PROVIDERS_CONFIG_PATH", filepath.Join("config", "providers.yaml"))
	providers, err := NewProvidersConfig(providersPath, ollamaBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers config: %w", err)
	}

	config.LLM = LLMConfig{
		APIKeys:        keys,
		OllamaBaseURL:  ollamaBase,
		EmbeddingModel: getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		Providers:      providers,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}
	config.Auth = AuthConfig{JWTSecret: []byte(jwtSecret)}

	config.Storage = StorageConfig{
		Bucket:          os.Getenv("SPACES_BUCKET"),
		Region:          getEnvOrDefault("SPACES_REGION", "us-east-1"),
		Endpoint:        os.Getenv("SPACES_ENDPOINT"),
		AccessKeyID:     os.Getenv("SPACES_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("SPACES_SECRET_KEY"),
		CDNBaseURL:      strings.TrimRight(os.Getenv("CDN_BASE_URL"), "/"),
		TempDir:         getEnvOrDefault("MEDIA_TEMP_DIR", os.TempDir()),
	}
	if config.Storage.Bucket == "" {
		logger.Log.Warn("SPACES_BUCKET not set, generated media will not be uploaded")
	}

	config.Retrieval = RetrievalConfig{
		ChunkSize:    getEnvAsInt("RAG_CHUNK_SIZE", 500),
		ChunkOverlap: getEnvAsInt("RAG_CHUNK_OVERLAP", 100),
		TopK:         getEnvAsInt("RAG_TOP_K", 4),
		MaxAge:       getEnvAsDuration("RAG_MAX_AGE", 24*time.Hour),
	}

	config.Billing = BillingConfig{
		DefaultPlanID:     getEnvOrDefault("DEFAULT_PLAN_ID", "680f11c0d44970f933ae5e54"),
		MaxResponseTokens: getEnvAsInt("MAX_RESPONSE_TOKENS", 2000),
	}

	return config, nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// APIKey returns the credential configured for a provider, or "".
func (c *LLMConfig) APIKey(provider string) string {
	return c.APIKeys[strings.ToLower(provider)]
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
