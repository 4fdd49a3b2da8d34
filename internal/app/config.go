package app

import (
	"irouter/internal/config"
	"irouter/internal/repository/db"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database for model configuration, accounts and logs
	DB db.Database
	// Vectors stores embedded document chunks
	Vectors db.VectorStore
	// Centralized application configuration
	AppConfig *config.AppConfig
}

// NewConfig creates a new application configuration
func NewConfig(database db.Database, vectors db.VectorStore, appConfig *config.AppConfig) *Config {
	return &Config{
		DB:        database,
		Vectors:   vectors,
		AppConfig: appConfig,
	}
}

// LLM returns the vendor configuration
func (c *Config) LLM() *config.LLMConfig {
	return &c.AppConfig.LLM
}
