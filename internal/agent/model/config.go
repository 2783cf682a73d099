package model

import "time"

// ================ Config ================

type QueryModelConfig struct {
	Model          string  `envconfig:"QUERY_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"QUERY_MAX_TOKENS" default:"4000"`
	Temperature    float32 `envconfig:"QUERY_TEMPERATURE" default:"0"`
	ThinkingBudget int32   `envconfig:"QUERY_THINKING_BUDGET" default:"2000"`
	Dialect        string  `envconfig:"SQL_DIALECT" default:"T-SQL"`
}

type RenderModelConfig struct {
	Model          string  `envconfig:"RENDER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"RENDER_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"RENDER_TEMPERATURE" default:"0.3"`
	ThinkingBudget int32   `envconfig:"RENDER_THINKING_BUDGET" default:"0"`
}

type EmbeddingConfig struct {
	Model      string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	Dimensions int32  `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
}

type SearchConfig struct {
	// Backend selects the cached query index: "qdrant" or "memory".
	Backend             string  `envconfig:"INDEX_BACKEND" default:"qdrant"`
	ConfidenceThreshold float64 `envconfig:"QUERY_CONFIDENCE_THRESHOLD" default:"0.75"`
	TopK                int     `envconfig:"QUERY_SEARCH_TOP_K" default:"3"`
	Mode                string  `envconfig:"QUERY_SEARCH_MODE" default:"hybrid"`
}

type SQLConfig struct {
	MaxRows      int           `envconfig:"SQL_MAX_ROWS" default:"1000"`
	QueryTimeout time.Duration `envconfig:"SQL_QUERY_TIMEOUT" default:"30s"`
	RatePerSec   float64       `envconfig:"SQL_RATE_PER_SEC" default:"5"`
	Burst        int           `envconfig:"SQL_RATE_BURST" default:"5"`
}

type ThreadConfig struct {
	TTL      time.Duration `envconfig:"THREAD_TTL" default:"720h"`
	MaxTurns int           `envconfig:"THREAD_MAX_TURNS" default:"10"`
	Tools    struct {
		MaxCalls int `envconfig:"THREAD_TOOL_MAX_CALLS" default:"8"`
	}
}
