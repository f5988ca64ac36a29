package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	TablePrefix string
	CORSOrigins string
	JWKSURL     string

	// Databricks workspace / model serving
	WorkspaceHost     string
	WorkspaceToken    string
	AgentEndpoint     string
	EmbeddingEndpoint string
	TitleEndpoint     string

	// Generation context
	ChatContextLimit int // recent turns sent to the agent
	AgentChatK       int // retrieval depth for the chat-history search tool

	// Render loop polling
	TickFast     time.Duration // interval while work is outstanding
	TickSlow     time.Duration // interval when idle
	SessionsTick time.Duration // sessions-list refresh cadence
	CacheTTL     time.Duration // client-side per-chat cache TTL

	// Task queue
	WorkerPoolSize   int
	TaskTimeout      time.Duration
	QueueEntryTTL    time.Duration // retention of completed results nobody polled
	StreamChunkChars int
	StreamChunkDelay time.Duration
	SimulateStream   bool

	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		JWKSURL:     getEnv("JWKS_URL", ""),

		WorkspaceHost:     getEnv("DATABRICKS_HOST", ""),
		WorkspaceToken:    getEnv("DATABRICKS_TOKEN", ""),
		AgentEndpoint:     getEnv("AGENT_ENDPOINT", ""),
		EmbeddingEndpoint: getEnv("EMBEDDING_ENDPOINT", ""),
		TitleEndpoint:     getEnv("TITLE_ENDPOINT", getEnv("AGENT_ENDPOINT", "")),

		ChatContextLimit: getEnvInt("CHAT_CONTEXT_LIMIT", 5),
		AgentChatK:       getEnvInt("AGENT_CHAT_K", 5),

		TickFast:     getEnvMillis("TICK_FAST_MS", 150),
		TickSlow:     getEnvMillis("TICK_SLOW_MS", 2000),
		SessionsTick: getEnvMillis("SESSIONS_TICK_MS", 10000),
		CacheTTL:     getEnvMillis("CHAT_CACHE_TTL_MS", 24*60*60*1000),

		WorkerPoolSize:   getEnvInt("WORKER_POOL_SIZE", 4),
		TaskTimeout:      getEnvMillis("TASK_TIMEOUT_MS", 120000),
		QueueEntryTTL:    getEnvMillis("QUEUE_ENTRY_TTL_MS", 300000),
		StreamChunkChars: getEnvInt("STREAM_CHUNK_CHARS", 24),
		StreamChunkDelay: getEnvMillis("STREAM_CHUNK_DELAY_MS", 30),
		SimulateStream:   getEnv("SIMULATE_STREAM", "false") == "true",

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an integer env var, falling back on missing, malformed or
// non-positive values.
func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}
