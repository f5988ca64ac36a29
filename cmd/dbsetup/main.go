package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Creates the chat tables and the pgvector extension for the configured
// environment. Safe to re-run: everything is IF NOT EXISTS.
func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	prefix := tablePrefix()
	dim := embeddingDim()

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }() // Error ignored: script exiting

	schemaSQL := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS %[1]schat_sessions (
			id TEXT PRIMARY KEY,
			user_name TEXT NOT NULL,
			title TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[1]schat_sessions_user_updated_idx
			ON %[1]schat_sessions (user_name, updated_at DESC);

		CREATE TABLE IF NOT EXISTS %[1]schat_history (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			message_type TEXT NOT NULL,
			message_content TEXT NOT NULL,
			message_order INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (chat_id, message_order)
		);
		CREATE INDEX IF NOT EXISTS %[1]schat_history_chat_user_idx
			ON %[1]schat_history (chat_id, user_name);

		CREATE TABLE IF NOT EXISTS %[1]smessage_embeddings (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL REFERENCES %[1]schat_history(id),
			user_name TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			embedding vector(%[2]d)
		);
		CREATE INDEX IF NOT EXISTS %[1]smessage_embeddings_user_idx
			ON %[1]smessage_embeddings (user_name, chat_id);
	`, prefix, dim)

	if _, err := db.Exec(schemaSQL); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	fmt.Printf("Chat tables created (prefix: %s, embedding dim: %d)\n", prefix, dim)
}

// tablePrefix mirrors the server's config: explicit TABLE_PREFIX wins,
// otherwise the environment name.
func tablePrefix() string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return env + "_"
}

func embeddingDim() int {
	raw := os.Getenv("EMBEDDING_DIM")
	if raw == "" {
		return 1024
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		log.Fatalf("EMBEDDING_DIM must be a positive integer, got %q", raw)
	}
	return dim
}
