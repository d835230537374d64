// Package config reads service configuration from environment variables.
// Each executable loads an optional .env file at startup (godotenv) and then
// pulls typed values with defaults from here.
package config

import (
	"os"
	"strconv"
)

// String returns the value of key, or fallback when unset or empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value of key, or fallback when unset or invalid.
func Int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Float returns the float value of key, or fallback when unset or invalid.
func Float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Postgres groups the PG* connection variables.
type Postgres struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresFromEnv reads the PG* variables with local-development defaults.
func PostgresFromEnv() Postgres {
	return Postgres{
		Host:     String("PGHOST", "localhost"),
		Port:     Int("PGPORT", 5432),
		Database: String("PGDATABASE", "postgres"),
		User:     String("PGUSER", "postgres"),
		Password: String("PGPASSWORD", ""),
	}
}

// LLM groups the LLM provider variables.
type LLM struct {
	Provider      string
	Model         string
	Temperature   float64
	OllamaBaseURL string
	OpenAIAPIKey  string
}

// LLMFromEnv reads the LLM_* variables.
func LLMFromEnv() LLM {
	return LLM{
		Provider:      String("LLM_PROVIDER", "ollama"),
		Model:         String("LLM_MODEL", "qwen2.5:7b-instruct"),
		Temperature:   Float("LLM_TEMPERATURE", 0.0),
		OllamaBaseURL: String("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenAIAPIKey:  String("OPENAI_API_KEY", ""),
	}
}
