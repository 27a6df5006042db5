package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds gateway configuration.
type Config struct {
	Port              string
	Env               string
	LogLevel          string
	CORSAllowOrigin   []string
	LocalStoreDir     string
	KeepUploads       bool
	DatabaseURL       string
	APIKey            string
	APISecret         string
	OllamaURL         string
	OllamaModels      map[string]string
	OllamaTimeout     time.Duration
	WorkerConcurrency int
	QueueSize         int
	PollWindow        time.Duration
	ShutdownTimeout   time.Duration
	RateLimitRate     float64
	RateLimitBurst    int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		KeepUploads:     getBool("KEEP_UPLOADS", false),
		DatabaseURL:     dbURL,
		APIKey:          getEnv("GATEWAY_API_KEY", os.Getenv("GERMAN_OCR_API_KEY")),
		APISecret:       getEnv("GATEWAY_API_SECRET", os.Getenv("GERMAN_OCR_API_SECRET")),
		OllamaURL:       strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),
		OllamaModels: map[string]string{
			"local":      getEnv("OLLAMA_MODEL_LOCAL", "german-ocr-turbo"),
			"cloud_fast": getEnv("OLLAMA_MODEL_CLOUD_FAST", "german-ocr"),
			"cloud":      getEnv("OLLAMA_MODEL_CLOUD", "german-ocr-ultra"),
		},
		OllamaTimeout:     getDuration("OLLAMA_TIMEOUT", 5*time.Minute),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),
		QueueSize:         getInt("QUEUE_SIZE", 64),
		PollWindow:        getDuration("POLL_WINDOW", time.Second),
		ShutdownTimeout:   getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		RateLimitRate:     getFloat("RATE_LIMIT_RATE", 2),
		RateLimitBurst:    getInt("RATE_LIMIT_BURST", 10),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %v", key, raw, def)
		return def
	}
	return b
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		log.Printf("invalid %s=%q, using %v", key, raw, def)
		return def
	}
	return f
}

// getDuration accepts Go durations ("750ms") or plain seconds ("5").
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("invalid %s=%q, using %s", key, raw, def)
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
