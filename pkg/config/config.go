package config

import "os"

// Config holds process-wide configuration, loaded from the environment
// per 12-factor conventions.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	LLMServiceURL string
	OTLPEndpoint  string
	ProfilesDir   string
	AuditLogPath  string
	CheckpointDir string
	ShadowMode    bool
}

// Load loads configuration from environment variables, falling back to
// development-friendly defaults for anything unset.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://aegis@localhost:5432/aegis?sslmode=disable"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	llmURL := os.Getenv("LLM_SERVICE_URL")
	if llmURL == "" {
		llmURL = "http://localhost:11434/v1/chat/completions"
	}

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "./profiles"
	}

	auditLogPath := os.Getenv("AUDIT_LOG_PATH")
	if auditLogPath == "" {
		auditLogPath = "./aegis-audit.jsonl"
	}

	checkpointDir := os.Getenv("CHECKPOINT_DIR")
	if checkpointDir == "" {
		checkpointDir = "./checkpoints"
	}

	shadowMode := os.Getenv("SHADOW_MODE") == "true"

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   dbURL,
		RedisAddr:     redisAddr,
		LLMServiceURL: llmURL,
		OTLPEndpoint:  otlpEndpoint,
		ProfilesDir:   profilesDir,
		AuditLogPath:  auditLogPath,
		CheckpointDir: checkpointDir,
		ShadowMode:    shadowMode,
	}
}
