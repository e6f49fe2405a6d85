package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (empty = jobs run in-process)
	RedisURL string

	Storage   StorageConfig
	Providers ProviderConfig
	Log       LogConfig

	// Worker
	MaxConcurrentJobs int
}

// StorageConfig selects where binary artifacts are written.
type StorageConfig struct {
	Primary    string // "bucket" or "local"
	UploadsDir string // root of the local backend
	PublicPath string // URL prefix the local backend is served under

	BucketDriver string // "supabase" or "minio"

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// MinIO / S3
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string // base for public object URLs (default: endpoint)

	// Database-attached blobs
	DBChunkSize int
}

// ProviderConfig carries credentials for the vendor integrations. An empty key
// leaves the provider unconfigured.
type ProviderConfig struct {
	// Google Cloud TTS: API key or service-account JSON (path or inline)
	GoogleAPIKey          string
	GoogleCredentialsJSON string

	// ElevenLabs (TTS + voice cloning)
	ElevenLabsKey     string
	ElevenLabsURL     string
	ElevenLabsModelID string

	// OpenAI (TTS, summaries, sample duration probe)
	OpenAIKey      string
	OpenAITTSModel string
	OpenAIModel    string

	// Cartesia
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Gemini (summaries)
	GeminiKey   string
	GeminiModel string

	// RVC voice conversion service
	RVCServiceURL string

	// Order in which configured providers are tried when the requested one is unavailable
	TTSFallbackOrder []string

	// Upper bound on concurrent outbound synthesis calls
	MaxProviderCalls int
}

type LogConfig struct {
	Level      string
	Format     string // "text" or "json"
	File       string // enables rotation when set
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		Storage: StorageConfig{
			Primary:            getEnv("STORAGE_PRIMARY", "bucket"),
			UploadsDir:         getEnv("UPLOADS_DIR", "uploads"),
			PublicPath:         getEnv("UPLOADS_PUBLIC_PATH", "/uploads"),
			BucketDriver:       getEnv("BUCKET_DRIVER", "supabase"),
			SupabaseURL:        getEnv("SUPABASE_URL", ""),
			SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			SupabaseBucket:     getEnv("SUPABASE_STORAGE_BUCKET", "docucast"),
			MinioEndpoint:      getEnv("MINIO_ENDPOINT", ""),
			MinioAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			MinioBucket:        getEnv("MINIO_BUCKET", "docucast"),
			MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
			MinioPublicURL:     getEnv("MINIO_PUBLIC_URL", ""),
			DBChunkSize:        getEnvInt("DB_BLOB_CHUNK_SIZE", 255*1024),
		},
		Providers: ProviderConfig{
			GoogleAPIKey:          getEnv("GOOGLE_TTS_API_KEY", ""),
			GoogleCredentialsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
			ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
			ElevenLabsURL:         getEnv("ELEVENLABS_API_URL", "https://api.elevenlabs.io"),
			ElevenLabsModelID:     getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
			OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
			OpenAITTSModel:        getEnv("OPENAI_TTS_MODEL", "tts-1"),
			OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
			CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
			CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
			GeminiKey:             getEnv("GEMINI_API_KEY", ""),
			GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			RVCServiceURL:         getEnv("RVC_SERVICE_URL", "http://localhost:5001"),
			TTSFallbackOrder:      getEnvList("TTS_FALLBACK_ORDER", []string{"google", "elevenlabs", "openai", "cartesia"}),
			MaxProviderCalls:      getEnvInt("MAX_PROVIDER_CALLS", 4),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and the consistency of the storage selection.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Storage.Primary {
	case "local":
	case "bucket":
		switch c.Storage.BucketDriver {
		case "supabase":
			if c.Storage.SupabaseURL == "" || c.Storage.SupabaseServiceKey == "" {
				return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase bucket driver")
			}
		case "minio":
			if c.Storage.MinioEndpoint == "" || c.Storage.MinioAccessKey == "" || c.Storage.MinioSecretKey == "" {
				return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio bucket driver")
			}
		default:
			return fmt.Errorf("unsupported BUCKET_DRIVER: %s", c.Storage.BucketDriver)
		}
	default:
		return fmt.Errorf("unsupported STORAGE_PRIMARY: %s", c.Storage.Primary)
	}

	if c.Storage.DBChunkSize <= 0 {
		return fmt.Errorf("DB_BLOB_CHUNK_SIZE must be positive")
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 1
	}
	if c.Providers.MaxProviderCalls <= 0 {
		c.Providers.MaxProviderCalls = 1
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
