package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	Storage    StorageConfig
	Validation ValidationConfig
	Session    SessionConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// BackendConfig points at the report backend that parses, scores and
// renders exports.
type BackendConfig struct {
	URL             string
	Timeout         time.Duration
	MaxResponseSize int64
}

type StorageConfig struct {
	UploadPath   string
	DownloadPath string
	MaxFileSize  int64
}

type ValidationConfig struct {
	AudioProbeTimeout time.Duration
	AudioMaxSize      int64
	AudioMaxDuration  time.Duration
	FFProbePath       string
}

type SessionConfig struct {
	CacheSize int
}

type WorkerConfig struct {
	Concurrency     int
	QueueSize       int
	PipelineTimeout time.Duration
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Backend: BackendConfig{
			URL:             getEnv("BACKEND_URL", "http://localhost:5000"),
			Timeout:         getEnvAsDuration("BACKEND_TIMEOUT", "5m"),
			MaxResponseSize: getEnvAsInt64("MAX_RESPONSE_SIZE", 64<<20),
		},
		Storage: StorageConfig{
			UploadPath:   getEnv("UPLOAD_PATH", "./uploads"),
			DownloadPath: getEnv("DOWNLOAD_PATH", "./downloads"),
			MaxFileSize:  getEnvAsInt64("MAX_FILE_SIZE", 200<<20),
		},
		Validation: ValidationConfig{
			AudioProbeTimeout: getEnvAsDuration("AUDIO_PROBE_TIMEOUT", "8s"),
			AudioMaxSize:      getEnvAsInt64("AUDIO_MAX_SIZE", 200<<20),
			AudioMaxDuration:  getEnvAsDuration("AUDIO_MAX_DURATION", "2h"),
			FFProbePath:       getEnv("FFPROBE_PATH", "ffprobe"),
		},
		Session: SessionConfig{
			CacheSize: getEnvAsInt("SESSION_CACHE_SIZE", 256),
		},
		Worker: WorkerConfig{
			Concurrency:     getEnvAsInt("WORKER_CONCURRENCY", 3),
			QueueSize:       getEnvAsInt("WORKER_QUEUE_SIZE", 100),
			PipelineTimeout: getEnvAsDuration("PIPELINE_TIMEOUT", "10m"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
