package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultMaxUploadBytes = 2 * 1024 * 1024 * 1024

type Config struct {
	HTTPAddr        string
	DBDriver        string
	DatabaseURL     string
	UploadDir       string
	OutputDir       string
	PublicPrefix    string
	MaxUploadBytes  int64
	FFmpegPath      string
	FFprobePath     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	StatusTTL       time.Duration
	S3Bucket        string
	S3Region        string
	AWSS3AccessKey  string
	AWSS3SecretKey  string
	S3Endpoint      string
	S3UsePathStyle  bool
	S3Prefix        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

func Load() *Config {
	driver := strings.ToLower(getEnv("DB_DRIVER", "postgres"))

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":5000"),
		DBDriver:       driver,
		DatabaseURL:    databaseURL(driver),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:      getEnv("OUTPUT_DIR", "public/converted"),
		PublicPrefix:   "/" + strings.Trim(getEnv("PUBLIC_PREFIX", "/converted"), "/"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisPrefix:    getEnv("REDIS_PREFIX", ""),
		StatusTTL:      time.Duration(getEnvInt("STATUS_TTL_SECONDS", 86400)) * time.Second,
		S3Bucket:       getEnv("S3_BUCKET", ""),
		// Prefer unified S3_* vars, fall back to AWS_* vars
		S3Region:        getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey:  getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey:  getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle:  getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
		S3Prefix:        getEnv("S3_PREFIX", "converted/"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT", 30)) * time.Second,
	}
}

// databaseURL returns DATABASE_URL when set, otherwise a DSN assembled for the driver.
func databaseURL(driver string) string {
	if explicit := getEnv("DATABASE_URL", ""); explicit != "" {
		return explicit
	}

	if driver == "sqlite" {
		return getEnv("SQLITE_PATH", "data/jobs.db")
	}

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "videoconverter")
	dbUser := getEnv("DB_USERNAME", "videoconverter")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	if dbPassword != "" {
		return fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	}
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s sslmode=%s",
		dbHost, dbPort, dbName, dbUser, dbSSLMode,
	)
}

// RedisEnabled reports whether the status cache should be wired.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// S3Enabled reports whether converted artifacts are archived to a bucket.
func (c *Config) S3Enabled() bool {
	return strings.TrimSpace(c.S3Bucket) != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil && intVal > 0 {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
