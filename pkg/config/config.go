package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	EventsPublisherKafka  = "kafka"
	EventsPublisherMemory = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Grading   GradingConfig
	Gradebook GradebookConfig
	Reports   ReportsConfig
	Events    EventsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GradingConfig carries the school-wide default grading policy. Tenants may override it.
type GradingConfig struct {
	ThresholdA         float64
	ThresholdB         float64
	ThresholdC         float64
	ThresholdD         float64
	PassMark           float64
	GPADivisor         float64
	HonorRollGPA       float64
	AttendanceCategory string
	SkipNonFinite      bool
}

// GradebookConfig tunes computed gradebook endpoints.
type GradebookConfig struct {
	Workers      int
	CacheTTL     time.Duration
	PolicyTTL    time.Duration
	TenantHeader string
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// EventsConfig selects the message broker used for grade events.
type EventsConfig struct {
	Enabled          bool
	Publisher        string
	KafkaBrokers     []string
	ConsumerGroup    string
	AssessmentTopic  string
	ReportReadyTopic string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Grading = GradingConfig{
		ThresholdA:         v.GetFloat64("GRADE_THRESHOLD_A"),
		ThresholdB:         v.GetFloat64("GRADE_THRESHOLD_B"),
		ThresholdC:         v.GetFloat64("GRADE_THRESHOLD_C"),
		ThresholdD:         v.GetFloat64("GRADE_THRESHOLD_D"),
		PassMark:           v.GetFloat64("GRADE_PASS_MARK"),
		GPADivisor:         v.GetFloat64("GRADE_GPA_DIVISOR"),
		HonorRollGPA:       v.GetFloat64("GRADE_HONOR_ROLL_GPA"),
		AttendanceCategory: v.GetString("GRADE_ATTENDANCE_CATEGORY"),
		SkipNonFinite:      v.GetBool("GRADE_SKIP_NON_FINITE"),
	}

	workers := v.GetInt("GRADEBOOK_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Gradebook = GradebookConfig{
		Workers:      workers,
		CacheTTL:     parseDuration(v.GetString("GRADEBOOK_CACHE_TTL"), 5*time.Minute),
		PolicyTTL:    parseDuration(v.GetString("GRADING_POLICY_CACHE_TTL"), 15*time.Minute),
		TenantHeader: v.GetString("TENANT_HEADER"),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	cfg.Events = EventsConfig{
		Enabled:          v.GetBool("EVENTS_ENABLED"),
		Publisher:        strings.ToLower(v.GetString("EVENTS_PUBLISHER")),
		KafkaBrokers:     splitAndTrim(v.GetString("KAFKA_BROKERS")),
		ConsumerGroup:    v.GetString("KAFKA_CONSUMER_GROUP"),
		AssessmentTopic:  v.GetString("ASSESSMENT_EVENTS_TOPIC"),
		ReportReadyTopic: v.GetString("REPORT_READY_TOPIC"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_gradebook")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GRADE_THRESHOLD_A", 90)
	v.SetDefault("GRADE_THRESHOLD_B", 80)
	v.SetDefault("GRADE_THRESHOLD_C", 70)
	v.SetDefault("GRADE_THRESHOLD_D", 60)
	v.SetDefault("GRADE_PASS_MARK", 50)
	v.SetDefault("GRADE_GPA_DIVISOR", 25)
	v.SetDefault("GRADE_HONOR_ROLL_GPA", 3.5)
	v.SetDefault("GRADE_ATTENDANCE_CATEGORY", "attendance")
	v.SetDefault("GRADE_SKIP_NON_FINITE", true)

	v.SetDefault("GRADEBOOK_WORKERS", 4)
	v.SetDefault("GRADEBOOK_CACHE_TTL", "5m")
	v.SetDefault("GRADING_POLICY_CACHE_TTL", "15m")
	v.SetDefault("TENANT_HEADER", "X-Tenant-ID")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)

	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("EVENTS_PUBLISHER", EventsPublisherMemory)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "sma-gradebook")
	v.SetDefault("ASSESSMENT_EVENTS_TOPIC", "assessment.recorded")
	v.SetDefault("REPORT_READY_TOPIC", "report.ready")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
