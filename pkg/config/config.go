package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	SyncTargetFile  = "file"
	SyncTargetRedis = "redis"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	ServiceName string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Lecturer   LecturerConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	RateLimit  RateLimitConfig
	Sync       SyncConfig
	Realtime   RealtimeConfig
}

type DatabaseConfig struct {
	Driver       string
	Path         string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// LecturerConfig holds the single lecturer credential. PasswordHash wins over Password.
type LecturerConfig struct {
	Password     string
	PasswordHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig tunes check-in and enrollment policy.
type AttendanceConfig struct {
	LateThreshold          time.Duration
	RebindRequiresLecturer bool
	SessionTokenBytes      int
}

// RateLimitConfig throttles the public write endpoints per client IP.
type RateLimitConfig struct {
	Enabled      bool
	PerMinute    int
	Burst        int
	IdleEviction time.Duration
}

// SyncConfig drives the outbound sync drain worker.
type SyncConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
	Target      string
	RedisKey    string
	OutboxDir   string
	HMACSecret  string
}

// RealtimeConfig toggles cross-instance fan-out of push events.
type RealtimeConfig struct {
	RedisFanout bool
	Channel     string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ServiceName = v.GetString("SERVICE_NAME")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Path:         v.GetString("DB_PATH"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Lecturer = LecturerConfig{
		Password:     v.GetString("LECTURER_PASSWORD"),
		PasswordHash: v.GetString("LECTURER_PASSWORD_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	lateMinutes := v.GetInt("LATE_THRESHOLD_MINUTES")
	if lateMinutes < 0 {
		lateMinutes = 15
	}
	tokenBytes := v.GetInt("SESSION_TOKEN_BYTES")
	if tokenBytes < 16 {
		tokenBytes = 16
	}
	cfg.Attendance = AttendanceConfig{
		LateThreshold:          time.Duration(lateMinutes) * time.Minute,
		RebindRequiresLecturer: v.GetBool("REBIND_REQUIRES_LECTURER"),
		SessionTokenBytes:      tokenBytes,
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:      v.GetBool("RATE_LIMIT_ENABLED"),
		PerMinute:    v.GetInt("RATE_LIMIT_PER_MIN"),
		Burst:        v.GetInt("RATE_LIMIT_BURST"),
		IdleEviction: parseDuration(v.GetString("RATE_LIMIT_IDLE_EVICTION"), 10*time.Minute),
	}

	cfg.Sync = SyncConfig{
		Enabled:     v.GetBool("SYNC_ENABLED"),
		Interval:    parseDuration(v.GetString("SYNC_INTERVAL"), time.Minute),
		BatchSize:   v.GetInt("SYNC_BATCH_SIZE"),
		Workers:     v.GetInt("SYNC_WORKERS"),
		MaxAttempts: v.GetInt("SYNC_MAX_ATTEMPTS"),
		RetryDelay:  parseDuration(v.GetString("SYNC_RETRY_DELAY"), 30*time.Second),
		Target:      strings.ToLower(v.GetString("SYNC_TARGET")),
		RedisKey:    v.GetString("SYNC_REDIS_KEY"),
		OutboxDir:   v.GetString("SYNC_OUTBOX_DIR"),
		HMACSecret:  v.GetString("HMAC_SECRET"),
	}

	cfg.Realtime = RealtimeConfig{
		RedisFanout: v.GetBool("SOCKET_REDIS_FANOUT"),
		Channel:     v.GetString("SOCKET_REDIS_CHANNEL"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("SERVICE_NAME", "lan-attendance")

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "./attendance.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "lan-attendance")

	v.SetDefault("LECTURER_PASSWORD", "admin123")
	v.SetDefault("LECTURER_PASSWORD_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LATE_THRESHOLD_MINUTES", 15)
	v.SetDefault("REBIND_REQUIRES_LECTURER", false)
	v.SetDefault("SESSION_TOKEN_BYTES", 32)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_IDLE_EVICTION", "10m")

	v.SetDefault("SYNC_ENABLED", false)
	v.SetDefault("SYNC_INTERVAL", "60s")
	v.SetDefault("SYNC_BATCH_SIZE", 50)
	v.SetDefault("SYNC_WORKERS", 2)
	v.SetDefault("SYNC_MAX_ATTEMPTS", 5)
	v.SetDefault("SYNC_RETRY_DELAY", "30s")
	v.SetDefault("SYNC_TARGET", SyncTargetFile)
	v.SetDefault("SYNC_REDIS_KEY", "attendance:sync")
	v.SetDefault("SYNC_OUTBOX_DIR", "./outbox")
	v.SetDefault("HMAC_SECRET", "dev_hmac_secret")

	v.SetDefault("SOCKET_REDIS_FANOUT", false)
	v.SetDefault("SOCKET_REDIS_CHANNEL", "attendance:events")
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
