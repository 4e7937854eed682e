package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	WebSocket  WebSocketConfig
	Sync       SyncConfig
	Versioning VersioningConfig
	Presence   PresenceConfig
	Redis      RedisConfig
	S3         S3Config
	CORS       CORSConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Env             string
	ShutdownTimeout time.Duration
}

// DatabaseConfig points at CouchDB. Backend "memory" keeps everything in
// process, which is only useful for development and tests.
type DatabaseConfig struct {
	Backend  string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// URL is the CouchDB address with credentials.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "http",
		Host:   d.Host + ":" + d.Port,
		User:   url.UserPassword(d.User, d.Password),
	}
	return u.String()
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type SyncConfig struct {
	Debounce         time.Duration
	SnapshotInterval time.Duration
}

type VersioningConfig struct {
	KeepLast int
	MaxAge   time.Duration
}

type PresenceConfig struct {
	Backend       string
	Heartbeat     time.Duration
	TTL           time.Duration
	SweepInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
	Caller bool
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshExp, err := getEnvAsDuration("REFRESH_TOKEN_EXPIRATION", 168*time.Hour)
	if err != nil {
		return nil, err
	}
	debounce, err := getEnvAsDuration("SYNC_DEBOUNCE", 2*time.Second)
	if err != nil {
		return nil, err
	}
	snapshotInterval, err := getEnvAsDuration("SNAPSHOT_INTERVAL", 20*time.Minute)
	if err != nil {
		return nil, err
	}
	maxAge, err := getEnvAsDuration("VERSION_MAX_AGE", 0)
	if err != nil {
		return nil, err
	}
	heartbeat, err := getEnvAsDuration("PRESENCE_HEARTBEAT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvAsDuration("PRESENCE_TTL", 3*heartbeat)
	if err != nil {
		return nil, err
	}
	sweep, err := getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", ttl)
	if err != nil {
		return nil, err
	}
	shutdown, err := getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Env:             getEnv("ENV", "development"),
			ShutdownTimeout: shutdown,
		},
		Database: DatabaseConfig{
			Backend:  getEnv("DB_BACKEND", "couchdb"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "notemv"),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		Sync: SyncConfig{
			Debounce:         debounce,
			SnapshotInterval: snapshotInterval,
		},
		Versioning: VersioningConfig{
			KeepLast: getEnvAsInt("VERSION_KEEP_LAST", 0),
			MaxAge:   maxAge,
		},
		Presence: PresenceConfig{
			Backend:       getEnv("PRESENCE_BACKEND", "store"),
			Heartbeat:     heartbeat,
			TTL:           ttl,
			SweepInterval: sweep,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		S3: S3Config{
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			PublicURL: getEnv("S3_PUBLIC_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
			Caller: getEnvAsBool("LOG_CALLER", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Backend {
	case "couchdb", "memory":
	default:
		return fmt.Errorf("invalid DB_BACKEND %q: want couchdb or memory", c.Database.Backend)
	}
	switch c.Presence.Backend {
	case "store", "redis":
	default:
		return fmt.Errorf("invalid PRESENCE_BACKEND %q: want store or redis", c.Presence.Backend)
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("SYNC_DEBOUNCE must be positive")
	}
	if c.Presence.TTL <= c.Presence.Heartbeat {
		return fmt.Errorf("PRESENCE_TTL (%s) must exceed PRESENCE_HEARTBEAT (%s)", c.Presence.TTL, c.Presence.Heartbeat)
	}
	if c.Versioning.KeepLast < 0 {
		return fmt.Errorf("VERSION_KEEP_LAST must not be negative")
	}
	return nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
