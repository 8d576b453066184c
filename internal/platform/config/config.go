package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every tunable the server reads at boot. Values come from
// the environment so main stays lean.
type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	Kafka     Kafka
	Audit     Audit
	Auth      Auth
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Host        string
	Port        int
	CORSOrigins []string
}

func (s Server) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// Database configures the postgres connection. An empty URL selects the
// in-memory repository, which is what tests and local development use.
type Database struct {
	URL        string
	PoolSize   int
	LogQueries bool
}

// Redis configures the reputation cache. An empty URL disables it and the
// service falls back to its in-process cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit mirror publisher. No brokers means no mirror.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Audit selects the audit log mode.
type Audit struct {
	Enabled bool
}

// Auth configures admin authentication for resolver management endpoints.
type Auth struct {
	JWTSecret string
	// TrustedIssuerKeys are PEM-encoded Ed25519 public keys whose proofs the
	// verify endpoint reports as issuer-trusted, in addition to our own key.
	TrustedIssuerKeys []string
	GitHubToken       string
}

// RateLimit bounds per-client request rates across the whole API.
type RateLimit struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Host:        envStr("HOST", "0.0.0.0"),
			Port:        envInt("PORT", 8080),
			CORSOrigins: envList("CORS_ORIGINS", []string{"*"}),
		},
		Database: Database{
			URL:        os.Getenv("DATABASE_URL"),
			PoolSize:   envInt("DB_POOL_SIZE", 10),
			LogQueries: envBool("LOG_QUERIES", false),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    envList("KAFKA_BROKERS", nil),
			AuditTopic: envStr("AUDIT_TOPIC", "irrl.audit"),
		},
		Audit: Audit{
			Enabled: envBool("ENABLE_AUDIT_LOG", true),
		},
		Auth: Auth{
			JWTSecret:         envStr("JWT_SECRET", "dev-secret-change-in-production"),
			TrustedIssuerKeys: envList("TRUSTED_ISSUER_KEYS", nil),
			GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		},
		RateLimit: RateLimit{
			Enabled:  envBool("RATE_LIMIT_ENABLED", true),
			Requests: envInt("RATE_LIMIT_REQUESTS", 300),
			Window:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
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

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
