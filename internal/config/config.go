// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel  int       `env:"LOG_LEVEL" envDefault:"0"`
	HTTP      HTTP      `envPrefix:"HTTP_"`
	Health    Health    `envPrefix:"HEALTH_"`
	Mongo     Mongo     `envPrefix:"MONGODB_"`
	JWT       JWT       `envPrefix:"JWT_"`
	Session   Session   `envPrefix:"SESSION_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
	Google    Google    `envPrefix:"GOOGLE_"`
	Pusher    Pusher    `envPrefix:"PUSHER_"`
	Media     Media     `envPrefix:"MEDIA_"`
	Minio     Minio     `envPrefix:"MINIO_"`
	S3        S3        `envPrefix:"S3_"`
}

// HTTP contains REST server parameters.
type HTTP struct {
	Port      string `env:"PORT" envDefault:"8080"`
	ClientURL string `env:"CLIENT_URL" envDefault:"http://localhost:3000"`

	// TrustedProxies lists the proxy CIDRs whose X-Forwarded-For is honored.
	// Empty means the peer address is always the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// Health contains the gRPC health endpoint parameters.
type Health struct {
	Port string `env:"PORT" envDefault:"50051"`
}

// Mongo contains document store connection parameters.
type Mongo struct {
	URI      string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"DATABASE" envDefault:"chat_db"`
}

// JWT contains session token parameters. Keys (kid:secret pairs) take
// precedence over Secret when set. One of them is required.
type JWT struct {
	Secret    string            `env:"SECRET"`
	Keys      map[string]string `env:"KEYS"`
	ActiveKID string            `env:"ACTIVE_KID"`
	TTL       time.Duration     `env:"TTL" envDefault:"24h"`
}

// Session contains cookie parameters.
type Session struct {
	CookieName string `env:"COOKIE_NAME" envDefault:"chat_session"`
	Secure     bool   `env:"SECURE" envDefault:"false"`
}

// RateLimit limits signup and login attempts per client.
type RateLimit struct {
	RPM   int `env:"RPM" envDefault:"10"`
	Burst int `env:"BURST" envDefault:"3"`
}

// Google contains OAuth client parameters.
type Google struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL" envDefault:"http://localhost:8080/auth/google/callback"`
}

// Enabled reports whether Google login is configured.
func (g Google) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Pusher contains hosted relay credentials.
type Pusher struct {
	AppID   string `env:"APP_ID"`
	Key     string `env:"KEY"`
	Secret  string `env:"SECRET"`
	Cluster string `env:"CLUSTER" envDefault:"eu"`
}

// Media selects the image storage backend.
type Media struct {
	Backend  string `env:"BACKEND" envDefault:"minio"`
	MaxBytes int64  `env:"MAX_BYTES" envDefault:"5242880"`
}

// Minio contains object storage parameters.
type Minio struct {
	Endpoint      string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey     string `env:"ACCESS_KEY" envDefault:"pairchat-access-key"`
	SecretKey     string `env:"SECRET_KEY" envDefault:"pairchat-secret-key"`
	Bucket        string `env:"BUCKET_NAME" envDefault:"pairchat-images"`
	UseSSL        bool   `env:"USE_SSL" envDefault:"false"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:9000"`
}

// S3 contains AWS S3 parameters.
type S3 struct {
	Region        string `env:"REGION" envDefault:"us-east-1"`
	Endpoint      string `env:"ENDPOINT"`
	Bucket        string `env:"BUCKET" envDefault:"pairchat-images"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Media.Backend {
	case "minio", "s3":
	default:
		return nil, fmt.Errorf("unsupported MEDIA_BACKEND %q", cfg.Media.Backend)
	}
	if cfg.JWT.Secret == "" && len(cfg.JWT.Keys) == 0 {
		return nil, errors.New("either JWT_SECRET or JWT_KEYS must be set")
	}
	if len(cfg.JWT.Keys) > 0 {
		if _, ok := cfg.JWT.Keys[cfg.JWT.ActiveKID]; !ok {
			return nil, fmt.Errorf("JWT_ACTIVE_KID %q not found in JWT_KEYS", cfg.JWT.ActiveKID)
		}
	}

	return &cfg, nil
}
