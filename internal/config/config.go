package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const defaultSigningKey = "default-signing-key-change-in-production"

type Config struct {
	Env      string         `envconfig:"APP_ENV" default:"development"`
	Database DatabaseConfig `envconfig:"POSTGRES"`
	Server   ServerConfig   `envconfig:"SERVER"`
	JWT      JWTConfig      `envconfig:"JWT"`
	Auth     AuthConfig     `envconfig:"AUTH"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	AWS      AWSConfig      `envconfig:"AWS"`
	Logging  LoggingConfig  `envconfig:"LOG"`
	CORS     CORSConfig     `envconfig:"CORS"`
	Security SecurityConfig `envconfig:"SECURITY"`
}

type DatabaseConfig struct {
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"5432"`
	User     string `split_words:"true" default:"postgres"`
	Password string `split_words:"true"`
	DBName   string `split_words:"true" default:"postgres"`
	SSLMode  string `split_words:"true" default:"disable"`
}

type ServerConfig struct {
	Port            string        `split_words:"true" default:"8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"15s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

type JWTConfig struct {
	SigningKey string        `split_words:"true" default:"default-signing-key-change-in-production"`
	Issuer     string        `split_words:"true" default:"campus-portal"`
	Expiry     time.Duration `split_words:"true" default:"168h"`
}

type AuthConfig struct {
	// AutoProvision creates a STUDENT account on first login with an unknown email.
	AutoProvision bool `split_words:"true" default:"true"`
	// DefaultPassword is used when a login omits the password. Empty disables the fallback.
	DefaultPassword string        `split_words:"true"`
	CookieName      string        `split_words:"true" default:"token"`
	LoginRateLimit  int           `split_words:"true" default:"10"`
	LoginRateWindow time.Duration `split_words:"true" default:"1m"`
}

type RedisConfig struct {
	Addr     string `split_words:"true" default:"localhost:6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

type AWSConfig struct {
	Region          string `split_words:"true" default:"us-east-1"`
	AccessKeyID     string `split_words:"true"`
	SecretAccessKey string `split_words:"true"`
	// EndpointURL points the SDK at localstack in development.
	EndpointURL string `split_words:"true"`
	Bucket      string `split_words:"true" default:"campus-portal-audit"`
	FromEmail   string `split_words:"true" default:"no-reply@campus.edu"`
}

type LoggingConfig struct {
	Level      string `split_words:"true" default:"info"`
	Format     string `split_words:"true" default:"text"`
	Filename   string `split_words:"true" default:"logs/app.log"`
	MaxSize    int    `split_words:"true" default:"100"`
	MaxBackups int    `split_words:"true" default:"3"`
	MaxAge     int    `split_words:"true" default:"28"`
	Compress   bool   `split_words:"true" default:"true"`
}

type CORSConfig struct {
	AllowedOrigins   []string `split_words:"true" default:"http://localhost:3000"`
	AllowedMethods   []string `split_words:"true" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders   []string `split_words:"true" default:"Accept,Authorization,Content-Type"`
	ExposedHeaders   []string `split_words:"true" default:"Link"`
	AllowCredentials bool     `split_words:"true" default:"true"`
	MaxAge           int      `split_words:"true" default:"300"`
}

type SecurityConfig struct {
	FrameDeny          bool  `split_words:"true" default:"true"`
	ContentTypeNosniff bool  `split_words:"true" default:"true"`
	SSLRedirect        bool  `split_words:"true" default:"false"`
	STSSeconds         int64 `split_words:"true" default:"0"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWT.SigningKey == "" || c.JWT.SigningKey == defaultSigningKey) {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if c.JWT.Expiry <= 0 {
		return errors.New("JWT_EXPIRY must be positive")
	}
	if c.Auth.LoginRateLimit < 1 {
		return errors.New("AUTH_LOGIN_RATE_LIMIT must be at least 1")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
