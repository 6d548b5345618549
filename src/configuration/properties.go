package configuration

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type (
	Properties struct {
		LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

		Server  HttpServerProperties `envPrefix:"HTTP_"`
		Storage StorageProperties    `envPrefix:"STORAGE_"`
		S3      S3Properties         `envPrefix:"S3_"`
		DB      DatabaseProperties   `envPrefix:"DB_"`
		Auth    AuthProperties       `envPrefix:"AUTH_"`
		Sentry  SentryProperties     `envPrefix:"SENTRY_"`
	}

	HttpServerProperties struct {
		Name            string        `env:"NAME" envDefault:"photoalbum"`
		Port            string        `env:"PORT" envDefault:"3002"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
		MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
		CorsOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		Pprof           bool          `env:"PPROF" envDefault:"false"`
		ReleaseMode     bool          `env:"RELEASE_MODE" envDefault:"false"`
	}

	// StorageProperties selects the storage backend for the whole process.
	StorageProperties struct {
		Type      string        `env:"TYPE" envDefault:"local"`
		UploadDir string        `env:"UPLOAD_DIR" envDefault:"uploads"`
		BaseURL   string        `env:"BASE_URL" envDefault:"http://localhost:3002"`
		WriteTTL  time.Duration `env:"WRITE_TTL" envDefault:"900s"`
		ReadTTL   time.Duration `env:"READ_TTL" envDefault:"3600s"`
	}

	S3Properties struct {
		Host        string        `env:"HOST"`
		AccessKey   string        `env:"ACCESS_KEY"`
		SecretKey   string        `env:"SECRET_KEY"`
		Bucket      string        `env:"BUCKET"`
		Region      string        `env:"REGION" envDefault:"eu-central-1"`
		UseSSL      bool          `env:"USE_SSL" envDefault:"true"`
		ReadTimeout time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	}

	DatabaseProperties struct {
		Driver   string `env:"DRIVER" envDefault:"sqlite"`
		DSN      string `env:"DSN"`
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     int    `env:"PORT" envDefault:"5432"`
		User     string `env:"USER" envDefault:"postgres"`
		Password string `env:"PASSWORD" envDefault:"postgres"`
		Name     string `env:"NAME" envDefault:"postgres"`
		SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
		Path     string `env:"PATH" envDefault:"photoalbum.db"`
		LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
	}

	AuthProperties struct {
		Secret   string        `env:"SECRET" envDefault:"change-me"`
		TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

		OIDCIssuer   string `env:"OIDC_ISSUER"`
		OIDCClientID string `env:"OIDC_CLIENT_ID"`
		OIDCSecret   string `env:"OIDC_SECRET"`
		OIDCRedirect string `env:"OIDC_REDIRECT_URL" envDefault:"http://localhost:3002/auth/oidc/callback"`
	}

	SentryProperties struct {
		DSN         string `env:"DSN"`
		Environment string `env:"ENVIRONMENT" envDefault:"development"`
	}
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// ReadProperties loads the optional env file and parses the process environment.
// Values already present in the environment win over the file.
func ReadProperties() (*Properties, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read env file %s: %w", envFile, err)
	}

	config := &Properties{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (p *Properties) Validate() error {
	switch p.Storage.Type {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("unknown storage type %q (want %s or %s)", p.Storage.Type, StorageLocal, StorageS3)
	}
	switch p.DB.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", p.DB.Driver)
	}
	if p.Auth.Secret == "" {
		return errors.New("AUTH_SECRET must not be empty")
	}
	if p.Auth.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}
	return nil
}

// OIDCEnabled reports whether the optional OIDC sign-in is configured.
func (a AuthProperties) OIDCEnabled() bool {
	return a.OIDCIssuer != "" && a.OIDCClientID != ""
}
