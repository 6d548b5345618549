package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "photoalbum/src/app"
	cfg "photoalbum/src/configuration"
	"photoalbum/src/repository"
	server "photoalbum/src/server"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "photoalbum",
		Short:        "Photo album backend: accounts, image uploads and labels",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, log, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config, log)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(*cobra.Command, []string) error {
			config, log, err := setup()
			if err != nil {
				return err
			}
			db, err := repository.NewDatabase(config.DB, log)
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return err
			}
			log.WithField("driver", config.DB.Driver).Info("database migrated")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func setup() (*cfg.Properties, *logrus.Logger, error) {
	config, err := cfg.ReadProperties()
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(config.LogLevel, config.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return config, log, nil
}

func newLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

func serve(ctx context.Context, config *cfg.Properties, log *logrus.Logger) error {
	if config.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.Sentry.DSN,
			Environment: config.Sentry.Environment,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := repository.NewDatabase(config.DB, log)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}

	backend, err := newBackend(ctx, config, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	images := app.NewImageService(app.ImageServiceConfig{
		Images:   repository.NewImageRepository(db),
		Labels:   repository.NewLabelRepository(db),
		Backend:  backend,
		Metrics:  app.NewMetrics(registry),
		Log:      log,
		WriteTTL: config.Storage.WriteTTL,
		ReadTTL:  config.Storage.ReadTTL,
	})
	auth := app.NewAuthService(
		repository.NewUserRepository(db),
		app.NewTokenIssuer(config.Auth.Secret, config.Auth.TokenTTL),
		repository.NewRevokedTokens(),
		log,
	)

	var oidcLogin *server.OIDCLogin
	if config.Auth.OIDCEnabled() {
		if oidcLogin, err = server.NewOIDCLogin(ctx, config.Auth); err != nil {
			return err
		}
		log.WithField("issuer", config.Auth.OIDCIssuer).Info("OIDC sign-in enabled")
	}

	return server.NewServer(server.Options{
		Config:   config,
		Images:   images,
		Auth:     auth,
		OIDC:     oidcLogin,
		Registry: registry,
		Log:      log,
	}).Run(ctx)
}

// newBackend builds the storage backend chosen by STORAGE_TYPE. An S3
// backend without bucket or endpoint still starts; signing then fails per
// request.
func newBackend(ctx context.Context, config *cfg.Properties, log *logrus.Logger) (app.StorageBackend, error) {
	opts := app.StorageOptions{
		Kind:      app.StorageKind(config.Storage.Type),
		UploadDir: config.Storage.UploadDir,
		BaseURL:   config.Storage.BaseURL,
	}
	if opts.Kind == app.StorageS3 {
		client, err := app.NewMinioS3Client(
			config.S3.Host,
			config.S3.AccessKey,
			config.S3.SecretKey,
			config.S3.Bucket,
			config.S3.Region,
			config.S3.UseSSL)
		if err != nil {
			return nil, err
		}
		if !client.Configured() {
			log.Warn("S3 storage selected but S3_HOST or S3_BUCKET is empty")
		} else {
			checkCtx, cancel := context.WithTimeout(ctx, config.S3.ReadTimeout)
			if err := client.CheckBucket(checkCtx); err != nil {
				log.WithError(err).WithField("bucket", client.Bucket()).Warn("S3 bucket check failed")
			}
			cancel()
		}
		opts.S3 = client
	}
	return app.NewStorageBackend(opts)
}
