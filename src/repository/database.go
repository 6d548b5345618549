package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	app "photoalbum/src/app"
	cfg "photoalbum/src/configuration"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the database selected by DB_DRIVER.
func NewDatabase(props cfg.DatabaseProperties, log *logrus.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(props)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log, props.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", props.Driver, err)
	}
	return db, nil
}

// OpenInMemory opens a private in-memory sqlite database and migrates it.
func OpenInMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(name))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection keeps the shared in-memory database alive and free of lock errors.
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func dialectorFor(props cfg.DatabaseProperties) (gorm.Dialector, error) {
	switch props.Driver {
	case "sqlite":
		path := props.DSN
		if path == "" {
			path = props.Path
		}
		return sqlite.Open(path), nil
	case "postgres":
		dsn := props.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
				props.Host, props.User, props.Password, props.Name, props.Port, props.SSLMode)
		}
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := props.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				props.User, props.Password, props.Host, props.Port, props.Name)
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", props.Driver)
	}
}

// Migrate creates or updates the users, images, labels and image_labels tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&app.User{}, &app.Image{}, &app.Label{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

func newGormLogger(log *logrus.Logger, level string) logger.Interface {
	var lvl logger.LogLevel
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	default:
		lvl = logger.Warn
	}
	return logger.New(log, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

// translate maps persistence errors onto the application error taxonomy.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return app.NotFoundf("%s not found", what)
	case isDuplicate(err):
		return &app.Error{Kind: app.KindConflict, Message: what + " already exists", Err: err}
	default:
		return app.Internal("database error", err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}
