package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"railwatch/internal/domain"
	"railwatch/internal/support"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

var (
	DB *gorm.DB

	ErrNotConfigured  = errors.New("database: connection was not initialised")
	ErrUnknownDriver  = errors.New("database: unknown driver")
	ErrDriverDisabled = errors.New("database: persistence disabled")
)

type Config struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
	Migrations  []any
}

type Option func(*Config)

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(dialector gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = dialector
	}
}

func WithAutoMigrate(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AutoMigrate = enabled
	}
}

// SetupDB opens the connection selected by DB_DRIVER unless an option
// supplies one, migrates the railwatch tables and stores the handle in DB.
// DB_DRIVER=none yields ErrDriverDisabled.
func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := Config{
		Logger:      silentLogger(),
		AutoMigrate: support.GetEnvBool("DB_AUTO_MIGRATE", true),
		Migrations:  defaultMigrations(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ExistingDB == nil && cfg.Dialector == nil {
		dialector, err := dialectorFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Dialector = dialector
	}

	switch {
	case cfg.ExistingDB != nil:
		DB = cfg.ExistingDB
	default:
		gormCfg := &gorm.Config{}
		if cfg.Logger != nil {
			gormCfg.Logger = cfg.Logger
		}
		db, err := gorm.Open(cfg.Dialector, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		DB = db
		configureConnectionPool(db)
	}

	if cfg.AutoMigrate && len(cfg.Migrations) > 0 {
		if err := DB.AutoMigrate(cfg.Migrations...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Info("Database migration completed.")
	}

	return DB, nil
}

// Close releases the pooled connections behind DB.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}

func dialectorFromEnv() (gorm.Dialector, error) {
	driver := strings.ToLower(support.GetEnv("DB_DRIVER", DriverSQLite))
	switch driver {
	case DriverSQLite:
		return sqlite.Open(support.GetEnv("DB_PATH", "railwatch.db")), nil
	case DriverPostgres:
		return postgres.Open(buildDSN()), nil
	case DriverNone:
		return nil, ErrDriverDisabled
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func buildDSN() string {
	dbHost := support.GetEnv("DB_HOST", "localhost")
	dbPort := support.GetEnv("DB_PORT", "5432")
	dbName := support.GetEnv("DB_NAME", "railwatch")
	dbUser := support.GetEnv("DB_USERNAME", "railwatch")
	dbPassword := support.GetEnv("DB_PASSWORD", "railwatch")
	sslMode := support.GetEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbHost,
		dbPort,
		dbUser,
		dbPassword,
		dbName,
		sslMode,
	)
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func defaultMigrations() []any {
	return []any{
		domain.ProxyHealth{},
		domain.ProxyCheck{},
	}
}

func configureConnectionPool(db *gorm.DB) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 8)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	connLifetime := support.GetEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	connIdle := support.GetEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute)

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connLifetime > 0 {
		sqlDB.SetConnMaxLifetime(connLifetime)
	}
	if connIdle > 0 {
		sqlDB.SetConnMaxIdleTime(connIdle)
	}
}
