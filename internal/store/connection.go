package store

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
}

type ConnectionConfig struct {
	Driver          string
	DatabaseURL     string
	IsDevelopment   bool
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewConnection opens postgres or sqlite with default pool settings and
// migrates the snapshot tables
func NewConnection(driver, databaseURL string, isDevelopment bool) (*DB, error) {
	return NewConnectionWithConfig(ConnectionConfig{
		Driver:          driver,
		DatabaseURL:     databaseURL,
		IsDevelopment:   isDevelopment,
		MaxIdleConns:    10,
		MaxOpenConns:    50,
		ConnMaxLifetime: time.Hour,
	})
}

func NewConnectionWithConfig(config ConnectionConfig) (*DB, error) {
	logLevel := logger.Error
	if config.IsDevelopment {
		logLevel = logger.Info
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case "postgres", "":
		dialector = postgres.Open(config.DatabaseURL)
	case "sqlite":
		dialector = sqlite.Open(config.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if config.Driver == "sqlite" {
		// an in-memory sqlite database lives on a single connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn := &DB{db}
	if err := conn.Migrate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"driver":         config.Driver,
		"max_open_conns": config.MaxOpenConns,
	}).Info("Database connection established successfully")

	return conn, nil
}

// Migrate creates or updates the snapshot tables
func (db *DB) Migrate() error {
	if err := db.AutoMigrate(&SnapshotRecord{}, &TeamRecord{}, &PlayerRecord{}); err != nil {
		return fmt.Errorf("failed to migrate snapshot tables: %w", err)
	}
	return nil
}

func (db *DB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
