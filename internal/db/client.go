// Package db provides the MySQL-backed job store.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/kbase-go/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds MySQL connection configuration.
type Config struct {
	DSN string
}

// Client wraps a gorm connection to the job database.
type Client struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewClient opens a MySQL connection and runs migrations for the job table.
// TranslateError is enabled so duplicate-key inserts surface as
// gorm.ErrDuplicatedKey regardless of driver.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.Job{}); err != nil {
		return nil, fmt.Errorf("migrate job table: %w", err)
	}

	log.Info("job store connection established")
	return &Client{db: db, logger: log}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Info("closing job store connection")
	return sqlDB.Close()
}
