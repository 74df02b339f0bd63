// Package bootstrap wires the process-wide dependencies the server needs
// before it can accept WebSocket connections: the relational database and
// its migrations, mirroring the teacher's own connect-then-migrate
// SetupDatabase entrypoint.
package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/collectline/lcse/internal/models"
	"github.com/collectline/lcse/pkg/config"
	"github.com/collectline/lcse/pkg/logger"
)

// SetupDatabase connects to the configured driver and migrates the
// CallRecord table, the only entity this engine owns (spec §1: the
// customer/loan schema belongs to an excluded CRUD layer).
func SetupDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("bootstrap: unsupported db driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connecting to database: %w", err)
	}

	if err := db.AutoMigrate(&models.CallRecord{}); err != nil {
		return nil, fmt.Errorf("bootstrap: migrating schema: %w", err)
	}

	logger.L().Info("database ready", zap.String("driver", cfg.DBDriver), zap.String("dsn", cfg.DSN))
	return db, nil
}

// SetupRedis connects the session-store backend. It does not ping eagerly:
// the store itself falls back to its local cache on a connection error
// (pkg/sessionstore).
func SetupRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
}
