// Package db adapts the Pool Store's raw *sql.DB: connection-with-retry,
// a background health flag, and a retrying transaction helper used by
// cmd/calleridpoold's serve entry point and pool commands (the migrate
// commands open their own plain *sql.DB).
package db

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "sync"
    "time"

    _ "github.com/go-sql-driver/mysql"

    "github.com/hamzaKhattat/callerid-pool/pkg/errors"
    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

// Config mirrors the subset of config.DatabaseConfig this package needs,
// kept separate so db does not import internal/config (avoids a cycle
// with packages config itself might eventually need from db).
type Config struct {
    Driver          string
    Host            string
    Port            int
    Username        string
    Password        string
    Database        string
    Charset         string
    MaxOpenConns    int
    MaxIdleConns    int
    ConnMaxLifetime time.Duration
    RetryAttempts   int
    RetryDelay      time.Duration
}

// DB wraps *sql.DB with a retrying connect, a background health flag, and
// a retrying transaction helper.
type DB struct {
    *sql.DB
    cfg    Config
    mu     sync.RWMutex
    health bool
}

// Open connects with up to cfg.RetryAttempts retries, backing off linearly
// by cfg.RetryDelay, and starts a background health-check loop.
func Open(ctx context.Context, cfg Config) (*DB, error) {
    charset := cfg.Charset
    if charset == "" {
        charset = "utf8mb4"
    }
    dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=UTC",
        cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, charset)

    var conn *sql.DB
    var err error

    for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
        conn, err = sql.Open(cfg.Driver, dsn)
        if err == nil {
            err = conn.PingContext(ctx)
            if err == nil {
                break
            }
        }

        if attempt < cfg.RetryAttempts {
            logger.WithField("attempt", attempt+1).WithError(err).Warn("database connection failed, retrying")
            select {
            case <-ctx.Done():
                return nil, ctx.Err()
            case <-time.After(cfg.RetryDelay * time.Duration(attempt+1)):
            }
        }
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to connect to database")
    }

    conn.SetMaxOpenConns(cfg.MaxOpenConns)
    conn.SetMaxIdleConns(cfg.MaxIdleConns)
    conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

    wrapper := &DB{DB: conn, cfg: cfg, health: true}
    go wrapper.healthCheck()

    logger.Info("database connection established")
    return wrapper, nil
}

func (db *DB) healthCheck() {
    ticker := time.NewTicker(30 * time.Second)
    defer ticker.Stop()

    for range ticker.C {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        err := db.PingContext(ctx)
        cancel()

        db.mu.Lock()
        wasHealthy := db.health
        db.health = err == nil
        db.mu.Unlock()

        if wasHealthy != db.health {
            if db.health {
                logger.Info("database connection recovered")
            } else {
                logger.WithError(err).Error("database connection lost")
            }
        }
    }
}

// IsHealthy reports the last background ping's outcome.
func (db *DB) IsHealthy() bool {
    db.mu.RLock()
    defer db.mu.RUnlock()
    return db.health
}

// Transaction retries fn on a retryable error, up to cfg.RetryAttempts times.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
    var err error
    for attempt := 0; attempt <= db.cfg.RetryAttempts; attempt++ {
        err = db.runTx(ctx, fn)
        if err == nil {
            return nil
        }
        if !isRetryableError(err) {
            return err
        }
        if attempt < db.cfg.RetryAttempts {
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(db.cfg.RetryDelay * time.Duration(attempt+1)):
                logger.WithField("attempt", attempt+1).WithError(err).Warn("transaction failed, retrying")
            }
        }
    }
    return errors.Wrap(err, errors.ErrDatabase, "transaction failed after retries")
}

func (db *DB) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
    tx, err := db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }

    defer func() {
        if p := recover(); p != nil {
            tx.Rollback()
            panic(p)
        }
    }()

    if err := fn(tx); err != nil {
        tx.Rollback()
        return err
    }
    return tx.Commit()
}

func isRetryableError(err error) bool {
    if err == nil {
        return false
    }
    errStr := strings.ToLower(err.Error())
    for _, substr := range []string{"connection refused", "connection reset", "broken pipe", "timeout", "deadlock", "try restarting transaction"} {
        if strings.Contains(errStr, substr) {
            return true
        }
    }
    return false
}
