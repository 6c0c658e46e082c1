package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KretovDmitry/ordergate/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// Connect opens the order store, logs every query through logger
// and checks connectivity within timeout.
func Connect(ctx context.Context, dsn string, timeout time.Duration, logger logger.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open the database: %w", err)
	}

	// Log every query to the database.
	db = sqldblogger.OpenDriver(dsn, db.Driver(), logger,
		sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
	)

	// Check connectivity and DSN correctness.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	return db, nil
}
