package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"punchclock.service/internal/config"
)

// NewInstrumentedConnection opens a pool whose queries are traced as child
// spans of the calling request or message.
func NewInstrumentedConnection(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := otelsql.Open("pgx", DSN(cfg),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	return db, ping(ctx, db)
}
