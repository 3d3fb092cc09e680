package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"fondos/internal/config"
)

const codeUniqueViolation = "23505"

// NewDB creates a new PostgreSQL connection pool.
func NewDB(cfg *config.DBConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// pgDetail returns the detail and constraint of a PostgreSQL error as a
// suffix for wrapped messages, or "" when there is nothing to add.
func pgDetail(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	var out string
	if pgErr.Detail != "" {
		out += " (" + pgErr.Detail + ")"
	}
	if pgErr.ConstraintName != "" {
		out += " [" + pgErr.ConstraintName + "]"
	}
	return out
}
