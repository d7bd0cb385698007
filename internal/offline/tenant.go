package offline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// SQLiteTenantDatabase resets the local product database by dropping every
// user table and replaying Schema.
type SQLiteTenantDatabase struct {
	Path   string
	Schema []string
	logger *zap.Logger
}

func NewSQLiteTenantDatabase(path string, schema []string, logger *zap.Logger) *SQLiteTenantDatabase {
	return &SQLiteTenantDatabase{
		Path:   path,
		Schema: schema,
		logger: logger.Named("TenantDatabase"),
	}
}

// LoadSchemaFile reads a SQL script to replay after a reset. The script is
// kept whole; the sqlite driver executes every statement in it.
func LoadSchemaFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant schema: %w", err)
	}
	script := strings.TrimSpace(string(data))
	if script == "" {
		return nil, fmt.Errorf("tenant schema %s is empty", path)
	}
	return []string{script}, nil
}

func (t *SQLiteTenantDatabase) Reset(ctx context.Context) error {
	db, err := sql.Open("sqlite", t.Path)
	if err != nil {
		return fmt.Errorf("failed to open tenant database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("failed to list tenant tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list tenant tables: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	for _, name := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", name, err)
		}
	}
	for _, stmt := range t.Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to recreate tenant schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant reset: %w", err)
	}

	t.logger.Info("Tenant database reset", zap.String("path", t.Path), zap.Int("dropped_tables", len(tables)))
	return nil
}
