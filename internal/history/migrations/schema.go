package migrations

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaHeader starts every generated schema file.
const SchemaHeader = `-- This file is generated from the migration files.
-- DO NOT EDIT MANUALLY. Run 'go generate ./internal/history' to regenerate.
-- Source: internal/history/migrations/files/*.sql

`

// Schema returns the CREATE statements of a migrated database, tables
// first, then indexes, each group ordered by name. SQLite internals and the
// schema_migrations table are left out.
func Schema(db *sql.DB) (string, error) {
	query := `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		  END,
		  name
	`

	rows, err := db.Query(query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString(SchemaHeader)
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}
	return b.String(), nil
}
