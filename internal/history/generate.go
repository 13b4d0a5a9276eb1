package history

// schema.sql is a reference copy of the migrated schema for reviewers and
// ad-hoc sqlite3 sessions. Regenerate it after adding a migration:
//   go generate ./internal/history

//go:generate sh -c "cd ../.. && go run internal/history/tools/generate_schema.go"
