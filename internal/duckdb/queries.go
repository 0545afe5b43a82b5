package duckdb

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// MaxQueryRows caps the rows returned by ExecuteQuery.
const MaxQueryRows = 1000

// dangerousKeywordPattern matches write and admin keywords at word
// boundaries, so "RESET" does not match "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// validateReadOnly rejects anything but a single SELECT or WITH statement.
func validateReadOnly(query string) error {
	if strings.Contains(query, ";") {
		return fmt.Errorf("duckdb: query must not contain semicolons")
	}
	stripped := strings.TrimSpace(stripSQLComments(query))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("duckdb: only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return fmt.Errorf("duckdb: query contains disallowed keyword: %s", strings.ToUpper(match))
	}
	return nil
}

// ExecuteQuery runs a read-only SQL query and returns at most MaxQueryRows
// rows as column maps.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)
	if err := validateReadOnly(trimmed); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() && len(results) < MaxQueryRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable description of the index
// tables for SQL clients.
func (s *Store) GetSchemaDescription() string {
	return `Table 'records': file_id (VARCHAR), app_id (VARCHAR), context_id (VARCHAR), ` +
		`message_type (VARCHAR), seq (INTEGER: position within its message type), ` +
		`ts (VARCHAR: row timestamp as exported), ts_unix (DOUBLE: ts as Unix seconds, NULL if unparseable), ` +
		`payload (JSON: the decoded record). ` +
		`Table 'files': file_id (VARCHAR), path (VARCHAR), fingerprint (VARCHAR: BLAKE3 of the source), ` +
		`records (BIGINT), indexed_at (TIMESTAMP). ` +
		`View 'message_types': file_id, app_id, context_id, message_type, records, first_ts, last_ts.`
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"files", "records"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}
