// Package agent exposes a read-only SQL surface so external analysis tools
// and AI agents can query Attriflow attribution data directly.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

// SchemaResponse is the response format for the schema endpoint
type SchemaResponse struct {
	Schema   string            `json:"schema"`
	Concepts map[string]string `json:"concepts"`
}

// SQLRequest is the request format for the SQL endpoint
type SQLRequest struct {
	SQL string `json:"sql"`
}

// SQLResponse is the response format for the SQL endpoint
type SQLResponse struct {
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	RowCount int             `json:"row_count"`
}

// GetSchema returns the database schema with attribution concepts agents need
// to write correct queries
func GetSchema(db *gorm.DB) (*SchemaResponse, error) {
	schema, err := GetDatabaseSchema(db)
	if err != nil {
		return nil, err
	}

	return &SchemaResponse{
		Schema: schema,
		Concepts: map[string]string{
			"journeys":         "customer_journeys rows are one customer's path to conversion. status is 'active', 'completed' or 'abandoned'.",
			"touchpoints":      "touchpoints order within a journey by position (1-based). channel is the classified marketing channel.",
			"credits":          "attribution_results hold per-touchpoint credit in [0,1]. Credits for one (journey_id, model_id) pair sum to 1.0.",
			"attributed_value": "attributed_value = journey conversion_value * credit. Journeys without a conversion carry 0.",
			"models":           "attribution_models define scoring strategies. Restrict comparisons to is_active = 1; exactly one row has is_default = 1.",
			"insights":         "attribution_insights are per-channel rollups keyed by (model_id, window_start, window_end).",
			"time_filtering":   "All timestamps are UTC. Use touchpoints.timestamp for touches and customer_journeys.journey_end for conversions.",
		},
	}, nil
}

// GetDatabaseSchema returns the CREATE TABLE statements from sqlite_master
// as a single DDL blob.
func GetDatabaseSchema(db *gorm.DB) (string, error) {
	var statements []string
	if err := db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND sql IS NOT NULL").
		Scan(&statements).Error; err != nil {
		return "", err
	}
	return strings.Join(statements, ";\n") + ";", nil
}

var (
	stringLiteralRe = regexp.MustCompile(`'[^']*'`)
	whitespaceRe    = regexp.MustCompile(`\s+`)

	// Anything that writes, changes schema, or escapes the sandbox.
	forbiddenKeywordRe = regexp.MustCompile(`\b(insert|update|delete|drop|alter|create|truncate|replace|grant|revoke|exec|execute|call|pragma|attach|detach|vacuum|reindex|load_extension|writefile|readfile)\b`)
)

// ValidateReadOnlyQuery rejects anything but a single plain SELECT (or CTE).
// String literals are blanked first so a value like '/delete-account' does
// not trip the keyword check.
func ValidateReadOnlyQuery(sqlQuery string) error {
	if strings.Contains(sqlQuery, "/*") || strings.Contains(sqlQuery, "--") {
		return fmt.Errorf("comments not allowed in queries")
	}
	if strings.Count(sqlQuery, ";") > 1 {
		return fmt.Errorf("multiple statements not allowed")
	}

	normalized := stringLiteralRe.ReplaceAllString(sqlQuery, "''")
	normalized = strings.ToLower(normalized)
	normalized = strings.TrimSpace(whitespaceRe.ReplaceAllString(normalized, " "))

	if !strings.HasPrefix(normalized, "select ") && !strings.HasPrefix(normalized, "with ") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	if match := forbiddenKeywordRe.FindString(normalized); match != "" {
		return fmt.Errorf("dangerous operation not allowed: %s", match)
	}
	return nil
}

// ExecuteQuery validates and runs a query under a timeout, returning columns
// and rows in a JSON-friendly shape.
func ExecuteQuery(ctx context.Context, db *gorm.DB, sqlQuery string, timeout time.Duration) (*SQLResponse, error) {
	if err := ValidateReadOnlyQuery(sqlQuery); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.WithContext(queryCtx).Raw(sqlQuery).Rows()
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var resultRows [][]interface{}
	for rows.Next() {
		scanned := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}

		// SQLite hands TEXT back as []byte; stringify for JSON
		for i, val := range scanned {
			if b, ok := val.([]byte); ok {
				scanned[i] = string(b)
			}
		}
		resultRows = append(resultRows, scanned)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &SQLResponse{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
