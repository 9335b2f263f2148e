// Package sqldb executes generated statements against a database/sql pool.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/queryai/queryai/internal/database"
	"github.com/queryai/queryai/internal/query"
)

var limitableExpr = regexp.MustCompile(`(?i)^\s*(select|with)\b`)

type Engine struct {
	DB      *sql.DB
	Dialect database.Dialect
}

func NewEngine(db *database.DB) *Engine {
	return &Engine{DB: db.DB, Dialect: db.Dialect()}
}

// Execute runs one statement inside its own transaction. The transaction is
// read-only where the driver supports it and is always rolled back.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("database is required")
	}
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 && limitableExpr.MatchString(sqlText) {
		// The newline keeps a trailing "--" comment from swallowing the wrapper.
		sqlText = fmt.Sprintf("SELECT * FROM (%s\n) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	start := time.Now()
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: e.Dialect.SupportsReadOnlyTx()})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range e.Dialect.SessionGuards() {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return query.Result{}, fmt.Errorf("apply session guard %q: %w", statement, err)
		}
	}

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := ScanRows(rows)
	if err != nil {
		return query.Result{}, err
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// ScanRows drains rows into column names and normalized value tuples.
func ScanRows(rows *sql.Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, query.NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}
