// Package schema builds the textual schema summary handed to the SQL
// generator: tables, column types and a few sample rows per table.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/queryai/queryai/internal/database"
	"github.com/queryai/queryai/internal/query"
)

const DefaultSampleRows = 3

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Schema      string   `json:"schema,omitempty"`
	Name        string   `json:"name"`
	Columns     []Column `json:"columns"`
	SampleRows  [][]any  `json:"sample_rows,omitempty"`
	Unavailable string   `json:"unavailable,omitempty"`
}

// QualifiedName is the name the generator should use in FROM clauses.
func (t Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

type Summary struct {
	Dialect database.Dialect `json:"dialect"`
	Tables  []Table          `json:"tables"`
}

func (s Summary) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		names = append(names, table.QualifiedName())
	}
	return names
}

// Text renders the summary in the prompt format:
//
//	Table users: id (INTEGER), name (TEXT)
//	  sample rows:
//	    1 | Alice
//	Table secret: (unavailable: permission denied)
func (s Summary) Text() string {
	if len(s.Tables) == 0 {
		return "(no tables)"
	}
	var b strings.Builder
	for i, table := range s.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Table ")
		b.WriteString(table.QualifiedName())
		b.WriteString(": ")
		if len(table.Columns) == 0 {
			b.WriteString("(unavailable: ")
			b.WriteString(unavailableReason(table.Unavailable))
			b.WriteString(")")
			continue
		}
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, column.Name+" ("+column.Type+")")
		}
		b.WriteString(strings.Join(columns, ", "))
		switch {
		case table.Unavailable != "":
			b.WriteString("\n  sample rows: (unavailable: ")
			b.WriteString(table.Unavailable)
			b.WriteString(")")
		case len(table.SampleRows) > 0:
			b.WriteString("\n  sample rows:")
			for _, row := range table.SampleRows {
				b.WriteString("\n    ")
				b.WriteString(FormatRow(row))
			}
		}
	}
	return b.String()
}

// FormatRow joins values with " | ", rendering nil as NULL.
func FormatRow(row []any) string {
	return strings.Join(query.FormatRow(row), " | ")
}

func unavailableReason(reason string) string {
	if reason == "" {
		return "no columns"
	}
	return reason
}

type Introspector struct {
	DB      *sql.DB
	Dialect database.Dialect
	// Engine reads sample rows. A nil Engine or SampleRows <= 0 skips them.
	Engine     query.Engine
	SampleRows int
}

func NewIntrospector(db *database.DB, engine query.Engine, sampleRows int) *Introspector {
	return &Introspector{DB: db.DB, Dialect: db.Dialect(), Engine: engine, SampleRows: sampleRows}
}

// Summarize lists every table with its columns and sample rows. Per-table
// failures are recorded on the table; only failing to list tables is an error.
func (i *Introspector) Summarize(ctx context.Context) (Summary, error) {
	if i.DB == nil {
		return Summary{}, fmt.Errorf("database is required")
	}
	catalog := catalogFor(i.Dialect)

	tables, err := i.listTables(ctx, catalog)
	if err != nil {
		return Summary{}, err
	}

	for idx := range tables {
		columns, err := i.listColumns(ctx, catalog, tables[idx])
		if err != nil {
			tables[idx].Unavailable = err.Error()
			continue
		}
		if len(columns) == 0 {
			tables[idx].Unavailable = "no readable columns"
			continue
		}
		tables[idx].Columns = columns

		if i.Engine == nil || i.SampleRows <= 0 {
			continue
		}
		result, err := i.Engine.Execute(ctx, query.Request{
			SQL:      "SELECT * FROM " + quoteQualified(i.Dialect, tables[idx]) + " LIMIT " + strconv.Itoa(i.SampleRows),
			RowLimit: i.SampleRows,
		})
		if err != nil {
			tables[idx].Unavailable = err.Error()
			continue
		}
		tables[idx].SampleRows = result.Rows
	}

	return Summary{Dialect: i.Dialect, Tables: tables}, nil
}

func (i *Introspector) listTables(ctx context.Context, catalog catalogQueries) ([]Table, error) {
	rows, err := i.DB.QueryContext(ctx, catalog.tables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]Table, 0)
	for rows.Next() {
		var schemaName, tableName string
		if err := rows.Scan(&schemaName, &tableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if schemaName == catalog.defaultSchema {
			schemaName = ""
		}
		tables = append(tables, Table{Schema: schemaName, Name: tableName})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (i *Introspector) listColumns(ctx context.Context, catalog catalogQueries, table Table) ([]Column, error) {
	schemaName := table.Schema
	if schemaName == "" {
		schemaName = catalog.defaultSchema
	}
	args := []any{schemaName, table.Name}
	if catalog.columnsByTableOnly {
		args = []any{table.Name}
	}

	rows, err := i.DB.QueryContext(ctx, catalog.columns, args...)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var column Column
		var dataType sql.NullString
		if err := rows.Scan(&column.Name, &dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		column.Type = strings.ToUpper(strings.TrimSpace(dataType.String))
		if column.Type == "" {
			column.Type = "ANY"
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}
