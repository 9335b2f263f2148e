// Package render prints query results for terminal users.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/queryai/queryai/internal/query"
)

type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid format %q (want table, csv or json)", raw)
	}
}

func Write(w io.Writer, format Format, columns []string, rows [][]any) error {
	switch format {
	case FormatTable, "":
		return Table(w, columns, rows)
	case FormatCSV:
		return CSV(w, columns, rows)
	case FormatJSON:
		return JSON(w, columns, rows)
	default:
		return fmt.Errorf("invalid format %q", format)
	}
}

func Table(w io.Writer, columns []string, rows [][]any) error {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(columns)
	for _, row := range rows {
		table.Append(query.FormatRow(row))
	}
	table.Render()
	return nil
}

// TableString is Table rendered into a string, capped at maxRows rows when
// maxRows > 0.
func TableString(columns []string, rows [][]any, maxRows int) string {
	var b strings.Builder
	shown := rows
	if maxRows > 0 && len(rows) > maxRows {
		shown = rows[:maxRows]
	}
	_ = Table(&b, columns, shown)
	if len(shown) < len(rows) {
		fmt.Fprintf(&b, "(%d more rows not shown)\n", len(rows)-len(shown))
	}
	return b.String()
}

// CSV writes a header line followed by one record per row. NULL becomes an
// empty field.
func CSV(w io.Writer, columns []string, rows [][]any) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, value := range row {
			if value != nil {
				record[i] = query.FormatValue(value)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

type jsonDocument struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

func JSON(w io.Writer, columns []string, rows [][]any) error {
	if rows == nil {
		rows = [][]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonDocument{Columns: columns, Rows: rows, RowCount: len(rows)}); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
