// Package export writes a query result to a file or an object store in
// csv, json or parquet form.
package export

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/queryai/queryai/internal/render"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts csv, json or parquet. An empty value returns "" so the
// caller can infer the format from the destination.
func ParseFormat(raw string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(raw))); format {
	case "", FormatCSV, FormatJSON, FormatParquet:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv, json or parquet)", raw)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(p string) (Format, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	case ".parquet", ".pq":
		return FormatParquet, true
	}
	return "", false
}

func (f Format) Extension() string {
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Write encodes columns and rows in format.
func Write(w io.Writer, format Format, columns []string, rows [][]any) error {
	switch format {
	case FormatCSV:
		return render.CSV(w, columns, rows)
	case FormatJSON:
		return render.JSON(w, columns, rows)
	case FormatParquet:
		return writeParquet(w, columns, rows)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
