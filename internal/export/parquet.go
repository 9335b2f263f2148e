package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/queryai/queryai/internal/query"
)

// writeParquet stores every column as an optional UTF8 string. Result sets
// come from arbitrary statements so there is no stable Go type to derive a
// schema from.
func writeParquet(w io.Writer, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("parquet export needs at least one column")
	}
	names := parquetColumnNames(columns)
	group := make(parquet.Group, len(names))
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("result", group)

	indexes := make([]int, len(names))
	for i, name := range names {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return fmt.Errorf("parquet column %q missing from schema", name)
		}
		indexes[i] = leaf.ColumnIndex
	}

	encoded := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		out := make(parquet.Row, len(names))
		for i := range names {
			idx := indexes[i]
			if i >= len(row) || row[i] == nil {
				out[idx] = parquet.NullValue().Level(0, 0, idx)
				continue
			}
			out[idx] = parquet.ByteArrayValue([]byte(query.FormatValue(row[i]))).Level(0, 1, idx)
		}
		encoded = append(encoded, out)
	}

	writer := parquet.NewWriter(w, schema)
	if _, err := writer.WriteRows(encoded); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// parquetColumnNames makes result column names usable as parquet fields:
// blanks become column_N and repeats get _2, _3 suffixes.
func parquetColumnNames(columns []string) []string {
	names := make([]string, len(columns))
	seen := make(map[string]int, len(columns))
	for i, column := range columns {
		name := strings.TrimSpace(column)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for seen[name] > 0 {
			seen[base]++
			name = base + "_" + strconv.Itoa(seen[base])
		}
		seen[name]++
		names[i] = name
	}
	return names
}
