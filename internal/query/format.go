package query

import (
	"fmt"
	"time"
)

// FormatValue renders a scanned value as display text. nil becomes NULL.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

func FormatRow(row []any) []string {
	cells := make([]string, 0, len(row))
	for _, value := range row {
		cells = append(cells, FormatValue(value))
	}
	return cells
}
