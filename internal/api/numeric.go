package api

// NumericColumns returns the indexes of columns whose non-null values are all
// numbers. Columns with no non-null value are left out.
func NumericColumns(columns []string, rows [][]any) []int {
	out := []int{}
	for idx := range columns {
		seen := false
		numeric := true
		for _, row := range rows {
			if idx >= len(row) || row[idx] == nil {
				continue
			}
			seen = true
			if !isNumber(row[idx]) {
				numeric = false
				break
			}
		}
		if seen && numeric {
			out = append(out, idx)
		}
	}
	return out
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
