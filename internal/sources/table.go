package sources

import (
	"fmt"
	"strings"

	"tw-screener/pkg/utils"
)

// table is the fields/data layout shared by the TWSE and TPEx JSON reports.
type table struct {
	Title  string          `json:"title"`
	Fields []string        `json:"fields"`
	Data   [][]interface{} `json:"data"`
}

// col returns the index of the first field equal to one of names, or -1.
func (t table) col(names ...string) int {
	for _, name := range names {
		for i, f := range t.Fields {
			if strings.TrimSpace(f) == name {
				return i
			}
		}
	}
	return -1
}

func (t table) has(names ...string) bool {
	for _, n := range names {
		if t.col(n) < 0 {
			return false
		}
	}
	return true
}

// cell renders a JSON cell as trimmed text; out of range yields "".
func cell(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func cellNumber(row []interface{}, idx int) (float64, bool) {
	return utils.ParseNumber(cell(row, idx))
}

// cellInt parses a comma-formatted integer. Unparseable cells are 0.
func cellInt(row []interface{}, idx int) int64 {
	v, ok := cellNumber(row, idx)
	if !ok {
		return 0
	}
	return int64(v)
}
