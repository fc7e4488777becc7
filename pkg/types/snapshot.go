package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Snapshot is a point-in-time, fully materialized copy of a table.
type Snapshot struct {
	// Table is the name of the table the snapshot was taken from
	Table string `json:"table"`

	// Columns lists the attribute names in definition order
	Columns []string `json:"columns"`

	// Rows holds every row in store order, each with its row identifier
	Rows []SnapshotRow `json:"rows"`
}

// SnapshotRow is one row of a snapshot.
type SnapshotRow struct {
	RowID  int64 `json:"rowid"`
	Values []any `json:"values"`
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	return len(s.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (s *Snapshot) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of one column in row order.
func (s *Snapshot) Column(name string) ([]any, bool) {
	idx := s.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(s.Rows))
	for i, row := range s.Rows {
		out[i] = row.Values[idx]
	}
	return out, true
}

// Row returns the row with the given row identifier.
func (s *Snapshot) Row(rowID int64) (SnapshotRow, bool) {
	for _, row := range s.Rows {
		if row.RowID == rowID {
			return row, true
		}
	}
	return SnapshotRow{}, false
}

// String renders the snapshot as a right-aligned text table with the row
// identifier as the leading, unlabeled column:
//
//	   i  j  bondorder
//	1  1  2          1
func (s *Snapshot) String() string {
	cells := make([][]string, len(s.Rows))
	idWidth := 0
	widths := make([]int, len(s.Columns))
	for i, c := range s.Columns {
		widths[i] = len(c)
	}
	for r, row := range s.Rows {
		line := make([]string, len(row.Values)+1)
		line[0] = strconv.FormatInt(row.RowID, 10)
		if len(line[0]) > idWidth {
			idWidth = len(line[0])
		}
		for i, v := range row.Values {
			line[i+1] = FormatValue(v)
			if i < len(widths) && len(line[i+1]) > widths[i] {
				widths[i] = len(line[i+1])
			}
		}
		cells[r] = line
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", idWidth))
	for i, c := range s.Columns {
		b.WriteString("  ")
		b.WriteString(padLeft(c, widths[i]))
	}
	for _, line := range cells {
		b.WriteByte('\n')
		b.WriteString(padLeft(line[0], idWidth))
		for i, cell := range line[1:] {
			b.WriteString("  ")
			if i < len(widths) {
				b.WriteString(padLeft(cell, widths[i]))
			} else {
				b.WriteString(cell)
			}
		}
	}
	return b.String()
}

// FormatValue renders a single stored value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return "x'" + hex.EncodeToString(x) + "'"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
