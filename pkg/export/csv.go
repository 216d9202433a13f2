// Package export renders decoded messages into flat tabular formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/hsterling/chronoview/pkg/message"
)

// WriteCSV writes messages as CSV. The header row is the union of all
// flattened field paths in first-appearance order; nested fields use dot
// notation and every row carries the _index, _offset, and _type meta
// columns.
func WriteCSV(w io.Writer, messages []*message.Message) error {
	columns, rows := flattenAll(messages)

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func flattenAll(messages []*message.Message) ([]string, []map[string]string) {
	var columns []string
	seen := make(map[string]bool)
	rows := make([]map[string]string, 0, len(messages))

	for _, m := range messages {
		keys, row := m.Flatten()
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		rows = append(rows, row)
	}
	return columns, rows
}
