package chunk

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// CSVExtractor reads a CSV-formatted paper (e.g. an exported abstract/table
// dump) and flattens it into a single page of plain text, one row per
// line, fields joined by a single space.
type CSVExtractor struct{}

func (CSVExtractor) Extract(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("chunk: open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Document{}, fmt.Errorf("chunk: read csv %s: %w", path, err)
	}

	var sb strings.Builder
	for i, row := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(row, " "))
	}
	return Document{Text: sb.String()}, nil
}
