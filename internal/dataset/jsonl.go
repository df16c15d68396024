// Package dataset reads and writes JSONL datasets and human annotation sheets.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/karlnotmarx/synthec/internal/models"
)

// EncodeJSONL writes one JSON document per line. Non-ASCII and HTML characters are kept as is.
func EncodeJSONL[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i+1, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeJSONL parses one JSON document per non-blank line.
func DecodeJSONL[T any](data []byte) ([]T, error) {
	var rows []T
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return rows, nil
}

// DecodeRecords parses a generated dataset and checks every label.
func DecodeRecords(data []byte) ([]models.GeneratedRecord, error) {
	rows, err := DecodeJSONL[models.GeneratedRecord](data)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if _, err := models.ParseLabel(string(r.Label)); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return rows, nil
}
