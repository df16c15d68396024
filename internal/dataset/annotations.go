package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/karlnotmarx/synthec/internal/models"
)

// ErrMissingColumn is returned when an annotation sheet lacks the id or label column.
var ErrMissingColumn = errors.New("annotation sheet must contain columns: id,label")

// Annotations are one annotator's labels keyed by item id, in file order.
type Annotations struct {
	IDs    []string
	Labels map[string]string
}

// Label returns the label given to id.
func (a *Annotations) Label(id string) (string, bool) {
	l, ok := a.Labels[id]
	return l, ok
}

// LoadAnnotations parses a CSV or XLSX sheet chosen by the file extension of name.
// Labels are lowercased; they are not checked against the label set here.
func LoadAnnotations(name string, data []byte) (*Annotations, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		rows, err = xlsxRows(data)
	default:
		rows, err = csvRows(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	ann, err := fromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ann, nil
}

func csvRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func xlsxRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func fromRows(rows [][]string) (*Annotations, error) {
	if len(rows) == 0 {
		return nil, ErrMissingColumn
	}
	idCol, labelCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idCol = i
		case "label":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("%w, found %v", ErrMissingColumn, rows[0])
	}

	ann := &Annotations{Labels: make(map[string]string, len(rows)-1)}
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		id := strings.TrimSpace(cell(row, idCol))
		if id == "" {
			return nil, fmt.Errorf("row %d: empty id", n+2)
		}
		if _, dup := ann.Labels[id]; dup {
			return nil, fmt.Errorf("row %d: duplicate id %q", n+2, id)
		}
		ann.IDs = append(ann.IDs, id)
		ann.Labels[id] = strings.ToLower(strings.TrimSpace(cell(row, labelCol)))
	}
	return ann, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// EncodeRecordsCSV writes records as id,paragraph,label with 1-based ids.
func EncodeRecordsCSV(records []models.GeneratedRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"id", "paragraph", "label"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write([]string{strconv.Itoa(i + 1), r.Paragraph, string(r.Label)}); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
