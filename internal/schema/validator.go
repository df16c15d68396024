// Package schema checks parsed model output against the generated-record shape.
package schema

import (
	"fmt"
	"sort"

	"github.com/karlnotmarx/synthec/internal/models"
)

const (
	fieldParagraph = "paragraph"
	fieldLabel     = "label"
)

// Violation describes the first schema violation found. Index is -1 for array-level problems.
type Violation struct {
	Index  int
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	switch {
	case v.Index < 0:
		return v.Reason
	case v.Field == "":
		return fmt.Sprintf("item %d: %s", v.Index, v.Reason)
	}
	return fmt.Sprintf("item %d: field %q: %s", v.Index, v.Field, v.Reason)
}

// Validate reports whether data is an array of objects holding exactly a string "paragraph"
// and a "label" from the closed label set. Matching is strict and data is never modified.
func Validate(data any) (bool, error) {
	items, ok := data.([]any)
	if !ok {
		return false, &Violation{Index: -1, Reason: fmt.Sprintf("expected a JSON array, got %s", kindOf(data))}
	}

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return false, &Violation{Index: i, Reason: fmt.Sprintf("expected an object, got %s", kindOf(item))}
		}
		if err := validateItem(i, obj); err != nil {
			return false, err
		}
	}
	return true, nil
}

func validateItem(i int, obj map[string]any) *Violation {
	for _, f := range []string{fieldParagraph, fieldLabel} {
		if _, ok := obj[f]; !ok {
			return &Violation{Index: i, Field: f, Reason: "required field is missing"}
		}
	}

	var extra []string
	for k := range obj {
		if k != fieldParagraph && k != fieldLabel {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &Violation{Index: i, Field: extra[0], Reason: "unexpected field"}
	}

	if _, ok := obj[fieldParagraph].(string); !ok {
		return &Violation{Index: i, Field: fieldParagraph, Reason: fmt.Sprintf("expected a string, got %s", kindOf(obj[fieldParagraph]))}
	}

	label, ok := obj[fieldLabel].(string)
	if !ok {
		return &Violation{Index: i, Field: fieldLabel, Reason: fmt.Sprintf("expected a string, got %s", kindOf(obj[fieldLabel]))}
	}
	if !models.Label(label).Valid() {
		return &Violation{Index: i, Field: fieldLabel, Reason: fmt.Sprintf("%q is not one of %v", label, models.Labels())}
	}
	return nil
}

// Records validates data and converts it into typed records.
func Records(data any) ([]models.GeneratedRecord, error) {
	if ok, err := Validate(data); !ok {
		return nil, err
	}
	items := data.([]any)
	out := make([]models.GeneratedRecord, 0, len(items))
	for _, item := range items {
		obj := item.(map[string]any)
		out = append(out, models.GeneratedRecord{
			Paragraph: obj[fieldParagraph].(string),
			Label:     models.Label(obj[fieldLabel].(string)),
		})
	}
	return out, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
