// Package draft holds in-progress sub-items. A single Builder is driven by a
// per-type Schema: field specs with defaults, cascade rules that clear stale
// dependent fields, and cross-field validation rules.
package draft

import (
	"encoding/json"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"
)

// FieldKind controls masking, validation and serialization of a field
type FieldKind int

const (
	Text FieldKind = iota
	Amount
	Percent
	Integer
	Date
	Bool
	Ref
	Choice
)

var (
	// amountMask allows digits with at most two decimals. Partial input such
	// as "" or "12." is accepted so a field can be typed incrementally. A lone
	// "." is not.
	amountMask  = regexp.MustCompile(`^(\d+(\.\d{0,2})?|\.\d{1,2})?$`)
	integerMask = regexp.MustCompile(`^\d*$`)
)

// Field describes one attribute of a sub-item
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Default  string
	Required bool
	Choices  []string
}

// Cascade clears dependent fields whenever Field holds any value other than
// KeepWhen.
type Cascade struct {
	Field    string
	KeepWhen string
	Clears   []string
}

// Rule is a cross-field check. It returns a user-facing message, or "" when
// the draft passes.
type Rule func(d Draft) string

// Schema is the per-type definition a Builder works from
type Schema struct {
	Name     string
	Fields   []Field
	Cascades []Cascade
	Rules    []Rule
	// Derive recomputes calculated fields after an edit of changed. A derived
	// field is cleared when changed is one of its inputs and was emptied.
	// Optional.
	Derive func(values map[string]string, changed string)
	// AmountField is the field whose value counts toward the order amount.
	AmountField string

	index map[string]int
}

// indexed builds the field index. Schemas are shared between sessions, so
// this runs once at registration and the index is read-only afterwards.
func (s *Schema) indexed() *Schema {
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		s.index[f.Name] = i
	}
	return s
}

func (s *Schema) field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Draft is an immutable snapshot of a sub-item being edited
type Draft struct {
	schema string
	values map[string]string
}

// Schema returns the schema name
func (d Draft) Schema() string {
	return d.schema
}

// Get returns the raw value of a field
func (d Draft) Get(field string) string {
	return d.values[field]
}

// Currency returns the currency reference carried by the draft
func (d Draft) Currency() string {
	return d.values[FieldCurrency]
}

// Values returns a copy of all field values
func (d Draft) Values() map[string]string {
	out := make(map[string]string, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// IsZero reports whether the draft was never initialised
func (d Draft) IsZero() bool {
	return d.schema == ""
}

func (d Draft) with(field, value string) Draft {
	values := d.Values()
	values[field] = value
	return Draft{schema: d.schema, values: values}
}

// MarshalJSON renders the draft as a flat object, keys sorted
func (d Draft) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = d.values[k]
	}
	return json.Marshal(struct {
		Schema string            `json:"schema"`
		Values map[string]string `json:"values"`
	}{d.schema, out})
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
