package draft

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

const (
	// FieldCurrency is carried by every schema and survives a reset.
	FieldCurrency = "deviseId"
	// FieldOrderID links the serialized payload to its payment order.
	FieldOrderID = "ordrePaiementId"

	dateLayout = "2006-01-02"
)

var (
	// ErrMaskRejected is returned when an edit does not match the field's
	// typing mask. The draft keeps its previous value.
	ErrMaskRejected = &errors.Error{Code: errors.ErrCodeInvalidInput, Message: "saisie refusée"}
	// ErrUnknownField is returned when an edit targets a field the schema
	// does not define.
	ErrUnknownField = &errors.Error{Code: errors.ErrCodeInvalidInput, Message: "champ inconnu"}
	// ErrUnknownSchema is returned by For when no schema is registered.
	ErrUnknownSchema = &errors.Error{Code: errors.ErrCodeNotFound, Message: "schéma inconnu"}
)

// Builder creates, edits, validates and serializes drafts of one schema
type Builder struct {
	schema *Schema
}

// For returns the builder of a registered schema
func For(schema string) (*Builder, error) {
	s, ok := schemas[schema]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSchema, errors.ErrCodeNotFound,
			fmt.Sprintf("aucun schéma '%s'", schema))
	}
	return &Builder{schema: s}, nil
}

// Schema returns the schema the builder works from
func (b *Builder) Schema() *Schema {
	return b.schema
}

// Empty returns a draft populated with the schema defaults and currency
func (b *Builder) Empty(currencyRef string) Draft {
	values := make(map[string]string, len(b.schema.Fields))
	for _, f := range b.schema.Fields {
		values[f.Name] = f.Default
	}
	values[FieldCurrency] = currencyRef
	if b.schema.Derive != nil {
		b.schema.Derive(values, "")
	}
	return Draft{schema: b.schema.Name, values: values}
}

// Update returns a new draft with one field changed. Masked fields reject
// malformed input immediately. After the change, cascades clear fields that
// only make sense under the previous value, then derived fields are
// recomputed. The input draft is never modified.
func (b *Builder) Update(d Draft, field, value string) (Draft, error) {
	f, ok := b.schema.field(field)
	if !ok {
		return d, errors.Wrap(ErrUnknownField, errors.ErrCodeInvalidInput,
			fmt.Sprintf("le champ '%s' n'existe pas pour %s", field, b.schema.Name))
	}
	if !d.IsZero() && d.schema != b.schema.Name {
		return d, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("brouillon %s modifié avec le schéma %s", d.schema, b.schema.Name))
	}
	if d.IsZero() {
		d = Draft{schema: b.schema.Name, values: map[string]string{}}
	}

	if err := accept(f, value); err != nil {
		return d, err
	}

	next := d.with(field, value)
	for _, c := range b.schema.Cascades {
		if c.Field != field || value == c.KeepWhen {
			continue
		}
		for _, dep := range c.Clears {
			next.values[dep] = ""
		}
	}
	if b.schema.Derive != nil {
		b.schema.Derive(next.values, field)
	}
	return next, nil
}

func accept(f Field, value string) error {
	reject := func() error {
		e := errors.Wrap(ErrMaskRejected, errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s : saisie '%s' refusée", f.Label, value))
		e.Field = f.Name
		return e
	}

	switch f.Kind {
	case Amount, Percent:
		if !amountMask.MatchString(value) {
			return reject()
		}
	case Integer:
		if !integerMask.MatchString(value) {
			return reject()
		}
	case Bool:
		if value != "true" && value != "false" {
			return reject()
		}
	case Choice:
		if value != "" && !slices.Contains(f.Choices, value) {
			return reject()
		}
	}
	return nil
}

// Validate checks every field then every rule. All failures are reported
// together, verbatim, in that order.
func (b *Builder) Validate(d Draft) error {
	var msgs []string
	for _, f := range b.schema.Fields {
		if msg := checkField(f, d.values[f.Name]); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	for _, rule := range b.schema.Rules {
		if msg := rule(d); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) > 0 {
		return errors.Validation(msgs...)
	}
	return nil
}

func checkField(f Field, v string) string {
	if v == "" {
		if f.Required {
			return fmt.Sprintf("%s est requis", f.Label)
		}
		return ""
	}

	switch f.Kind {
	case Amount:
		n, ok := parseDecimal(v)
		if !ok {
			return fmt.Sprintf("%s n'est pas un montant valide", f.Label)
		}
		if n.IsNegative() {
			return fmt.Sprintf("%s doit être supérieur ou égal à 0", f.Label)
		}
	case Percent:
		n, ok := parseDecimal(v)
		if !ok || n.IsNegative() || n.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Sprintf("%s doit être compris entre 0 et 100", f.Label)
		}
	case Integer:
		if _, ok := parseDecimal(v); !ok {
			return fmt.Sprintf("%s doit être un nombre entier", f.Label)
		}
	case Date:
		if _, err := time.Parse(dateLayout, v); err != nil {
			return fmt.Sprintf("%s doit être une date valide (AAAA-MM-JJ)", f.Label)
		}
	case Choice:
		if !slices.Contains(f.Choices, v) {
			return fmt.Sprintf("%s : valeur '%s' non autorisée", f.Label, v)
		}
	}
	return ""
}

// Payload is the JSON body that creates a sub-item
type Payload map[string]any

// Serialize validates the draft and renders its creation payload. Amounts
// are fixed to two decimals, percents are canonical decimals, and empty
// optional fields are sent as null.
func (b *Builder) Serialize(d Draft, orderID string) (Payload, error) {
	if err := b.Validate(d); err != nil {
		return nil, err
	}

	p := make(Payload, len(b.schema.Fields)+1)
	for _, f := range b.schema.Fields {
		v := d.values[f.Name]
		if v == "" {
			p[f.Name] = nil
			continue
		}
		switch f.Kind {
		case Amount:
			n, _ := parseDecimal(v)
			p[f.Name] = json.Number(n.StringFixed(2))
		case Percent:
			n, _ := parseDecimal(v)
			p[f.Name] = json.Number(n.String())
		case Integer:
			n, _ := parseDecimal(v)
			p[f.Name] = json.Number(n.Truncate(0).String())
		case Bool:
			p[f.Name] = v == "true"
		default:
			p[f.Name] = v
		}
	}
	p[FieldOrderID] = orderID
	return p, nil
}

// Amount returns the value of the schema's amount field, zero when unset
func (b *Builder) Amount(d Draft) decimal.Decimal {
	n, _ := parseDecimal(d.values[b.schema.AmountField])
	return n
}
