package condition

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/common"
)

// Record is the structural form of a Condition used by storage backends and
// the HTTP API.
type Record struct {
	Name       string         `json:"name" validate:"required"`
	Kind       Kind           `json:"kind,omitempty"`
	Value      string         `json:"value" validate:"required"`
	Type       Type           `json:"type,omitempty" validate:"omitempty,oneof=fixed percentage"`
	Target     Target         `json:"target,omitempty"`
	Order      int            `json:"order"`
	Taxable    bool           `json:"taxable"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Currency   string         `json:"currency,omitempty"`
}

// Record returns the structural form of c.
func (c Condition) Record() Record {
	return Record{
		Name:       c.name,
		Kind:       c.kind,
		Value:      c.value.String(),
		Type:       c.typ,
		Target:     c.target,
		Order:      c.order,
		Taxable:    c.taxable,
		Attributes: c.attributes.Clone(),
		Currency:   c.currency,
	}
}

// FromRecord rebuilds a Condition. A record without a kind is treated as a
// plain fixed or percentage condition based on its type.
func FromRecord(r Record) (Condition, error) {
	if err := common.Validate(r); err != nil {
		return Condition{}, err
	}
	value, err := decimal.NewFromString(r.Value)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: condition %q value %q", common.ErrValidation, r.Name, r.Value)
	}
	kind := r.Kind
	if kind == "" {
		kind = KindFixed
		if r.Type == Percentage {
			kind = KindPercentage
		}
	}
	return New(Spec{
		Name:       r.Name,
		Kind:       kind,
		Value:      value,
		Target:     r.Target,
		Order:      r.Order,
		Taxable:    r.Taxable,
		Attributes: r.Attributes,
		Currency:   r.Currency,
	})
}

// Records converts a list to its structural form.
func (l List) Records() []Record {
	out := make([]Record, 0, len(l.items))
	for _, c := range l.items {
		out = append(out, c.Record())
	}
	return out
}

// ListFromRecords rebuilds a list, preserving record order.
func ListFromRecords(records []Record) (List, error) {
	var l List
	for _, r := range records {
		c, err := FromRecord(r)
		if err != nil {
			return List{}, err
		}
		l.Add(c)
	}
	return l, nil
}
