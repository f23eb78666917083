package rule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
)

// Record is the structural form of a Rule: the condition reporting shape plus
// the rule-specific constructor fields.
type Record struct {
	Name        string           `json:"name" validate:"required"`
	Kind        Kind             `json:"kind" validate:"required"`
	Value       string           `json:"value"`
	Type        condition.Type   `json:"type,omitempty"`
	Target      condition.Target `json:"target,omitempty"`
	Order       int              `json:"order"`
	Taxable     bool             `json:"taxable"`
	Attributes  map[string]any   `json:"attributes,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	MinSubtotal string           `json:"min_subtotal,omitempty"`
	Tiers       []Tier           `json:"tiers,omitempty"`
	Items       []string         `json:"items,omitempty"`
	MinQuantity int              `json:"min_quantity,omitempty"`
	PerItem     bool             `json:"per_item,omitempty"`
	Buy         int              `json:"buy,omitempty"`
	Get         int              `json:"get,omitempty"`
}

// Record returns the structural form of r.
func (r Rule) Record() Record {
	rec := Record{
		Name:        r.name,
		Kind:        r.kind,
		Value:       r.value.String(),
		Type:        r.typ,
		Target:      r.Target(),
		Order:       r.order,
		Taxable:     r.taxable,
		Attributes:  r.attributes.Clone(),
		Currency:    r.currency,
		MinQuantity: r.minQuantity,
		PerItem:     r.perItem,
		Buy:         r.buy,
		Get:         r.get,
	}
	if r.kind == KindThreshold {
		rec.MinSubtotal = r.minSubtotal.String()
	}
	if len(r.tiers) > 0 {
		rec.Tiers = make([]Tier, len(r.tiers))
		copy(rec.Tiers, r.tiers)
	}
	if len(r.matcher.patterns) > 0 {
		rec.Items = append([]string(nil), r.matcher.patterns...)
	}
	return rec
}

// FromRecord rebuilds a Rule from its structural form.
func FromRecord(rec Record) (Rule, error) {
	if err := common.Validate(rec); err != nil {
		return Rule{}, err
	}
	value, err := parseDecimal(rec.Name, "value", rec.Value)
	if err != nil {
		return Rule{}, err
	}
	minSubtotal, err := parseDecimal(rec.Name, "min_subtotal", rec.MinSubtotal)
	if err != nil {
		return Rule{}, err
	}
	return New(Spec{
		Name:        rec.Name,
		Kind:        rec.Kind,
		Type:        rec.Type,
		Value:       value,
		Currency:    rec.Currency,
		Order:       rec.Order,
		Taxable:     rec.Taxable,
		Attributes:  rec.Attributes,
		MinSubtotal: minSubtotal,
		Tiers:       rec.Tiers,
		Items:       rec.Items,
		MinQuantity: rec.MinQuantity,
		PerItem:     rec.PerItem,
		Buy:         rec.Buy,
		Get:         rec.Get,
	})
}

func parseDecimal(name, field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: rule %q %s %q", common.ErrValidation, name, field, s)
	}
	return d, nil
}
