package cart

import (
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

// ItemInput is the cart-ready payload for a line item, as sent by API
// clients and returned by the catalog.
type ItemInput struct {
	ID         string             `json:"id" validate:"required"`
	Name       string             `json:"name" validate:"required"`
	Price      string             `json:"price" validate:"required"`
	Currency   string             `json:"currency,omitempty"`
	Quantity   float64            `json:"quantity"`
	Taxable    *bool              `json:"taxable,omitempty"`
	Attributes map[string]any     `json:"attributes,omitempty"`
	Conditions []condition.Record `json:"conditions,omitempty"`
}

// ItemUpdate carries optional changes to an existing item. Nil fields are
// left untouched; attributes are merged into the existing ones.
type ItemUpdate struct {
	Name       *string        `json:"name,omitempty"`
	Price      *string        `json:"price,omitempty"`
	Quantity   *float64       `json:"quantity,omitempty"`
	Taxable    *bool          `json:"taxable,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Item is a cart line. Values returned from a Cart are copies; mutate them
// through the Cart.
type Item struct {
	id         string
	name       string
	unitPrice  money.Price
	quantity   int
	taxable    bool
	attributes condition.Attributes
	conditions condition.List
}

// NewItem validates in and builds an item priced in currency unless the
// input names its own currency.
func NewItem(in ItemInput, currency string) (Item, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if err := common.Validate(in); err != nil {
		return Item{}, err
	}
	price, err := parseUnitPrice(in.ID, in.Price, currency, in.Currency)
	if err != nil {
		return Item{}, err
	}
	conds, err := condition.ListFromRecords(in.Conditions)
	if err != nil {
		return Item{}, err
	}
	if conds, err = conds.InCurrency(price.Currency()); err != nil {
		return Item{}, err
	}
	taxable := true
	if in.Taxable != nil {
		taxable = *in.Taxable
	}
	return Item{
		id:         in.ID,
		name:       in.Name,
		unitPrice:  price,
		quantity:   NormalizeQuantity(in.Quantity),
		taxable:    taxable,
		attributes: condition.Attributes(in.Attributes).Clone(),
		conditions: conds,
	}, nil
}

func parseUnitPrice(id, amount, cartCurrency, itemCurrency string) (money.Price, error) {
	cur := cartCurrency
	if strings.TrimSpace(itemCurrency) != "" {
		cur = itemCurrency
	}
	price, err := money.Parse(amount, cur)
	if err != nil {
		if !money.ValidCurrency(cur) {
			return money.Price{}, err
		}
		return money.Price{}, fmt.Errorf("%w: item %q price %q", common.ErrValidation, id, amount)
	}
	if price.IsNegative() {
		return money.Price{}, fmt.Errorf("%w: item %q price must not be negative", common.ErrValidation, id)
	}
	if cartCurrency != "" && !strings.EqualFold(price.Currency(), cartCurrency) {
		return money.Price{}, fmt.Errorf("%w: item %q is priced in %s, cart uses %s", money.ErrCurrencyMismatch, id, price.Currency(), strings.ToUpper(cartCurrency))
	}
	return price, nil
}

// NormalizeQuantity truncates q toward zero and floors the result at 1.
func NormalizeQuantity(q float64) int {
	if math.IsNaN(q) || q < 1 {
		return 1
	}
	if q >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(q)
}

func (it Item) ID() string { return it.id }

func (it Item) Name() string { return it.name }

func (it Item) UnitPrice() money.Price { return it.unitPrice }

func (it Item) Quantity() int { return it.quantity }

func (it Item) Taxable() bool { return it.taxable }

// Attributes returns a copy of the item's attributes.
func (it Item) Attributes() condition.Attributes { return it.attributes.Clone() }

// Conditions returns the item's conditions in insertion order.
func (it Item) Conditions() []condition.Condition { return it.conditions.All() }

// UnadjustedSubtotal is unit price × quantity with no conditions applied.
func (it Item) UnadjustedSubtotal() money.Price {
	return it.unitPrice.Times(it.quantity)
}

// Subtotal folds the item's conditions over its unit price and quantity.
//
// Item-targeted conditions adjust the unit price; subtotal-targeted ones
// accumulate percentage and fixed adjustments separately. With compound set,
// percentages use the running base instead of the original one. The result
// never goes below zero. The stored condition order is not changed.
func (it Item) Subtotal(compound bool) (money.Price, error) {
	zero, err := money.Zero(it.unitPrice.Currency())
	if err != nil {
		return money.Price{}, err
	}
	unit := it.unitPrice
	pctAdj, fixedAdj := zero, zero

	for _, adj := range sortAdjustments(conditionAdjustments(it.conditions.All()), itemPriority, false) {
		switch adj.Target() {
		case condition.TargetItem:
			base := unit
			if adj.Type() == condition.Percentage && !compound {
				base = it.unitPrice
			}
			delta, err := adj.Calculate(&base)
			if err != nil {
				return money.Price{}, err
			}
			if unit, err = unit.Plus(delta); err != nil {
				return money.Price{}, err
			}
		case condition.TargetSubtotal:
			if adj.Type() != condition.Percentage {
				delta, err := adj.Calculate(&unit)
				if err != nil {
					return money.Price{}, err
				}
				if fixedAdj, err = fixedAdj.Plus(delta); err != nil {
					return money.Price{}, err
				}
				continue
			}
			base := unit.Times(it.quantity)
			if compound {
				if base, err = sumPrices(base, pctAdj, fixedAdj); err != nil {
					return money.Price{}, err
				}
			}
			delta, err := adj.Calculate(&base)
			if err != nil {
				return money.Price{}, err
			}
			if pctAdj, err = pctAdj.Plus(delta); err != nil {
				return money.Price{}, err
			}
		}
	}

	result, err := sumPrices(unit.Times(it.quantity), pctAdj, fixedAdj)
	if err != nil {
		return money.Price{}, err
	}
	return result.ClampZero(), nil
}

func (it Item) line(compound bool) (rule.Line, error) {
	sub, err := it.Subtotal(compound)
	if err != nil {
		return rule.Line{}, err
	}
	return rule.Line{ID: it.id, UnitPrice: it.unitPrice, Quantity: it.quantity, Subtotal: sub}, nil
}

func (it Item) clone() Item {
	it.attributes = it.attributes.Clone()
	it.conditions = it.conditions.Clone()
	return it
}

func (it *Item) setQuantity(q int) {
	if q < 1 {
		q = 1
	}
	it.quantity = q
}

func (it *Item) mergeAttributes(attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	if it.attributes == nil {
		it.attributes = condition.Attributes{}
	}
	maps.Copy(it.attributes, attrs)
}

func (it *Item) apply(u ItemUpdate, cartCurrency string) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return fmt.Errorf("%w: item %q name is required", common.ErrValidation, it.id)
		}
		it.name = name
	}
	if u.Price != nil {
		price, err := parseUnitPrice(it.id, *u.Price, cartCurrency, "")
		if err != nil {
			return err
		}
		it.unitPrice = price
	}
	if u.Quantity != nil {
		it.quantity = NormalizeQuantity(*u.Quantity)
	}
	if u.Taxable != nil {
		it.taxable = *u.Taxable
	}
	it.mergeAttributes(u.Attributes)
	return nil
}

func sumPrices(first money.Price, rest ...money.Price) (money.Price, error) {
	out := first
	for _, p := range rest {
		next, err := out.Plus(p)
		if err != nil {
			return money.Price{}, err
		}
		out = next
	}
	return out, nil
}
