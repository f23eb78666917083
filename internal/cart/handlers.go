package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

// Request headers identifying the cart owner.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc    *Service
	Locale string
}

// Routes mounts the cart endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Destroy)
	r.Post("/clear", h.Clear)
	r.Post("/reset", h.Reset)
	r.Post("/merge", h.Merge)
	r.Post("/items", h.AddItem)
	r.Post("/items/catalog", h.AddFromCatalog)
	r.Patch("/items/{id}", h.UpdateItem)
	r.Put("/items/{id}/quantity", h.UpdateQuantity)
	r.Delete("/items/{id}", h.RemoveItem)
	r.Post("/items/{id}/conditions", h.AddItemCondition)
	r.Post("/conditions", h.AddCondition)
	r.Delete("/conditions/{name}", h.RemoveCondition)
	r.Post("/rules", h.AddRule)
	r.Delete("/rules/{name}", h.RemoveRule)
}

// Get returns the cart with its pricing breakdown.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), key)
	h.respond(w, http.StatusOK, c, err)
}

// Destroy deletes the cart.
func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Destroy(r.Context(), key); err != nil && !errors.Is(err, ErrCartNotFound) {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds a line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var in ItemInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.Svc.AddItem(r.Context(), key, in)
	h.respond(w, http.StatusCreated, c, err)
}

// AddFromCatalog adds a product resolved through the catalog.
func (h *Handler) AddFromCatalog(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var ref ProductRef
	if !decode(w, r, &ref) {
		return
	}
	c, err := h.Svc.AddFromCatalog(r.Context(), key, ref)
	h.respond(w, http.StatusCreated, c, err)
}

// UpdateItem changes item fields.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var u ItemUpdate
	if !decode(w, r, &u) {
		return
	}
	c, err := h.Svc.UpdateItem(r.Context(), key, chi.URLParam(r, "id"), u)
	h.respond(w, http.StatusOK, c, err)
}

// UpdateQuantity sets an item's quantity.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var payload struct {
		Quantity float64 `json:"quantity"`
	}
	if !decode(w, r, &payload) {
		return
	}
	c, err := h.Svc.UpdateQuantity(r.Context(), key, chi.URLParam(r, "id"), payload.Quantity)
	h.respond(w, http.StatusOK, c, err)
}

// RemoveItem removes an item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveItem(r.Context(), key, chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, c, err)
}

// AddItemCondition attaches a condition to an item.
func (h *Handler) AddItemCondition(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var rec condition.Record
	if !decode(w, r, &rec) {
		return
	}
	c, err := h.Svc.AddItemCondition(r.Context(), key, chi.URLParam(r, "id"), rec)
	h.respond(w, http.StatusOK, c, err)
}

// AddCondition adds a global condition.
func (h *Handler) AddCondition(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var rec condition.Record
	if !decode(w, r, &rec) {
		return
	}
	c, err := h.Svc.AddCondition(r.Context(), key, rec)
	h.respond(w, http.StatusOK, c, err)
}

// RemoveCondition removes a global condition.
func (h *Handler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveCondition(r.Context(), key, chi.URLParam(r, "name"))
	h.respond(w, http.StatusOK, c, err)
}

// AddRule adds a promotional rule.
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var rec rule.Record
	if !decode(w, r, &rec) {
		return
	}
	c, err := h.Svc.AddRule(r.Context(), key, rec)
	h.respond(w, http.StatusOK, c, err)
}

// RemoveRule removes a promotional rule.
func (h *Handler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveRule(r.Context(), key, chi.URLParam(r, "name"))
	h.respond(w, http.StatusOK, c, err)
}

// Clear removes all items.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Clear(r.Context(), key)
	h.respond(w, http.StatusOK, c, err)
}

// Reset removes items, conditions and rules.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Reset(r.Context(), key)
	h.respond(w, http.StatusOK, c, err)
}

// Merge folds a guest session cart into the signed-in user's cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "user id header is required", nil)
		return
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(HeaderSessionID))
	}
	c, err := h.Svc.Merge(r.Context(), Key{SessionID: sessionID}, Key{UserID: userID})
	h.respond(w, http.StatusOK, c, err)
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (Key, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return Key{}, false
	}
	key := Key{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
	}
	if err := key.Validate(); err != nil {
		h.writeError(w, err)
		return Key{}, false
	}
	return key, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge, "request body too large", nil)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON payload", nil)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, c *Cart, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.view(c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, status, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, err)
}

// View is the JSON shape of a priced cart.
type View struct {
	ID              string           `json:"id"`
	Currency        string           `json:"currency"`
	Count           int              `json:"count"`
	Items           []ItemView       `json:"items"`
	Conditions      []ConditionView  `json:"conditions"`
	Rules           []rule.Record    `json:"rules"`
	Subtotal        AmountView       `json:"subtotal"`
	TaxableSubtotal AmountView       `json:"taxable_subtotal"`
	Total           AmountView       `json:"total"`
	Adjustments     []AdjustmentView `json:"adjustments"`
}

// AmountView pairs an exact amount with its display form.
type AmountView struct {
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

type ItemView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      AmountView      `json:"price"`
	Quantity   int             `json:"quantity"`
	Taxable    bool            `json:"taxable"`
	Subtotal   AmountView      `json:"subtotal"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Conditions []ConditionView `json:"conditions,omitempty"`
}

type ConditionView struct {
	condition.Record
	FormattedValue string `json:"formatted_value"`
}

type AdjustmentView struct {
	Name   string           `json:"name"`
	Source Source           `json:"source"`
	Target condition.Target `json:"target"`
	Amount AmountView       `json:"amount"`
}

func (h *Handler) amount(p money.Price) AmountView {
	return AmountView{Amount: p.StringFixed(), Formatted: p.FormattedIn(h.locale())}
}

func (h *Handler) locale() string {
	if h.Locale == "" {
		return money.DefaultLocale
	}
	return h.Locale
}

func (h *Handler) view(c *Cart) (View, error) {
	if c == nil {
		return View{}, errors.New("cart view: nil cart")
	}
	b, err := c.Breakdown()
	if err != nil {
		return View{}, err
	}
	v := View{
		ID:              c.ID(),
		Currency:        c.Currency(),
		Count:           c.Count(),
		Items:           []ItemView{},
		Conditions:      conditionViews(c.Conditions()),
		Rules:           []rule.Record{},
		Subtotal:        h.amount(b.Subtotal),
		TaxableSubtotal: h.amount(b.TaxableSubtotal),
		Total:           h.amount(b.Total),
		Adjustments:     make([]AdjustmentView, 0, len(b.Adjustments)),
	}
	for _, it := range c.Items() {
		sub, err := it.Subtotal(c.Options().CompoundDiscounts)
		if err != nil {
			return View{}, err
		}
		v.Items = append(v.Items, ItemView{
			ID:         it.ID(),
			Name:       it.Name(),
			Price:      h.amount(it.UnitPrice()),
			Quantity:   it.Quantity(),
			Taxable:    it.Taxable(),
			Subtotal:   h.amount(sub),
			Attributes: it.Attributes(),
			Conditions: conditionViews(it.Conditions()),
		})
	}
	for _, r := range c.Rules() {
		v.Rules = append(v.Rules, r.Record())
	}
	for _, a := range b.Adjustments {
		v.Adjustments = append(v.Adjustments, AdjustmentView{
			Name:   a.Name,
			Source: a.Source,
			Target: a.Target,
			Amount: h.amount(a.Amount),
		})
	}
	return v, nil
}

func conditionViews(conds []condition.Condition) []ConditionView {
	out := make([]ConditionView, 0, len(conds))
	for _, c := range conds {
		out = append(out, ConditionView{Record: c.Record(), FormattedValue: c.FormattedValue()})
	}
	return out
}
