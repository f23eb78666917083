package condition

// List is an ordered set of conditions keyed by name. The zero value is an
// empty list ready to use.
type List struct {
	items []Condition
}

// NewList builds a list from conditions, later duplicates replacing earlier ones.
func NewList(conds ...Condition) List {
	var l List
	for _, c := range conds {
		l.Add(c)
	}
	return l
}

// Add appends c, or replaces the same-named entry in place. It reports
// whether an entry was replaced.
func (l *List) Add(c Condition) bool {
	for i := range l.items {
		if l.items[i].name == c.name {
			l.items[i] = c
			return true
		}
	}
	l.items = append(l.items, c)
	return false
}

// Remove deletes the named entry, reporting whether it existed.
func (l *List) Remove(name string) bool {
	for i := range l.items {
		if l.items[i].name == name {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the named entry.
func (l List) Get(name string) (Condition, bool) {
	for _, c := range l.items {
		if c.name == name {
			return c, true
		}
	}
	return Condition{}, false
}

// Has reports whether name is present.
func (l List) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// All returns the entries in insertion order. The slice is a copy.
func (l List) All() []Condition {
	out := make([]Condition, len(l.items))
	copy(out, l.items)
	return out
}

func (l List) Len() int { return len(l.items) }

func (l *List) Clear() { l.items = nil }

// Clone returns an independent copy of the list.
func (l List) Clone() List {
	return List{items: l.All()}
}

// Names returns entry names in order.
func (l List) Names() []string {
	out := make([]string, len(l.items))
	for i, c := range l.items {
		out[i] = c.name
	}
	return out
}

// InCurrency returns a copy of l with every condition denominated in code.
func (l List) InCurrency(code string) (List, error) {
	out := List{items: make([]Condition, 0, len(l.items))}
	for _, c := range l.items {
		bound, err := c.WithCurrency(code)
		if err != nil {
			return List{}, err
		}
		out.items = append(out.items, bound)
	}
	return out, nil
}
