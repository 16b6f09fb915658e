package cart

// patch is one optimistic change to the item list. revert undoes exactly
// what apply did, locating rows by id so that concurrent patches on other
// rows are left alone.
type patch interface {
	op() string
	target() string
	apply(items []Item) []Item
	revert(items []Item) []Item
}

func indexByID(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func indexByMergeKey(items []Item, key string) int {
	for i := range items {
		if items[i].MergeKey() == key {
			return i
		}
	}
	return -1
}

type insertPatch struct {
	item Item
}

func (p *insertPatch) op() string     { return "add" }
func (p *insertPatch) target() string { return p.item.ID }

func (p *insertPatch) apply(items []Item) []Item {
	return append(items, p.item.clone())
}

func (p *insertPatch) revert(items []Item) []Item {
	if idx := indexByID(items, p.item.ID); idx >= 0 {
		return append(items[:idx], items[idx+1:]...)
	}
	return items
}

// mergePatch bumps an existing row when an add matches its merge key.
type mergePatch struct {
	id    string
	delta int
}

func (p *mergePatch) op() string     { return "add" }
func (p *mergePatch) target() string { return p.id }

func (p *mergePatch) apply(items []Item) []Item {
	if idx := indexByID(items, p.id); idx >= 0 {
		items[idx].Quantity += p.delta
	}
	return items
}

func (p *mergePatch) revert(items []Item) []Item {
	if idx := indexByID(items, p.id); idx >= 0 {
		items[idx].Quantity -= p.delta
	}
	return items
}

type quantityPatch struct {
	id       string
	from, to int
}

func (p *quantityPatch) op() string     { return "update_quantity" }
func (p *quantityPatch) target() string { return p.id }

func (p *quantityPatch) apply(items []Item) []Item {
	if idx := indexByID(items, p.id); idx >= 0 {
		items[idx].Quantity = p.to
	}
	return items
}

func (p *quantityPatch) revert(items []Item) []Item {
	if idx := indexByID(items, p.id); idx >= 0 {
		items[idx].Quantity = p.from
	}
	return items
}

// removePatch remembers the row and its position so revert can put it back
// where it was.
type removePatch struct {
	item  Item
	index int
}

func (p *removePatch) op() string     { return "remove" }
func (p *removePatch) target() string { return p.item.ID }

func (p *removePatch) apply(items []Item) []Item {
	idx := indexByID(items, p.item.ID)
	if idx < 0 {
		return items
	}
	p.index = idx
	p.item = items[idx].clone()
	return append(items[:idx], items[idx+1:]...)
}

func (p *removePatch) revert(items []Item) []Item {
	if indexByID(items, p.item.ID) >= 0 {
		return items
	}
	idx := p.index
	if idx > len(items) {
		idx = len(items)
	}
	items = append(items, Item{})
	copy(items[idx+1:], items[idx:])
	items[idx] = p.item.clone()
	return items
}

type clearPatch struct {
	prior []Item
}

func (p *clearPatch) op() string     { return "clear" }
func (p *clearPatch) target() string { return "" }

func (p *clearPatch) apply(items []Item) []Item {
	p.prior = make([]Item, len(items))
	for i := range items {
		p.prior[i] = items[i].clone()
	}
	return nil
}

func (p *clearPatch) revert([]Item) []Item {
	return p.prior
}
