package cart

import "github.com/shopspring/decimal"

// Snapshot is a read-only view of the cart with derived totals.
type Snapshot struct {
	Items        []Item          `json:"items"`
	TotalItems   int             `json:"total_items"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	TotalSavings decimal.Decimal `json:"total_savings"`
}

// NewSnapshot copies items and computes every total from scratch.
func NewSnapshot(items []Item) Snapshot {
	snap := Snapshot{
		Items:        make([]Item, 0, len(items)),
		TotalPrice:   decimal.Zero,
		TotalSavings: decimal.Zero,
	}
	for _, item := range items {
		snap.Items = append(snap.Items, item.clone())
		snap.TotalItems += item.Quantity
		snap.TotalPrice = snap.TotalPrice.Add(item.LineTotal())
		snap.TotalSavings = snap.TotalSavings.Add(item.LineSavings())
	}
	return snap
}

// Empty reports whether the cart holds no lines.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// ProductIDs returns the distinct product ids in cart order.
func (s Snapshot) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(s.Items))
	ids := make([]int64, 0, len(s.Items))
	for _, item := range s.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
