package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSnapshotTotals(t *testing.T) {
	was := price("60")
	items := []Item{
		{ID: "1", ProductID: 1, Quantity: 2, UnitPrice: price("50"), OriginalPrice: &was},
		{ID: "2", ProductID: 2, Quantity: 1, UnitPrice: price("30")},
		{ID: "3", ProductID: 1, Quantity: 1, UnitPrice: price("50"), Size: "L"},
	}
	snap := NewSnapshot(items)

	assert.Equal(t, 4, snap.TotalItems)
	assert.True(t, price("180").Equal(snap.TotalPrice))
	assert.True(t, price("20").Equal(snap.TotalSavings))
	assert.Equal(t, []int64{1, 2}, snap.ProductIDs())

	items[0].Quantity = 9
	*items[0].OriginalPrice = price("1")
	assert.Equal(t, 2, snap.Items[0].Quantity, "snapshot is a copy")
	assert.True(t, price("60").Equal(*snap.Items[0].OriginalPrice))
}

func TestNewSnapshotEmpty(t *testing.T) {
	snap := NewSnapshot(nil)
	assert.True(t, snap.Empty())
	assert.True(t, snap.TotalPrice.IsZero())
	assert.NotNil(t, snap.Items)
}

func TestMergeKeyIgnoresID(t *testing.T) {
	a := Item{ID: "x", ProductID: 5, Size: "M", Color: "blue"}
	b := Item{ID: "y", ProductID: 5, Size: " M ", Color: "blue"}
	assert.Equal(t, a.MergeKey(), b.MergeKey())
}

func TestRemovePatchRevertClampsIndex(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	p := &removePatch{item: Item{ID: "c"}}
	items = p.apply(items)
	items = items[:1]
	items = p.revert(items)
	assert.Equal(t, "c", items[len(items)-1].ID)
}
