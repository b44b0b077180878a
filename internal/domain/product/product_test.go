package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testProducts() []Product {
	return []Product{
		{ID: 1, Name: "Laptop", Description: "Thin and light", Category: CategoryLaptops},
		{ID: 2, Name: "Phone", Description: "Pocket camera", Category: CategoryMobile},
		{ID: 3, Name: "Dock", Description: "USB-C hub for your laptop", Category: CategoryLaptops},
	}
}

func TestInCategory(t *testing.T) {
	got := InCategory(testProducts(), CategoryLaptops)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)

	assert.Len(t, InCategory(testProducts(), ""), 3)
	assert.Empty(t, InCategory(testProducts(), CategoryGaming))
}

func TestInCategory_IgnoresCase(t *testing.T) {
	got := InCategory(testProducts(), "mobile gear")
	assert.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name string
		term string
		want []int64
	}{
		{name: "Empty", term: "", want: []int64{1, 2, 3}},
		{name: "NameIgnoresCase", term: "PHO", want: []int64{2}},
		{name: "NameOrDescription", term: "laptop", want: []int64{1, 3}},
		{name: "DescriptionOnly", term: "camera", want: []int64{2}},
		{name: "NoMatch", term: "tablet", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			for _, p := range Search(testProducts(), tt.term) {
				got = append(got, p.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFind(t *testing.T) {
	p, ok := Find(testProducts(), 2)
	assert.True(t, ok)
	assert.Equal(t, "Phone", p.Name)

	_, ok = Find(testProducts(), 42)
	assert.False(t, ok)
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []string{"Laptops & Work", "Mobile Gear", "Premium Audio", "Ultimate Gaming"}, Categories())
}
