package product

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item available for purchase. Products are
// sourced from the backend catalog and never modified by the client.
type Product struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Image       string
	Description string
	Category    string
}

// Storefront categories, in display order.
const (
	CategoryLaptops = "Laptops & Work"
	CategoryMobile  = "Mobile Gear"
	CategoryAudio   = "Premium Audio"
	CategoryGaming  = "Ultimate Gaming"
)

// Categories returns the storefront category labels in display order.
func Categories() []string {
	return []string{CategoryLaptops, CategoryMobile, CategoryAudio, CategoryGaming}
}

// Source fetches the full product catalog.
type Source interface {
	ListProducts(ctx context.Context) ([]Product, error)
}

// InCategory returns the products whose category equals category, ignoring
// case. An empty category matches every product.
func InCategory(products []Product, category string) []Product {
	if category == "" {
		return products
	}
	var out []Product
	for _, p := range products {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out
}

// Search returns the products whose name or description contains term,
// ignoring case. An empty term matches every product.
func Search(products []Product, term string) []Product {
	if term == "" {
		return products
	}
	term = strings.ToLower(term)
	var out []Product
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Description), term) {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the product with the given id.
func Find(products []Product, id int64) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
