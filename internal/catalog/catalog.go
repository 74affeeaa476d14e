package catalog

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrItemNotFound = errors.New("item not found")

type Kind string

const (
	KindVirtual  Kind = "virtual"
	KindPhysical Kind = "physical"
)

// Item is a sellable catalog entry. Prices are in the settlement currency.
type Item struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Kind        Kind            `json:"kind"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

// Catalog is a read-only item index built once at process start.
type Catalog struct {
	items map[int]Item
}

func New(items ...Item) *Catalog {
	c := &Catalog{items: make(map[int]Item, len(items))}
	for _, item := range items {
		c.items[item.ID] = item
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(
		Item{
			ID:          1,
			Name:        "Premium Account (30 days)",
			Kind:        KindVirtual,
			Price:       decimal.RequireFromString("9.99"),
			Description: "Activation code delivered in chat after payment",
		},
		Item{
			ID:          2,
			Name:        "Gift Card 50",
			Kind:        KindVirtual,
			Price:       decimal.RequireFromString("50.00"),
			Description: "Digital gift card, redeemable once",
		},
		Item{
			ID:          3,
			Name:        "Logo T-Shirt",
			Kind:        KindPhysical,
			Price:       decimal.RequireFromString("25.00"),
			Description: "Cotton tee, shipped worldwide with tracking",
		},
	)
}

func (c *Catalog) Lookup(id int) (Item, error) {
	item, ok := c.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// List returns all items ordered by ID.
func (c *Catalog) List() []Item {
	items := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (c *Catalog) Len() int {
	return len(c.items)
}
