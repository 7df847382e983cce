// Package cart is the storefront's single-client cart and favorites state,
// persisted as a YAML file.
package cart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrNotInCart is returned when mutating a product the cart does not hold.
var ErrNotInCart = errors.New("cart: product not in cart")

// Item is one cart line.
type Item struct {
	ProductID string          `yaml:"product_id"`
	Name      string          `yaml:"name"`
	Price     decimal.Decimal `yaml:"price"`
	Quantity  int             `yaml:"quantity"`
}

// Subtotal is Price times Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds items in insertion order and a set of favorite product IDs.
type Cart struct {
	Items     []Item   `yaml:"items"`
	Favorites []string `yaml:"favorites"`
}

func (c *Cart) index(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts item in the cart, or raises the quantity of an existing line.
// Quantities below 1 count as 1.
func (c *Cart) Add(item Item) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if i := c.index(item.ProductID); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		return
	}
	c.Items = append(c.Items, item)
}

// Remove drops a product. It reports whether the product was present.
func (c *Cart) Remove(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// SetQuantity sets a line's quantity, never below 1.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("%s: %w", productID, ErrNotInCart)
	}
	c.Items[i].Quantity = max(quantity, 1)
	return nil
}

// ToggleFavorite flips a product's favorite flag and returns the new state.
func (c *Cart) ToggleFavorite(productID string) bool {
	for i, id := range c.Favorites {
		if id == productID {
			c.Favorites = append(c.Favorites[:i], c.Favorites[i+1:]...)
			return false
		}
	}
	c.Favorites = append(c.Favorites, productID)
	return true
}

// IsFavorite reports whether productID is a favorite.
func (c *Cart) IsFavorite(productID string) bool {
	for _, id := range c.Favorites {
		if id == productID {
			return true
		}
	}
	return false
}

// Count is the total number of units in the cart.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Total sums every line's subtotal.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clear empties the cart and keeps favorites.
func (c *Cart) Clear() {
	c.Items = nil
}

// Load reads a cart from path. A missing file is an empty cart.
func Load(path string) (*Cart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Cart{}, nil
		}
		return nil, fmt.Errorf("reading cart: %w", err)
	}

	var c Cart
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing cart %s: %w", path, err)
	}
	return &c, nil
}

// Save writes the cart to path, replacing it atomically.
func (c *Cart) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling cart: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cart dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cart: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing cart: %w", err)
	}
	return nil
}
