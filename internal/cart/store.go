// Package cart holds the shopper's cart: line snapshots persisted through a
// Storage backend, with change events fanned out through a Notifier.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/model"
)

// ErrInvalidQuantity is returned when adding fewer than one unit.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Line is one product in the cart. Name, Price and Image are copied from the
// catalog when the product is first added and are not refreshed afterwards.
type Line struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Image    string   `json:"image"`
	Quantity int      `json:"quantity"`
	Weight   *float64 `json:"weight,omitempty"`
}

// Store reads and mutates the cart held in a Storage.
type Store struct {
	storage  Storage
	notifier *Notifier
	logger   *slog.Logger
}

// NewStore returns a Store over storage. notifier and logger may be nil.
func NewStore(storage Storage, notifier *Notifier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{storage: storage, notifier: notifier, logger: logger}
}

// Get returns the persisted cart. Unreadable or malformed data yields an
// empty cart.
func (s *Store) Get() []Line {
	data, err := s.storage.Load()
	if err != nil {
		s.logger.Warn("cart unreadable, starting empty", "error", err)
		return []Line{}
	}
	if len(data) == 0 {
		return []Line{}
	}

	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		s.logger.Warn("cart malformed, starting empty", "error", err)
		return []Line{}
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines
}

// Add increments the line for product by quantity, or appends a new line
// snapshotting the product's current name, price, first image and weight.
func (s *Store) Add(product *model.Product, quantity int) ([]Line, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	lines := s.Get()
	found := false
	for i := range lines {
		if lines[i].ID == product.ID {
			lines[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		line := Line{
			ID:       product.ID,
			Name:     product.Name,
			Price:    product.Price,
			Quantity: quantity,
			Weight:   product.Weight,
		}
		if len(product.Images) > 0 {
			line.Image = product.Images[0]
		}
		lines = append(lines, line)
	}

	return lines, s.persist(OpAdd, lines)
}

// UpdateQuantity sets the line's quantity to exactly quantity. A quantity of
// zero or less removes the line. An unknown id leaves the cart untouched.
func (s *Store) UpdateQuantity(id, quantity int) ([]Line, error) {
	if quantity <= 0 {
		return s.Remove(id)
	}

	lines := s.Get()
	for i := range lines {
		if lines[i].ID == id {
			lines[i].Quantity = quantity
			return lines, s.persist(OpUpdate, lines)
		}
	}
	return lines, nil
}

// Remove drops the line with id. An unknown id leaves the cart untouched.
func (s *Store) Remove(id int) ([]Line, error) {
	lines := s.Get()
	kept := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lines) {
		return lines, nil
	}
	return kept, s.persist(OpRemove, kept)
}

// Clear empties the cart.
func (s *Store) Clear() ([]Line, error) {
	if err := s.storage.Clear(); err != nil {
		return nil, fmt.Errorf("clearing cart: %w", err)
	}
	lines := []Line{}
	s.publish(OpClear, lines)
	return lines, nil
}

// Total is Σ price × quantity. Prices that do not parse count as zero.
func (s *Store) Total() decimal.Decimal {
	return Total(s.Get())
}

// ItemCount is the number of units in the cart, not the number of lines.
func (s *Store) ItemCount() int {
	return ItemCount(s.Get())
}

// Total is Σ price × quantity over lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(model.ParseAmount(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// ItemCount sums quantities over lines.
func ItemCount(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) persist(op Op, lines []Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	if err := s.storage.Save(data); err != nil {
		return fmt.Errorf("saving cart: %w", err)
	}
	s.publish(op, lines)
	return nil
}

func (s *Store) publish(op Op, lines []Line) {
	if s.notifier == nil {
		return
	}
	snapshot := make([]Line, len(lines))
	copy(snapshot, lines)
	s.notifier.Publish(Event{
		Op:        op,
		Lines:     snapshot,
		ItemCount: ItemCount(lines),
		Total:     Total(lines),
	})
}
