// Package cart holds the shopper's line items in memory and mirrors them to
// durable storage after every change.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/storage"
	"go.uber.org/zap"
)

// StorageKey is where the serialized line list lives. Cache entries use their
// own prefix and never share it.
const StorageKey = "cart:lines"

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidProduct  = errors.New("product has no id")
)

// Store owns the canonical line list. The in-memory list is authoritative for
// the session; durable writes are best effort and a failed write is logged
// without undoing the change.
type Store struct {
	mu    sync.RWMutex
	lines []domain.LineItem

	storage storage.Store
	key     string
	newID   func() string
	now     func() time.Time
	log     *zap.Logger
}

type Option func(*Store)

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// Load builds a Store from whatever is persisted. Unreadable or malformed
// content yields an empty cart and the bad entry is removed; Load itself never
// fails.
func Load(ctx context.Context, st storage.Store, opts ...Option) *Store {
	s := &Store{
		storage: st,
		key:     StorageKey,
		newID:   uuid.NewString,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := st.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s
	case err != nil:
		s.log.Warn("failed to read persisted cart, starting empty", zap.Error(err))
		return s
	}

	lines, err := decodeLines(data)
	if err != nil {
		s.log.Warn("discarding corrupted cart", zap.Error(err))
		if err := st.Delete(ctx, s.key); err != nil {
			s.log.Warn("failed to remove corrupted cart", zap.Error(err))
		}
		return s
	}
	s.lines = lines
	return s
}

func decodeLines(data []byte) ([]domain.LineItem, error) {
	var lines []domain.LineItem
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart lines: %w", err)
	}
	if lines == nil {
		return nil, errors.New("cart payload is not a list")
	}
	seen := make(map[string]struct{}, len(lines))
	for i, l := range lines {
		if l.ID == "" || l.Product.ID == "" {
			return nil, fmt.Errorf("line %d is missing an id", i)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("line %s has quantity %d", l.ID, l.Quantity)
		}
		if _, dup := seen[l.ID]; dup {
			return nil, fmt.Errorf("line id %s appears twice", l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return lines, nil
}

// persist writes the full list. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) {
	lines := s.lines
	if lines == nil {
		lines = []domain.LineItem{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		s.log.Error("failed to encode cart", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, s.key, data, 0); err != nil {
		s.log.Warn("failed to persist cart", zap.Int("lines", len(s.lines)), zap.Error(err))
	}
}

// Lines returns a copy of the current line list.
func (s *Store) Lines() []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.lines)
}

func cloneLines(lines []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(lines))
	for i, l := range lines {
		out[i] = l.Clone()
	}
	return out
}

// Summary is the read model handed to presentation code. Totals are derived
// on every call and never stored.
type Summary struct {
	Lines []domain.LineItem `json:"lines"`
	pricing.Breakdown
}

func (s *Store) Summary() Summary {
	lines := s.Lines()
	return Summary{Lines: lines, Breakdown: pricing.Calculate(lines)}
}

// AddItem merges quantity into the line for the same product with equivalent
// selections, or appends a new line. The product is copied, so the caller's
// snapshot is never aliased by the cart.
func (s *Store) AddItem(ctx context.Context, p domain.Product, quantity int, selections domain.Selections) (domain.LineItem, error) {
	if quantity < 1 {
		return domain.LineItem{}, ErrInvalidQuantity
	}
	if p.ID == "" {
		return domain.LineItem{}, ErrInvalidProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		l := &s.lines[i]
		if l.Product.ID == p.ID && l.Selections.Equivalent(selections) {
			l.Quantity += quantity
			s.persist(ctx)
			return l.Clone(), nil
		}
	}

	line := domain.LineItem{
		ID:         s.newID(),
		Product:    p.Clone(),
		Quantity:   quantity,
		Selections: selections.Clone(),
		AddedAt:    s.now(),
	}
	s.lines = append(s.lines, line)
	s.persist(ctx)
	return line.Clone(), nil
}

// RemoveLine removes exactly the line with lineID.
func (s *Store) RemoveLine(ctx context.Context, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
	return nil
}

// RemoveAllLinesForProduct removes every variant line of productID and
// reports how many went.
func (s *Store) RemoveAllLinesForProduct(ctx context.Context, productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.lines[:0]
	removed := 0
	for _, l := range s.lines {
		if l.Product.ID == productID {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	s.lines = kept
	if removed > 0 {
		s.persist(ctx)
	}
	return removed
}

// UpdateLineQuantity sets the quantity of one line. A quantity of zero or
// less removes the line.
func (s *Store) UpdateLineQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveLine(ctx, lineID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	s.lines[i].Quantity = quantity
	s.persist(ctx)
	return nil
}

// UpdateProductQuantity sets the quantity on every line of productID, or
// removes them all when quantity is zero or less. It reports how many lines
// were touched.
func (s *Store) UpdateProductQuantity(ctx context.Context, productID string, quantity int) int {
	if quantity <= 0 {
		return s.RemoveAllLinesForProduct(ctx, productID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			s.lines[i].Quantity = quantity
			n++
		}
	}
	if n > 0 {
		s.persist(ctx)
	}
	return n
}

// UpdateSelections replaces the selections of one line. When another line of
// the same product already has equivalent selections, the edited line's
// quantity is folded into it and the edited line goes away.
func (s *Store) UpdateSelections(ctx context.Context, lineID string, selections domain.Selections) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	for j := range s.lines {
		if j != i && s.lines[j].Product.ID == s.lines[i].Product.ID && s.lines[j].Selections.Equivalent(selections) {
			s.lines[j].Quantity += s.lines[i].Quantity
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			s.persist(ctx)
			return nil
		}
	}
	s.lines[i].Selections = selections.Clone()
	s.persist(ctx)
	return nil
}

// Replace swaps in a new line list, typically the result of a validator
// cleanup.
func (s *Store) Replace(ctx context.Context, lines []domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = cloneLines(lines)
	s.persist(ctx)
}

// Clear empties the cart and deletes the persisted entry rather than writing
// an empty list.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.log.Warn("failed to remove persisted cart", zap.Error(err))
	}
}

func (s *Store) indexOf(lineID string) int {
	for i, l := range s.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}
