package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// WatchListEntry is a watched item type.
type WatchListEntry struct {
	TypeID int32   `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Price  float64 `json:"price,omitempty" yaml:"price,omitempty"`
	Max    int     `json:"max" yaml:"max"`
}

// ReferencePrice returns the entry price or fallback when none is configured.
func (e WatchListEntry) ReferencePrice(fallback float64) float64 {
	if e.Price > 0 {
		return e.Price
	}
	return fallback
}

// WatchList is the ordered set of watched types. Order is display order.
type WatchList []WatchListEntry

// Decode parses a JSON watch-list from an environment variable.
func (w *WatchList) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*w = nil
		return nil
	}
	var entries WatchList
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return fmt.Errorf("failed to parse watch-list: %w", err)
	}
	*w = entries
	return nil
}

// Validate checks type ids are unique and entries are well formed.
func (w WatchList) Validate() error {
	seen := make(map[int32]struct{}, len(w))
	var errs []error
	for i, e := range w {
		if e.TypeID <= 0 {
			errs = append(errs, fmt.Errorf("entry %d: invalid type id %d", i, e.TypeID))
		}
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Errorf("entry %d: name is required", i))
		}
		if e.Max < 0 {
			errs = append(errs, fmt.Errorf("entry %d: max must not be negative", i))
		}
		if _, dup := seen[e.TypeID]; dup {
			errs = append(errs, fmt.Errorf("entry %d: duplicate type id %d", i, e.TypeID))
		}
		seen[e.TypeID] = struct{}{}
	}
	return errors.Join(errs...)
}

// Tally counts watched item occurrences. Keys are always watch-list type ids.
type Tally map[int32]int

// NewTally returns a tally with a zero count for every watched type.
func NewTally(w WatchList) Tally {
	t := make(Tally, len(w))
	for _, e := range w {
		t[e.TypeID] = 0
	}
	return t
}

// Add counts one occurrence of typeID if it is watched.
func (t Tally) Add(typeID int32) {
	if _, ok := t[typeID]; ok {
		t[typeID]++
	}
}
