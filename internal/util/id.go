// Package util provides IDs, clocks and formatting shared across the
// blood bank packages.
package util

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces time-ordered UUIDv7 identifiers.
type IDGenerator struct {
	mu sync.Mutex
}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewID generates a new UUIDv7 identifier. UUIDv7 keeps inserts in index
// order, which matters for the ledger entry tables.
func (g *IDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		// Only fails if the system random source is broken.
		return uuid.New().String()
	}
	return id.String()
}

var generator = NewIDGenerator()

// NewID generates a new UUIDv7 identifier from the shared generator.
func NewID() string {
	return generator.NewID()
}

// ParseID validates and normalizes a UUID string.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return id.String(), nil
}

// IsValidID checks if a string is a valid UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ShortID returns the first block of an ID for display.
func ShortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}
