// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings. Process ids use v7 so they sort by
// creation time; generated image names use v4.
type Generator struct {
	random bool
}

// New creates a Generator producing UUIDv7 strings.
func New() *Generator {
	return &Generator{}
}

// NewRandom creates a Generator producing UUIDv4 strings.
func NewRandom() *Generator {
	return &Generator{random: true}
}

// NewID returns a fresh UUID string.
func (g Generator) NewID() (string, error) {
	if g.random {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate uuid4: %w", err)
		}
		return id.String(), nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether id parses as a UUID. The API uses it to reject
// malformed process ids before touching the store.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
