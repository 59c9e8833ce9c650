// Package uuid generates run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 identifiers.
type Generator struct{}

// NewUUIDGenerator creates a new Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewRunID returns a UUIDv7 for a new batch run.
func (Generator) NewRunID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// MustRunID is NewRunID for callers that cannot recover from entropy failure.
func (g Generator) MustRunID() uuid.UUID {
	id, err := g.NewRunID()
	if err != nil {
		panic(err)
	}
	return id
}
