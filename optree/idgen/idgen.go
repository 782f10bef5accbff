// Package idgen provides the IdSource collaborator optree injects to
// mint opaque execution identifiers, with a default backed by
// segmentio/ksuid so a template's history map sorts chronologically by
// id for free.
package idgen

import (
	"strconv"

	"github.com/segmentio/ksuid"
)

// IdSource produces unique, opaque execution identifiers.
type IdSource interface {
	NewID() string
}

type ksuidSource struct{}

// New returns the default k-sortable IdSource.
func New() IdSource {
	return ksuidSource{}
}

func (ksuidSource) NewID() string {
	return ksuid.New().String()
}

// Sequential is a deterministic IdSource for tests: it returns "0", "1",
// "2"... in call order.
type Sequential struct {
	next int
}

// NewSequential returns a fresh Sequential source starting at 0.
func NewSequential() *Sequential {
	return &Sequential{}
}

func (s *Sequential) NewID() string {
	id := s.next
	s.next++
	return strconv.Itoa(id)
}
