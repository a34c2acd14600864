package catalog

import "sync/atomic"

// Store holds the currently served generation behind a single atomic
// pointer. Readers grab the pointer once per request and keep the
// generation alive for as long as they use it; Replace publishes a new
// generation without coordination because generations are immutable.
type Store struct {
	cur atomic.Pointer[Generation]
	seq atomic.Uint64
}

// NewStore returns an empty store. Current returns nil until the first
// Replace.
func NewStore() *Store {
	return &Store{}
}

// Current returns the serving generation, or nil before the first build.
func (s *Store) Current() *Generation {
	return s.cur.Load()
}

// Replace atomically publishes g as the serving generation.
func (s *Store) Replace(g *Generation) {
	s.cur.Store(g)
}

// NextSeq returns the sequence number for the next generation build.
// Sequences start at 1 so the zero wire index never matches a live
// generation tag by accident.
func (s *Store) NextSeq() uint64 {
	return s.seq.Add(1)
}
