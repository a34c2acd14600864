package catalog

import (
	"testing"

	"github.com/plugrelay/plugrelay/protocol"
)

// makeGeneration builds a generation by hand with the given seq and blob
// payloads, bypassing the filesystem.
func makeGeneration(seq uint64, payloads ...string) *Generation {
	g := &Generation{Seq: seq}
	for _, p := range payloads {
		g.table = append(g.table, &File{
			Location: protocol.AbsolutePath("/x"),
			Data:     []byte(p),
		})
	}
	return g
}

func TestEncodeDecodeIndex(t *testing.T) {
	tests := []struct {
		name string
		seq  uint64
		pos  int
	}{
		{"zero", 0, 0},
		{"small", 1, 5},
		{"large position", 3, 1 << 20},
		{"sequence wraps at 16 bits", 1<<16 + 9, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := EncodeIndex(tt.seq, tt.pos)
			tag, pos := DecodeIndex(wire)
			if tag != tt.seq&0xFFFF {
				t.Errorf("tag = %d, want %d", tag, tt.seq&0xFFFF)
			}
			if pos != uint64(tt.pos) {
				t.Errorf("pos = %d, want %d", pos, tt.pos)
			}
		})
	}
}

func TestLookupBounds(t *testing.T) {
	g := makeGeneration(2, "a", "b")

	if f, ok := g.Lookup(EncodeIndex(2, 0)); !ok || string(f.Data) != "a" {
		t.Errorf("lookup 0 = %v, %v", f, ok)
	}
	if f, ok := g.Lookup(EncodeIndex(2, 1)); !ok || string(f.Data) != "b" {
		t.Errorf("lookup 1 = %v, %v", f, ok)
	}

	// At and beyond the table bound.
	if _, ok := g.Lookup(EncodeIndex(2, 2)); ok {
		t.Error("lookup at table bound must miss")
	}
	if _, ok := g.Lookup(EncodeIndex(2, 1<<30)); ok {
		t.Error("lookup far beyond bound must miss")
	}
}

func TestLookupRejectsStaleGeneration(t *testing.T) {
	old := makeGeneration(1, "old-a", "old-b")
	cur := makeGeneration(2, "new-a", "new-b", "new-c")

	staleIdx := EncodeIndex(old.Seq, 1)

	// The new table is longer, so an untagged index would have silently
	// read the wrong blob. The tag makes it miss instead.
	if _, ok := cur.Lookup(staleIdx); ok {
		t.Error("stale index accepted by newer generation")
	}
	// The index still works against the generation that minted it.
	if f, ok := old.Lookup(staleIdx); !ok || string(f.Data) != "old-b" {
		t.Errorf("minting generation lookup = %v, %v", f, ok)
	}
}

func TestStoreReplaceAndSequence(t *testing.T) {
	s := NewStore()
	if s.Current() != nil {
		t.Fatal("empty store must serve nil")
	}

	if seq := s.NextSeq(); seq != 1 {
		t.Errorf("first seq = %d, want 1", seq)
	}
	if seq := s.NextSeq(); seq != 2 {
		t.Errorf("second seq = %d, want 2", seq)
	}

	g1 := makeGeneration(1, "a")
	g2 := makeGeneration(2, "b")
	s.Replace(g1)
	if s.Current() != g1 {
		t.Error("store did not publish g1")
	}
	s.Replace(g2)
	if s.Current() != g2 {
		t.Error("store did not publish g2")
	}

	// A reader that grabbed g1 before the swap still sees g1's blobs.
	if f, ok := g1.Lookup(EncodeIndex(1, 0)); !ok || string(f.Data) != "a" {
		t.Errorf("old generation blob lost after swap: %v, %v", f, ok)
	}
}
