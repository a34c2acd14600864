package catalog

// Download indices are generation-tagged: the high 16 bits of the wire
// value carry the generation sequence (mod 2^16), the low 48 bits the
// position in the generation's flat table. A client replaying an index
// from a superseded generation is rejected instead of silently reading
// whatever blob now sits at that position.
const (
	posBits = 48
	posMask = uint64(1)<<posBits - 1
	tagMask = ^posMask
)

// EncodeIndex builds the wire download index for a table position within
// the generation identified by seq.
func EncodeIndex(seq uint64, pos int) uint64 {
	return seq<<posBits&tagMask | uint64(pos)&posMask
}

// DecodeIndex splits a wire download index into its generation tag and
// table position.
func DecodeIndex(wire uint64) (tag uint64, pos uint64) {
	return wire >> posBits, wire & posMask
}
