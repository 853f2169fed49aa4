package decoder

// PayloadBits is the Nexus-TH payload length. A frame carries one extra
// terminator symbol that is never decoded.
const PayloadBits = 36

// FrameLen is the number of symbols in a complete frame.
const FrameLen = PayloadBits + 1

// Field is a bit range within the payload, numbered from the first bit on air.
type Field struct {
	Start int
	Width int
}

// Nexus-TH payload layout, most significant bit first:
//
//	0       8  9  10   12           24   28        36
//	| id(8) |b |? | ch | temp(12)   |1111| hum(8)  |
//
// b is the battery-ok flag and ch the zero-based channel. Bit 9 and the
// constant nibble are not decoded.
var Layout = struct {
	ID          Field
	Battery     Field
	Channel     Field
	Temperature Field
	Humidity    Field
}{
	ID:          Field{Start: 0, Width: 8},
	Battery:     Field{Start: 8, Width: 1},
	Channel:     Field{Start: 10, Width: 2},
	Temperature: Field{Start: 12, Width: 12},
	Humidity:    Field{Start: 28, Width: 8},
}

// constNibble is the fixed pattern transmitted in bits 24..27.
var constNibble = Field{Start: 24, Width: 4}

// BitStream holds the gap durations of the payload symbols. Bits are
// classified lazily, so a bad duration only fails the fields that cover it.
type BitStream struct {
	gaps   [PayloadBits]uint16
	timing Timing
}

func newBitStream(run []Symbol, t Timing) BitStream {
	b := BitStream{timing: t}
	for i := range b.gaps {
		b.gaps[i] = run[i].gap()
	}
	return b
}

// Uint reads f as an unsigned integer, most significant bit first.
func (b *BitStream) Uint(f Field) (uint32, error) {
	var v uint32
	for _, d := range b.gaps[f.Start : f.Start+f.Width] {
		bit, err := b.timing.Classify(d)
		if err != nil {
			return 0, err
		}
		v = v<<1 | bit
	}
	return v, nil
}
