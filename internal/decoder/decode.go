package decoder

const (
	// tempFold is the raw value above which the temperature is negative.
	tempFold = 2048
	// tempModulus recovers the magnitude of a negative raw temperature.
	tempModulus = 4096
	// maxWholeDegrees bounds plausible temperatures; anything outside
	// [0, maxWholeDegrees) is treated as a corrupted frame.
	maxWholeDegrees = 60
	maxHumidity     = 100
)

// Validate checks the frame structure: the symbol count, then the width of
// every carrier pulse, terminator included. It runs over the whole frame
// before any bit is read.
func Validate(run []Symbol, t Timing) error {
	if len(run) != FrameLen {
		return &DecodeError{Err: ErrPayloadLength, Value: len(run)}
	}
	for _, s := range run {
		for _, seg := range [2]Segment{s.First, s.Second} {
			if seg.Level == High && !t.Carrier.Contains(seg.Duration) {
				return &DecodeError{Err: ErrPulseRange, Value: int(seg.Duration)}
			}
		}
	}
	return nil
}

// Decode decodes one received pulse run. channel is the expected 1-based
// channel; 0 accepts any. On ErrChannelMismatch the decoded reading is
// returned alongside the error so callers can ignore the filter.
func Decode(run []Symbol, channel uint8) (Reading, error) {
	return DecodeWith(run, channel, NexusTiming)
}

// DecodeWith is Decode with an explicit timing table.
func DecodeWith(run []Symbol, channel uint8, t Timing) (Reading, error) {
	if err := Validate(run, t); err != nil {
		return Reading{}, err
	}
	bits := newBitStream(run, t)

	raw, err := bits.Uint(Layout.Temperature)
	if err != nil {
		return Reading{}, err
	}
	sign := 1
	temp10 := int(raw)
	if temp10 > tempFold {
		sign = -1
		temp10 = tempModulus - temp10
	}
	whole, tenths := temp10/10, temp10%10
	if whole < 0 || whole >= maxWholeDegrees {
		return Reading{}, &DecodeError{Err: ErrTemperatureRange, Value: whole, Sign: sign}
	}

	hum, err := bits.Uint(Layout.Humidity)
	if err != nil {
		return Reading{}, err
	}
	battery, err := bits.Uint(Layout.Battery)
	if err != nil {
		return Reading{}, err
	}
	ch, err := bits.Uint(Layout.Channel)
	if err != nil {
		return Reading{}, err
	}
	id, err := bits.Uint(Layout.ID)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		Model:      ModelNexusTH,
		Sign:       sign,
		TempWhole:  whole,
		TempTenths: tenths,
		Humidity:   min(int(hum), maxHumidity),
		BatteryOK:  battery == 1,
		Channel:    uint8(ch) + 1,
		ID:         uint8(id),
	}
	if channel != 0 && r.Channel != channel {
		return r, &DecodeError{Err: ErrChannelMismatch, Value: int(r.Channel)}
	}
	return r, nil
}

// Fields is the raw content of one transmission before scaling.
type Fields struct {
	ID          uint8
	BatteryOK   bool
	Channel     uint8  // 1-based, 1..4
	Temperature uint16 // 12-bit raw value in tenths, folded at 2048
	Humidity    uint8
}

// Nominal timings used by Encode, centred in the NexusTiming windows.
const (
	nominalPulse = 500
	nominalZero  = 950
	nominalOne   = 1900
)

// Encode synthesizes the pulse run a transmitter would produce for f, using
// nominal timings. The result always has FrameLen symbols.
func Encode(f Fields) []Symbol {
	var bits [PayloadBits]bool
	put := func(fl Field, v uint32) {
		for i := 0; i < fl.Width; i++ {
			bits[fl.Start+i] = v>>(fl.Width-1-i)&1 == 1
		}
	}
	put(Layout.ID, uint32(f.ID))
	if f.BatteryOK {
		put(Layout.Battery, 1)
	}
	put(Layout.Channel, uint32(f.Channel-1)&0x3)
	put(Layout.Temperature, uint32(f.Temperature)&0xfff)
	put(constNibble, 0xf)
	put(Layout.Humidity, uint32(f.Humidity))

	run := make([]Symbol, 0, FrameLen)
	for _, b := range bits {
		gap := uint16(nominalZero)
		if b {
			gap = nominalOne
		}
		run = append(run, Symbol{
			First:  Segment{Level: High, Duration: nominalPulse},
			Second: Segment{Level: Low, Duration: gap},
		})
	}
	return append(run, Symbol{
		First:  Segment{Level: High, Duration: nominalPulse},
		Second: Segment{Level: Low},
	})
}
