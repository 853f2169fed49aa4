package decoder

import (
	"fmt"
	"strconv"
)

// ModelNexusTH is the model name reported for every decoded frame.
const ModelNexusTH = "Nexus-TH"

// Reading is one decoded measurement.
type Reading struct {
	Model      string
	Sign       int // +1 or -1
	TempWhole  int
	TempTenths int
	Humidity   int // percent, clamped to 100
	BatteryOK  bool
	Channel    uint8 // 1-based
	ID         uint8
}

// Same reports whether r and o carry the same measurement. ID, channel and
// battery are not compared: two sensors on one channel with the same
// measurement count as one stable reading.
func (r Reading) Same(o Reading) bool {
	return r.Sign == o.Sign &&
		r.TempWhole == o.TempWhole &&
		r.TempTenths == o.TempTenths &&
		r.Humidity == o.Humidity
}

// Temperature formats the temperature with one fractional digit, e.g. "-0.5".
func (r Reading) Temperature() string {
	sign := ""
	if r.Sign < 0 {
		sign = "-"
	}
	return sign + strconv.Itoa(r.TempWhole) + "." + strconv.Itoa(r.TempTenths)
}

// TemperatureC returns the temperature in degrees Celsius.
func (r Reading) TemperatureC() float64 {
	return float64(r.Sign) * (float64(r.TempWhole) + float64(r.TempTenths)/10)
}

func (r Reading) String() string {
	return fmt.Sprintf("%s id=%d ch=%d %sC %d%%", r.Model, r.ID, r.Channel, r.Temperature(), r.Humidity)
}
