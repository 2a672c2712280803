package sensor

import (
	"encoding/json"
	"math"
)

// Gateways differ in how they spell the power field depending on the sensor
// profile and firmware; probe the known variants in order.
var (
	powerKeys   = []string{"instantaneousPower", "InstantaneousPower", "Power", "CalculatedPower"}
	cadenceKeys = []string{"cadence", "Cadence", "CalculatedCadence"}
	speedKeys   = []string{"RealSpeed", "speed", "Speed"}
)

// Reading is one decoded telemetry event. Fields are nil when the payload
// carried no usable value; absent is never conflated with zero.
type Reading struct {
	DeviceID *int64   `json:"id,omitempty"`
	PowerW   *float64 `json:"power,omitempty"`
	Cadence  *float64 `json:"cadence,omitempty"`
	SpeedKPH *float64 `json:"speedKph,omitempty"`
}

// decodeReading parses a gateway JSON payload. Returns false when the
// payload is not a JSON object; unusable fields are simply left nil.
func decodeReading(payload []byte) (Reading, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Reading{}, false
	}

	var r Reading
	if v := pickNum(fields, "deviceId", "DeviceID", "id"); v != nil {
		id := int64(*v)
		r.DeviceID = &id
	}
	r.PowerW = pickNum(fields, powerKeys...)
	r.Cadence = pickNum(fields, cadenceKeys...)
	if v := pickNum(fields, speedKeys...); v != nil {
		// Native value is meters per second.
		kph := *v * 3.6
		r.SpeedKPH = &kph
	}
	return r, true
}

// pickNum returns the first key holding a finite number, or nil.
func pickNum(fields map[string]json.RawMessage, keys ...string) *float64 {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		return &v
	}
	return nil
}
