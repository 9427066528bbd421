// Package telemetry implements the sample-and-publish cycle: acquire a
// reading, validate it, encode the wire payload, and hand it to the
// broker session on a fixed cadence.
package telemetry

import (
	"strconv"
	"strings"

	"github.com/heru-iot/heru/internal/sensor"
)

// Encode produces the exact wire payload:
//
//	{"device_id": "<id>","temperature": <t>,"humidity": <h>}
//
// Member order, the space after each colon, and the absence of any
// other whitespace are contractual — downstream consumers were written
// against this byte layout, so the payload is assembled by hand rather
// than through encoding/json (which emits a different shape). Floats
// use fixed two-decimal formatting.
//
// The device identifier is not escaped. That is acceptable only
// because it is a trusted configuration constant; if identifiers ever
// become dynamic this is a latent injection defect.
func Encode(deviceID string, r sensor.Reading) []byte {
	var b strings.Builder
	b.Grow(64 + len(deviceID))

	b.WriteString(`{"device_id": "`)
	b.WriteString(deviceID)
	b.WriteString(`","temperature": `)
	b.WriteString(formatValue(r.Temperature))
	b.WriteString(`,"humidity": `)
	b.WriteString(formatValue(r.Humidity))
	b.WriteString("}")

	return []byte(b.String())
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
