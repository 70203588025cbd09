// Package sensor dispatches parsed telegram objects to registered
// callbacks keyed by OBIS code, generalizing the teacher's
// callback-per-key registration pattern (callbacks.go) from a single
// fixed override hook to an arbitrary many-keys-to-many-callbacks table.
package sensor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosmartmeter/efs-go/internal/telegram"
)

// Reading is one measurement handed to a Sensor callback: the OBIS code it
// came from, the numeric value parsed from the object's first value
// string, and the unit suffix (if any) that followed a "*" in that string.
type Reading struct {
	Code  telegram.ObisCode
	Value float64
	Unit  string
}

// Sensor receives one Reading per dispatched object that matches its
// registered OBIS code.
type Sensor func(Reading)

// Publisher is an optional fan-out sink given every reading regardless of
// whether any Sensor is registered for its code, e.g. to mirror readings to
// a metrics or logging backend. The daemon in cmd/efsd passes none.
type Publisher interface {
	Publish(Reading)
}

// Registry maps an ObisCode to the Sensors interested in it.
type Registry struct {
	sensors map[telegram.ObisCode][]Sensor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sensors: make(map[telegram.ObisCode][]Sensor)}
}

// Register adds sensor to the callbacks invoked for code.
func (r *Registry) Register(code telegram.ObisCode, sensor Sensor) {
	r.sensors[code] = append(r.sensors[code], sensor)
}

// ParseValueWithUnit splits a DSMR value string on "*" into a numeric value
// and a unit suffix. A bare numeric value with no unit is also accepted,
// with an empty unit. A "k"-prefixed unit scales the value by 1000 and
// drops the prefix, matching the DSMR convention for kilo-prefixed units.
func ParseValueWithUnit(raw string) (value float64, unit string, err error) {
	var parts = strings.SplitN(raw, "*", 2)

	value, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, "", fmt.Errorf("sensor: parsing value %q: %w", raw, err)
	}
	if len(parts) == 2 {
		unit = parts[1]
	}
	if strings.HasPrefix(unit, "k") {
		value *= 1000
		unit = unit[1:]
	}
	return value, unit, nil
}

// Dispatch walks result's objects, skipping the synthetic identifier
// object, parses each object's first value as a float, and invokes every
// Sensor registered for that object's OBIS code. If pub is non-nil every
// successfully parsed Reading is also published to it, regardless of
// whether any Sensor was registered for its code. Objects whose first
// value does not parse as a number (e.g. the pure-text fields in a
// telegram, like a device ID) are skipped rather than treated as an error:
// a malformed telegram has already been rejected by the parser itself.
func Dispatch(result telegram.Result, registry *Registry, pub Publisher) {
	var it = result.Objects()
	it.Next() // synthetic identifier object; not a sensor reading

	for it.Next() {
		var obj = it.Object()
		var values = obj.Values()
		if !values.Next() {
			continue
		}

		var value, unit, err = ParseValueWithUnit(string(values.Value()))
		if err != nil {
			continue
		}
		var reading = Reading{Code: obj.ObisCode, Value: value, Unit: unit}

		if pub != nil {
			pub.Publish(reading)
		}
		for _, s := range registry.sensors[obj.ObisCode] {
			s(reading)
		}
	}
}
