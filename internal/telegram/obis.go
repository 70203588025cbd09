package telegram

import (
	"fmt"
)

// ObisCode identifies a single measurement: a 5-tuple (A, B, C, D, E).
// Equality and ordering are lexicographic over the five components.
type ObisCode struct {
	A, B, C, D, E byte
}

// Compare returns -1, 0, or 1 the way bytes.Compare does, ordering
// lexicographically over A, B, C, D, E in turn.
func (o ObisCode) Compare(other ObisCode) int {
	var a = [5]byte{o.A, o.B, o.C, o.D, o.E}
	var b = [5]byte{other.A, other.B, other.C, other.D, other.E}
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// Equal reports whether two OBIS codes identify the same measurement.
func (o ObisCode) Equal(other ObisCode) bool {
	return o.Compare(other) == 0
}

func (o ObisCode) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d", o.A, o.B, o.C, o.D, o.E)
}

// ParseObisCodeString parses the "A-B:C.D.E" form produced by String, the
// form a sensor mapping in the daemon's configuration file names its OBIS
// code with. It reports false if s does not match that shape exactly.
func ParseObisCodeString(s string) (ObisCode, bool) {
	var a, b, c, d, e int
	var rest string
	// A sixth item scanned means s has text after the fifth part.
	var n, _ = fmt.Sscanf(s, "%d-%d:%d.%d.%d%s", &a, &b, &c, &d, &e, &rest)
	if n != 5 {
		return ObisCode{}, false
	}
	if a < 0 || a > 255 || b < 0 || b > 255 || c < 0 || c > 255 || d < 0 || d > 255 || e < 0 || e > 255 {
		return ObisCode{}, false
	}
	return ObisCode{A: byte(a), B: byte(b), C: byte(c), D: byte(d), E: byte(e)}, true
}
