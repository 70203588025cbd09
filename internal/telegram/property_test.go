package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestParseTelegramNeverPanicsOnArbitraryInput is the memory-safety
// property: ParseTelegram never panics, and never reports a read or write
// cursor past the buffer it was given, for any byte slice at all.
func TestParseTelegramNeverPanicsOnArbitraryInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var buf = rapid.SliceOf(rapid.Byte()).Draw(t, "buf")

		assert.NotPanics(t, func() {
			var result = ParseTelegram(buf)
			assert.LessOrEqual(t, result.Len(), len(buf))
		})
	})
}

// TestParseTelegramDeterministic is the determinism property: parsing the
// same bytes twice always produces the same status and the same compacted
// length.
func TestParseTelegramDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var buf = rapid.SliceOf(rapid.Byte()).Draw(t, "buf")

		var a = make([]byte, len(buf))
		var b = make([]byte, len(buf))
		copy(a, buf)
		copy(b, buf)

		var resultA = ParseTelegram(a)
		var resultB = ParseTelegram(b)

		assert.Equal(t, resultA.Status, resultB.Status)
		assert.Equal(t, resultA.Len(), resultB.Len())
		if resultA.Status == StatusOK {
			assert.Equal(t, a[:resultA.Len()], b[:resultB.Len()])
		}
	})
}

// TestParseTelegramSuccessfulWritePositionNeverPassesReadPosition draws a
// valid telegram body (identifier plus a handful of well-formed objects)
// and checks that a successful parse's compacted region never exceeds the
// amount of input consumed - the same invariant the parser enforces
// byte-by-byte internally, checked here end to end.
func TestParseTelegramSuccessfulWritePositionNeverPassesReadPosition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var identifier = rapid.StringMatching(`[A-Za-z0-9]{1,20}`).Draw(t, "identifier")
		var numObjects = rapid.IntRange(0, 5).Draw(t, "numObjects")

		var text = "/" + identifier + "\r\n"
		for i := 0; i < numObjects; i++ {
			var a = rapid.IntRange(0, 255).Draw(t, "a")
			var b = rapid.IntRange(0, 255).Draw(t, "b")
			var c = rapid.IntRange(0, 255).Draw(t, "c")
			var value = rapid.StringMatching(`[A-Za-z0-9.]{0,10}`).Draw(t, "value")
			text += fmtObis(a, b, c) + "(" + value + ")\r\n"
		}

		var buf = []byte(text)
		var result = ParseTelegram(buf)
		if result.Status == StatusOK {
			assert.LessOrEqual(t, result.Len(), len(buf))
		}
	})
}

func fmtObis(a, b, c int) string {
	return itoa(a) + "-" + itoa(b) + ":" + itoa(c) + ".8.0"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
