package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelegramEmptyBuffer(t *testing.T) {
	var result = ParseTelegram([]byte{})
	assert.Equal(t, StatusStartNotFound, result.Status)
}

func TestParseTelegramNoLeadingSlash(t *testing.T) {
	var result = ParseTelegram([]byte("X123"))
	assert.Equal(t, StatusStartNotFound, result.Status)
}

func TestParseTelegramIdentifierOnly(t *testing.T) {
	var buf = []byte("/XYZ\r\n")
	var result = ParseTelegram(buf)
	require.Equal(t, StatusOK, result.Status)

	var it = result.Objects()
	require.True(t, it.Next())
	var obj = it.Object()
	assert.Equal(t, ObisCode{}, obj.ObisCode)
	assert.Equal(t, 1, obj.NumValues)

	var values = obj.Values()
	require.True(t, values.Next())
	assert.Equal(t, "XYZ", string(values.Value()))
	assert.False(t, values.Next())

	assert.False(t, it.Next())
	assert.True(t, it.Done())
}

func TestParseTelegramInvalidObisCodeSixthPart(t *testing.T) {
	var buf = []byte("/XYZ\r\n1-0:1.8.0*254(0)\r\n!0000")
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusInvalidObisCode, result.Status)
}

func TestParseTelegramCrcCheckFailed(t *testing.T) {
	var buf = []byte("/ISK5\r\n1-0:1.8.0(123)\r\n!1234\r\n")
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusCrcCheckFailed, result.Status)
}

func TestParseTelegramInvalidCrcHex(t *testing.T) {
	var buf = []byte("/ISK5\r\n1-0:1.8.0(123)\r\n!XXXX\r\n")
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusInvalidCrc, result.Status)
}

func TestParseTelegramCorrectCrcPasses(t *testing.T) {
	// CRC-16/ARC of "/ISK5\r\n1-0:1.8.0(123)\r\n!" is 0xB004.
	var buf = []byte("/ISK5\r\n1-0:1.8.0(123)\r\n!B004\r\n")
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusOK, result.Status)
}

func TestParseTelegramNoCrcMarker(t *testing.T) {
	var buf = []byte("/ISK5\r\n1-0:1.8.0*255(123)\r\n")
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusOK, result.Status)
}

func TestParseTelegramSixPartObisRequires255(t *testing.T) {
	// The 6th group is only accepted if exactly 255.
	var ok = []byte("/X\r\n1-0:1.8.0*255(1)\r\n")
	var result = ParseTelegram(ok)
	assert.Equal(t, StatusOK, result.Status)

	var bad = []byte("/X\r\n1-0:1.8.0*100(1)\r\n")
	var result2 = ParseTelegram(bad)
	assert.Equal(t, StatusInvalidObisCode, result2.Status)
}

func TestParseTelegramFourPartObisAccepted(t *testing.T) {
	// The blank line gives the write cursor enough unread input ahead of it
	// to clear the object header before any of the object's own bytes need
	// to be written - see TestParseTelegramWriteOverflow for what happens
	// without that slack.
	var buf = []byte("/X\r\n\r\n1-0:1.8(1)\r\n")
	var result = ParseTelegram(buf)
	require.Equal(t, StatusOK, result.Status)

	var it = result.Objects()
	require.True(t, it.Next()) // identifier
	require.True(t, it.Next())
	assert.Equal(t, ObisCode{A: 1, B: 0, C: 1, D: 8, E: 0}, it.Object().ObisCode)
}

func TestParseTelegramTooManyObjects(t *testing.T) {
	var body = "/X\r\n"
	for i := 0; i < 256; i++ {
		body += "1-0:1.8.0(1)\r\n"
	}
	var result = ParseTelegram([]byte(body))
	assert.Equal(t, StatusTooManyObjects, result.Status)
}

func TestParseTelegramObjectTooLong(t *testing.T) {
	// A single value long enough to push object_size over 8192.
	var value = make([]byte, 9000)
	for i := range value {
		value[i] = 'a'
	}
	var body = "/X\r\n1-0:1.8.0(" + string(value) + ")\r\n"
	var result = ParseTelegram([]byte(body))
	assert.Equal(t, StatusObjectTooLong, result.Status)
}

func TestParseTelegramHeaderTooLong(t *testing.T) {
	var header = make([]byte, 300)
	for i := range header {
		header[i] = 'a'
	}
	var body = "/" + string(header) + "\r\n"
	var result = ParseTelegram([]byte(body))
	assert.Equal(t, StatusHeaderTooLong, result.Status)
}

func TestParseTelegramBufferNotAligned(t *testing.T) {
	// Go's allocator aligns slice backing arrays to at least 8 bytes, so
	// slicing off the first byte reliably yields an odd start address.
	var backing = make([]byte, 16)
	var buf = backing[1:]
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusBufferNotAligned, result.Status)
}

func TestIsTwoByteAlignedEmptyBuffer(t *testing.T) {
	assert.True(t, isTwoByteAligned(nil))
	assert.True(t, isTwoByteAligned([]byte{}))
}

func TestParseTelegramWriteOverflow(t *testing.T) {
	// A terse four-part OBIS code with no values at all: "1.1.1.1\r\n" is 9
	// source bytes, but the object's 8-byte binary header plus its 1-byte
	// zero-value marker need 9 bytes of output, and the header has to be
	// reserved (checked against the read cursor) before any of those value
	// bytes have been read. There isn't enough unread input yet to cover
	// it, so the write cursor would have to cross the read cursor.
	var buf = []byte("/X\r\n1.1.1.1\r\n")
	var result = ParseTelegram(buf)
	assert.Equal(t, StatusWriteOverflow, result.Status)
}

func TestParseTelegramDeterminism(t *testing.T) {
	var body = []byte("/ISK5\r\n1-0:1.8.0(123)\r\n!B004\r\n")

	var bufA = append([]byte(nil), body...)
	var bufB = append([]byte(nil), body...)

	var resultA = ParseTelegram(bufA)
	var resultB = ParseTelegram(bufB)

	assert.Equal(t, resultA.Status, resultB.Status)
	assert.Equal(t, bufA, bufB)
}

func TestParseTelegramIteratorRestartsFromSameResult(t *testing.T) {
	var buf = []byte("/ISK5\r\n1-0:1.8.0(123)\r\n!B004\r\n")
	var result = ParseTelegram(buf)
	require.Equal(t, StatusOK, result.Status)

	var collect = func() []ObisCode {
		var codes []ObisCode
		var it = result.Objects()
		for it.Next() {
			codes = append(codes, it.Object().ObisCode)
		}
		return codes
	}

	assert.Equal(t, collect(), collect())
}
