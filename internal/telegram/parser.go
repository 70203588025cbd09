// Package telegram implements the DSMR-style telegram parser: a
// single-pass, in-place, zero-copy state machine that rewrites an ASCII
// smart-meter telegram into a compact binary record sequence, plus the
// forward iterators that walk the result without further allocation.
package telegram

import (
	"unsafe"

	"github.com/gosmartmeter/efs-go/internal/crc16"
)

const (
	crMark  = '\r'
	lfMark  = '\n'
	nulMark = 0
)

// parseState is the state machine's current state.
type parseState int

const (
	stateAwaitStart parseState = iota
	stateInHeader
	stateScanning
	stateInObject
	stateReadCrc
	stateDone
)

// parser holds the read cursor, write cursor, status, and CRC accumulator
// for a single ParseTelegram call. It is not reused across calls.
type parser struct {
	buf      []byte
	readPos  int
	writePos int
	status   Status
	crc      crc16.Accumulator

	numObjects    int
	numObjectsPos int

	preambleFlushed bool
}

// ParseTelegram parses buffer in place, per §4.2: it overwrites buffer with
// the compacted binary record layout and returns a Result describing the
// outcome. buffer's backing array must start at a 2-byte-aligned address -
// a property of the allocation, not of how much of the buffer holds
// meaningful telegram bytes.
func ParseTelegram(buffer []byte) Result {
	return parseTelegram(buffer, crc16.New())
}

// parseTelegram is the accumulator-injectable entry point: ParseTelegram
// calls it with a CRC-16/ARC accumulator, and any other crc16.Accumulator
// (such as a stub that isolates the state machine from CRC correctness) can
// be passed in its place.
func parseTelegram(buffer []byte, acc crc16.Accumulator) Result {
	if !isTwoByteAligned(buffer) {
		return Result{Status: StatusBufferNotAligned}
	}

	var p = &parser{buf: buffer, crc: acc}
	p.run()
	return Result{Status: p.status, data: p.buf[:p.writePos]}
}

// isTwoByteAligned checks the address of the buffer's backing array, which
// is the thing the original precondition actually constrains - not the
// number of meaningful bytes it holds. An empty buffer has nothing to
// misalign and is trivially aligned.
func isTwoByteAligned(buffer []byte) bool {
	if len(buffer) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&buffer[0]))%2 == 0
}

func (p *parser) run() {
	var state = stateAwaitStart
	for state != stateDone {
		switch state {
		case stateAwaitStart:
			state = p.awaitStart()
		case stateInHeader:
			state = p.inHeader()
		case stateScanning:
			state = p.scanning()
		case stateInObject:
			state = p.inObject()
		case stateReadCrc:
			state = p.readCrc()
		}
		if p.status != StatusOK {
			return
		}
	}
}

// --- cursor helpers -------------------------------------------------

func (p *parser) atEnd() bool {
	return p.readPos >= len(p.buf)
}

func (p *parser) peek() (byte, bool) {
	if p.atEnd() {
		return 0, false
	}
	return p.buf[p.readPos], true
}

// advance consumes and returns the current byte without feeding the CRC;
// call crc.Update explicitly at call sites so the ReadCrc suppression is
// visible at the point it happens rather than buried in a helper.
func (p *parser) advance() byte {
	var b = p.buf[p.readPos]
	p.readPos++
	return b
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isSeparator(b byte) bool {
	return b == '-' || b == ':' || b == '.' || b == '*'
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	default:
		return int(b-'A') + 10
	}
}

// --- write discipline -------------------------------------------------

// canWrite reports whether n more bytes may be written without the write
// cursor crossing the read cursor. On failure it sets StatusWriteOverflow;
// the caller must stop writing and unwind to run(), which checks p.status
// after every state transition.
func (p *parser) canWrite(n int) bool {
	if p.readPos-p.writePos < n {
		p.status = StatusWriteOverflow
		return false
	}
	return true
}

func (p *parser) writeByte(b byte) bool {
	if !p.canWrite(1) {
		return false
	}
	p.buf[p.writePos] = b
	p.writePos++
	return true
}

func (p *parser) writeBytes(data []byte) bool {
	if !p.canWrite(len(data)) {
		return false
	}
	copy(p.buf[p.writePos:], data)
	p.writePos += len(data)
	return true
}

// padToEven writes one zero byte if the write cursor currently sits at an
// odd offset, so the next field starts even-aligned.
func (p *parser) padToEven() bool {
	if p.writePos%2 == 0 {
		return true
	}
	return p.writeByte(0)
}

// --- states -------------------------------------------------------------

func (p *parser) awaitStart() parseState {
	var c, ok = p.peek()
	if !ok || c != '/' {
		p.status = StatusStartNotFound
		return stateDone
	}
	p.advance()
	p.crc.Update(c)
	return stateInHeader
}

// inHeader copies the identifier line (everything up to CR LF) into the
// output, terminated by a NUL and padded to an even offset.
func (p *parser) inHeader() parseState {
	var headerLen = 0
	for {
		if p.atEnd() {
			p.status = StatusParsingFailed
			return stateDone
		}
		var c = p.advance()
		p.crc.Update(c)

		if c == nulMark {
			p.status = StatusParsingFailed
			return stateDone
		}

		if c == crMark {
			if p.atEnd() {
				p.status = StatusParsingFailed
				return stateDone
			}
			var lf = p.advance()
			p.crc.Update(lf)
			if lf != lfMark {
				p.status = StatusParsingFailed
				return stateDone
			}
			break
		}

		headerLen++
		if headerLen > 256 {
			p.status = StatusHeaderTooLong
			return stateDone
		}
		if !p.writeByte(c) {
			return stateDone
		}
	}

	if !p.writeByte(0) {
		return stateDone
	}

	return stateScanning
}

// flushPreamble writes the num_objects placeholder (patched in finish) and
// its surrounding alignment padding. It is deferred past the identifier
// line - rather than written immediately after it - so the write discipline
// is checked against a read cursor that has already advanced into the first
// object's OBIS code (or to end of input, for a telegram with no objects at
// all), instead of stalling on a buffer that has only just cleared the
// identifier. Idempotent: only the first call does anything.
func (p *parser) flushPreamble() bool {
	if p.preambleFlushed {
		return true
	}
	p.preambleFlushed = true

	if !p.padToEven() {
		return false
	}
	p.numObjectsPos = p.writePos
	if !p.writeByte(0) {
		return false
	}
	return p.padToEven()
}

func (p *parser) scanning() parseState {
	for {
		var c, ok = p.peek()
		if !ok {
			// End of buffer with no '!' marker: a well-formed telegram
			// that simply omits the checksum footer.
			if !p.flushPreamble() {
				return stateDone
			}
			return p.finish()
		}

		switch {
		case c == crMark || c == lfMark || c == ' ':
			p.advance()
			p.crc.Update(c)
			continue
		case c == '!':
			p.advance()
			p.crc.Update(c)
			if !p.flushPreamble() {
				return stateDone
			}
			return stateReadCrc
		case c == nulMark:
			if !p.flushPreamble() {
				return stateDone
			}
			return p.finish()
		case isDigit(c):
			if p.numObjects >= maxObjects {
				p.status = StatusTooManyObjects
				return stateDone
			}
			return stateInObject
		default:
			p.status = StatusParsingFailed
			return stateDone
		}
	}
}

// finish patches num_objects and leaves status at whatever it currently is
// (StatusOK unless something upstream already failed).
func (p *parser) finish() parseState {
	p.buf[p.numObjectsPos] = byte(p.numObjects)
	return stateDone
}

// parsePart reads 1..3 decimal digits with early-exit overflow detection,
// feeding each consumed digit to the CRC. Returns ok=false on overflow, on a
// fourth digit, or if no digit is present at all.
func (p *parser) parsePart() (value int, ok bool) {
	var acc = 0
	var digits = 0
	for {
		var c, peeked = p.peek()
		if !peeked || !isDigit(c) {
			break
		}
		var d = int(c - '0')
		if digits == 3 || acc > 25 || (acc == 25 && d > 5) {
			return 0, false
		}
		acc = acc*10 + d
		digits++
		p.advance()
		p.crc.Update(c)
	}
	if digits == 0 {
		return 0, false
	}
	return acc, true
}

// parseObisCode reads "part (sep part){3..5}" starting at the current
// cursor (which must already be sitting on a digit).
func (p *parser) parseObisCode() (ObisCode, bool) {
	var parts [6]int
	var n = 0

	for {
		var value, ok = p.parsePart()
		if !ok {
			return ObisCode{}, false
		}
		if n >= 6 {
			return ObisCode{}, false
		}
		parts[n] = value
		n++

		var c, peeked = p.peek()
		if !peeked {
			return ObisCode{}, false
		}
		if isSeparator(c) {
			p.advance()
			p.crc.Update(c)
			continue
		}
		break
	}

	if n < 4 {
		return ObisCode{}, false
	}
	if n == 6 && parts[5] != 255 {
		return ObisCode{}, false
	}

	var obis = ObisCode{
		A: byte(parts[0]),
		B: byte(parts[1]),
		C: byte(parts[2]),
		D: byte(parts[3]),
	}
	if n >= 5 {
		obis.E = byte(parts[4])
	}
	return obis, true
}

func (p *parser) inObject() parseState {
	var obis, ok = p.parseObisCode()
	if !ok {
		p.status = StatusInvalidObisCode
		return stateDone
	}

	if !p.flushPreamble() {
		return stateDone
	}

	var headerPos = p.writePos
	if !p.writeBytes(make([]byte, headerSize)) {
		return stateDone
	}

	var numValues byte
	for {
		var c, peeked = p.peek()
		if !peeked {
			p.status = StatusParsingFailed
			return stateDone
		}

		if c == '(' {
			if !p.readValueGroup() {
				return stateDone
			}
			numValues++
			continue
		}

		if c == crMark {
			p.advance()
			p.crc.Update(c)
			if p.atEnd() {
				p.status = StatusParsingFailed
				return stateDone
			}
			var lf = p.advance()
			p.crc.Update(lf)
			if lf != lfMark {
				p.status = StatusParsingFailed
				return stateDone
			}
			break
		}

		p.status = StatusParsingFailed
		return stateDone
	}

	if numValues == 0 {
		if !p.writeByte(0) {
			return stateDone
		}
	}

	var recordLen = p.writePos - headerPos
	if recordLen%2 != 0 {
		if !p.writeByte(0) {
			return stateDone
		}
		recordLen++
	}
	if recordLen > maxObjectSize {
		p.status = StatusObjectTooLong
		return stateDone
	}

	putHeader(p.buf, headerPos, obis, numValues, uint16(recordLen))
	p.numObjects++

	return stateScanning
}

// readValueGroup consumes "(value-chars*)" and writes the value bytes
// followed by a NUL terminator.
func (p *parser) readValueGroup() bool {
	var open = p.advance() // '('
	p.crc.Update(open)

	for {
		var c, peeked = p.peek()
		if !peeked || c == crMark || c == lfMark || c == nulMark {
			p.status = StatusParsingFailed
			return false
		}
		if c == ')' {
			p.advance()
			p.crc.Update(c)
			break
		}
		p.advance()
		p.crc.Update(c)
		if !p.writeByte(c) {
			return false
		}
	}

	return p.writeByte(0)
}

func (p *parser) readCrc() parseState {
	var digits [4]byte
	for i := 0; i < 4; i++ {
		var c, ok = p.peek()
		if !ok || !isHexDigit(c) {
			p.status = StatusInvalidCrc
			return stateDone
		}
		p.advance() // CRC feed suppressed for the checksum digits themselves.
		digits[i] = c
	}

	var stored = hexValue(digits[0])<<12 | hexValue(digits[1])<<8 | hexValue(digits[2])<<4 | hexValue(digits[3])
	if uint16(stored) != p.crc.Value() {
		p.status = StatusCrcCheckFailed
		return stateDone
	}

	// Optional trailing CRLF: consumed if present, ignored either way.
	if c, ok := p.peek(); ok && c == crMark {
		p.advance()
		if c2, ok2 := p.peek(); ok2 && c2 == lfMark {
			p.advance()
		}
	}

	return p.finish()
}
