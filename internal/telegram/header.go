package telegram

import "encoding/binary"

// headerSize is the packed size of an object record's header: 5 bytes of
// OBIS code, 1 byte of value count, 2 bytes little-endian object size.
const headerSize = 8

// maxObjectSize is the largest object_size (header + values + padding) the
// parser will accept for a single object record.
const maxObjectSize = 8192

// maxObjects is the largest number of object records a single telegram may
// contain; the 256th object overflows the 1-byte count.
const maxObjects = 255

// putHeader writes a Header at buf[pos:pos+headerSize]. The caller must
// already have reserved the space (headerSize bytes writable at pos).
func putHeader(buf []byte, pos int, obis ObisCode, numValues byte, objectSize uint16) {
	buf[pos+0] = obis.A
	buf[pos+1] = obis.B
	buf[pos+2] = obis.C
	buf[pos+3] = obis.D
	buf[pos+4] = obis.E
	buf[pos+5] = numValues
	binary.LittleEndian.PutUint16(buf[pos+6:pos+8], objectSize)
}

// getHeader reads a Header from buf[pos:pos+headerSize]. The caller must
// have already verified pos+headerSize <= len(buf).
func getHeader(buf []byte, pos int) (obis ObisCode, numValues byte, objectSize uint16) {
	obis = ObisCode{
		A: buf[pos+0],
		B: buf[pos+1],
		C: buf[pos+2],
		D: buf[pos+3],
		E: buf[pos+4],
	}
	numValues = buf[pos+5]
	objectSize = binary.LittleEndian.Uint16(buf[pos+6 : pos+8])
	return
}
