// Package decrypt unwraps AES-128-GCM encrypted DSMR telegrams (the
// Luxembourg/Belgian "smart meter with encryption" framing) into plaintext
// ASCII ready for telegram.ParseTelegram. It is grounded on the standard
// library's crypto/aes and crypto/cipher: no third-party AES-GCM
// implementation appears anywhere in the retrieved reference pack, so this
// is one of the few components built directly on the standard library (see
// DESIGN.md).
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	startByte         = 0xDB
	systemTitleStart  = 2
	systemTitleLen    = 8
	lengthFieldStart  = 11
	frameCounterStart = 14
	frameCounterLen   = 4
	ciphertextStart   = 18
	nonceLen          = 12
	minFrameLen       = ciphertextStart + 16 // header + GCM tag
)

// ErrMalformedFrame is returned for any framing violation: a missing start
// byte, a truncated header, or a declared length that does not fit the
// frame actually supplied.
var ErrMalformedFrame = errors.New("decrypt: malformed encrypted telegram frame")

// Decrypt validates and unwraps frame, an encrypted telegram using the
// 16-byte AES key. It returns the plaintext ASCII telegram, unmodified by
// this package - the caller hands it to telegram.ParseTelegram directly.
//
// Frame layout (all offsets fixed, matching the DSMR encrypted-telegram
// profile):
//
//	byte 0:       0xDB start marker
//	bytes 2..9:   system title (8 bytes, part of the GCM nonce)
//	bytes 11..12: payload length, big-endian
//	bytes 14..17: frame counter (4 bytes, the rest of the GCM nonce)
//	bytes 18..:   AES-128-GCM ciphertext, 16-byte authentication tag last
func Decrypt(key [16]byte, frame []byte) ([]byte, error) {
	if len(frame) < minFrameLen {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrMalformedFrame, len(frame))
	}
	if frame[0] != startByte {
		return nil, fmt.Errorf("%w: missing 0x%02X start byte", ErrMalformedFrame, startByte)
	}

	var payloadLen = int(binary.BigEndian.Uint16(frame[lengthFieldStart : lengthFieldStart+2]))
	if ciphertextStart+payloadLen > len(frame) {
		return nil, fmt.Errorf("%w: declared length %d exceeds frame", ErrMalformedFrame, payloadLen)
	}

	var nonce [nonceLen]byte
	copy(nonce[:systemTitleLen], frame[systemTitleStart:systemTitleStart+systemTitleLen])
	copy(nonce[systemTitleLen:], frame[frameCounterStart:frameCounterStart+frameCounterLen])

	var block, err = aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("decrypt: building AES cipher: %w", err)
	}
	var gcm, gcmErr = cipher.NewGCMWithNonceSize(block, nonceLen)
	if gcmErr != nil {
		return nil, fmt.Errorf("decrypt: building GCM mode: %w", gcmErr)
	}

	var ciphertext = frame[ciphertextStart : ciphertextStart+payloadLen]
	var plaintext, openErr = gcm.Open(nil, nonce[:], ciphertext, nil)
	if openErr != nil {
		return nil, fmt.Errorf("decrypt: authentication failed: %w", openErr)
	}
	return plaintext, nil
}

// Encrypt is the inverse of Decrypt, used by this package's own tests (and
// available to anything that needs to produce a conformant encrypted
// frame, e.g. a simulator standing in for real meter hardware).
func Encrypt(key [16]byte, systemTitle [systemTitleLen]byte, frameCounter uint32, plaintext []byte) ([]byte, error) {
	var block, err = aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("decrypt: building AES cipher: %w", err)
	}
	var gcm, gcmErr = cipher.NewGCMWithNonceSize(block, nonceLen)
	if gcmErr != nil {
		return nil, fmt.Errorf("decrypt: building GCM mode: %w", gcmErr)
	}

	var nonce [nonceLen]byte
	copy(nonce[:systemTitleLen], systemTitle[:])
	binary.BigEndian.PutUint32(nonce[systemTitleLen:], frameCounter)

	var ciphertext = gcm.Seal(nil, nonce[:], plaintext, nil)

	var frame = make([]byte, ciphertextStart+len(ciphertext))
	frame[0] = startByte
	copy(frame[systemTitleStart:systemTitleStart+systemTitleLen], systemTitle[:])
	binary.BigEndian.PutUint16(frame[lengthFieldStart:], uint16(len(ciphertext)))
	binary.BigEndian.PutUint32(frame[frameCounterStart:], frameCounter)
	copy(frame[ciphertextStart:], ciphertext)
	return frame, nil
}
