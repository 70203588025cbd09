package decrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key = [16]byte{0: 1, 5: 2, 15: 3}
	var systemTitle = [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	var plaintext = []byte("/ISK5\r\n1-0:1.8.0(123)\r\n!B004\r\n")

	var frame, err = Encrypt(key, systemTitle, 42, plaintext)
	require.NoError(t, err)
	assert.Equal(t, byte(startByte), frame[0])

	var got, decErr = Decrypt(key, frame)
	require.NoError(t, decErr)
	assert.Equal(t, plaintext, got)
}

func TestDecryptRejectsMissingStartByte(t *testing.T) {
	var key = [16]byte{}
	var frame, err = Encrypt(key, [8]byte{}, 1, []byte("x"))
	require.NoError(t, err)
	frame[0] = 0x00

	var _, decErr = Decrypt(key, frame)
	assert.ErrorIs(t, decErr, ErrMalformedFrame)
}

func TestDecryptRejectsTruncatedFrame(t *testing.T) {
	var key = [16]byte{}
	var _, err = Decrypt(key, []byte{0xDB, 0, 0})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	var key = [16]byte{9: 7}
	var frame, err = Encrypt(key, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 7, []byte("/X\r\n!0000\r\n"))
	require.NoError(t, err)

	// Invert the last byte of the frame (part of the GCM tag); GCM
	// authentication must catch it.
	frame[len(frame)-1] ^= 0xFF

	var _, decErr = Decrypt(key, frame)
	assert.Error(t, decErr)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	var key = [16]byte{3: 9}
	var wrongKey = [16]byte{3: 8}
	var frame, err = Encrypt(key, [8]byte{}, 1, []byte("/X\r\n!0000\r\n"))
	require.NoError(t, err)

	var _, decErr = Decrypt(wrongKey, frame)
	assert.Error(t, decErr)
}
