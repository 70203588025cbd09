// Package transport frames DSMR-style telegrams off a serial link: it
// watches a raw byte stream for a leading '/', accumulates bytes until a
// complete "!HHHH" checksum footer, and hands the framed region to the
// caller. It is deliberately unaware of what the telegram bytes mean - that
// is the parser's job once the bytes are framed.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pkg/term"
)

// ErrBufferOverflow is returned when a telegram does not fit in the
// caller's receive buffer. This is distinct from the parser's
// StatusWriteOverflow: that one means the compacted binary output
// outran the read cursor over bytes already delivered; this one means
// the telegram itself was never fully received.
var ErrBufferOverflow = errors.New("transport: telegram exceeds receive buffer")

// ErrTimeout is returned when no byte arrives within the configured idle
// timeout, whether a telegram is in progress or ReadTelegram is still
// waiting for its '/'. A deadline set via ctx is reported as ctx.Err()
// instead.
var ErrTimeout = errors.New("transport: inter-byte read timeout")

// SerialReader accumulates telegram bytes off an io.Reader. Production
// callers construct one from Open, which wraps a real serial device;
// tests construct one directly from NewSerialReader over an in-memory
// io.Reader, the same separation of transport-framing-logic from
// physical-port-handling the teacher keeps between kissserial_get and
// serial_port_get1.
type SerialReader struct {
	bytesCh     chan byte
	errCh       chan error
	idleTimeout time.Duration
}

// Open opens a serial device at the given baud rate. Grounded on
// serial_port_open: raw mode, and speed selection restricted to the same
// fixed set of supported rates (anything else is a configuration error
// here, rather than silently falling back to 4800 baud as the original
// C-derived code does).
func Open(device string, baud int, idleTimeout time.Duration) (*SerialReader, io.Closer, error) {
	fd, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: opening %s: %w", device, err)
	}

	switch baud {
	case 0: // leave it alone
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if err := fd.SetSpeed(baud); err != nil {
			fd.Close()
			return nil, nil, fmt.Errorf("transport: setting speed %d on %s: %w", baud, device, err)
		}
	default:
		fd.Close()
		return nil, nil, fmt.Errorf("transport: unsupported baud rate %d", baud)
	}

	return NewSerialReader(fd, idleTimeout), fd, nil
}

// NewSerialReader starts a background byte pump over conn and returns a
// reader that frames telegrams from it. conn is read from continuously
// until it returns an error (including io.EOF); that error is surfaced to
// whichever ReadTelegram call is in progress when it happens.
func NewSerialReader(conn io.Reader, idleTimeout time.Duration) *SerialReader {
	var r = &SerialReader{
		bytesCh:     make(chan byte, 256),
		errCh:       make(chan error, 1),
		idleTimeout: idleTimeout,
	}
	go r.pump(conn)
	return r
}

// pump is the background "listen thread": it reads one byte at a time and
// forwards each to bytesCh, mirroring kissserial_listen_thread's read loop.
func (r *SerialReader) pump(conn io.Reader) {
	var one [1]byte
	for {
		var _, err = io.ReadFull(conn, one[:])
		if err != nil {
			r.errCh <- err
			return
		}
		r.bytesCh <- one[0]
	}
}

// readByte waits for the next byte, honoring both ctx cancellation and the
// configured idle timeout. A zero idleTimeout disables the timeout.
func (r *SerialReader) readByte(ctx context.Context) (byte, error) {
	var timeoutC <-chan time.Time
	if r.idleTimeout > 0 {
		var timer = time.NewTimer(r.idleTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timeoutC:
		return 0, ErrTimeout
	case b := <-r.bytesCh:
		return b, nil
	case err := <-r.errCh:
		// pump queues every byte before reporting its error, so deliver
		// any bytes still buffered first and keep the error for later.
		select {
		case b := <-r.bytesCh:
			r.errCh <- err
			return b, nil
		default:
		}
		return 0, err
	}
}

// ReadTelegram frames one telegram into buf: it discards bytes until it
// sees '/', then accumulates up to and including a '!' and the four bytes
// after it (the checksum). Those four bytes are not checked to be hex
// digits, and any line terminator after them is left unread; the next call
// discards it while waiting for '/'. It returns the number of bytes written
// into buf. If the telegram would not fit in buf, it returns
// ErrBufferOverflow and abandons that telegram; the next call discards
// bytes until it sees a fresh '/'.
func (r *SerialReader) ReadTelegram(ctx context.Context, buf []byte) (int, error) {
	// Wait for the start marker.
	for {
		var b, err = r.readByte(ctx)
		if err != nil {
			return 0, err
		}
		if b == '/' {
			break
		}
	}

	var n int
	var put = func(b byte) error {
		if n >= len(buf) {
			return ErrBufferOverflow
		}
		buf[n] = b
		n++
		return nil
	}
	if err := put('/'); err != nil {
		return 0, err
	}

	for {
		var b, err = r.readByte(ctx)
		if err != nil {
			return 0, err
		}
		if err := put(b); err != nil {
			return 0, err
		}
		if b != '!' {
			continue
		}

		// Footer: four hex digits, then an optional CRLF.
		for i := 0; i < 4; i++ {
			var d, err = r.readByte(ctx)
			if err != nil {
				return 0, err
			}
			if err := put(d); err != nil {
				return 0, err
			}
		}
		return n, nil
	}
}
