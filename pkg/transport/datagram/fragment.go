package datagram

import (
	"bytes"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var ErrUnexpectedDatagram = errors.New("datagram is neither a payload byte nor the end marker")

var sentinel = func() []byte {
	b, err := cbor.Marshal("END")
	if err != nil {
		panic(err)
	}

	return b
}()

// Sentinel returns the datagram that terminates every message.
func Sentinel() []byte {
	return bytes.Clone(sentinel)
}

// Fragment splits an encoded message into one datagram per byte followed by
// the end marker.
func Fragment(b []byte) [][]byte {
	out := make([][]byte, 0, len(b)+1)
	for i := range b {
		out = append(out, b[i:i+1])
	}

	return append(out, sentinel)
}

// Reassembler accumulates payload datagrams from a single source.
type Reassembler struct {
	buf []byte
}

// Feed consumes one datagram. It returns the complete message once the end
// marker arrives.
func (r *Reassembler) Feed(d []byte) ([]byte, bool, error) {
	switch {
	case len(d) == 1:
		r.buf = append(r.buf, d[0])

		return nil, false, nil
	case bytes.Equal(d, sentinel):
		out := r.buf
		if out == nil {
			out = []byte{}
		}
		r.buf = nil

		return out, true, nil
	default:
		return nil, false, ErrUnexpectedDatagram
	}
}

// Pending is the number of bytes received since the last end marker.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Flush returns the partial buffer and resets it.
func (r *Reassembler) Flush() []byte {
	out := r.buf
	r.buf = nil

	return out
}
