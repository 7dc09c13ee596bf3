// Package wire defines the storage encodings of the sequence generator: the
// counter value itself, a fixed eight-byte big-endian int64 readable by any
// client in the cluster, and a versioned cell frame for backends that have
// no native compare-and-set version of their own.
//
// Decoders are strict. Wrong magic, wrong length, truncated or trailing
// bytes are corruption and fail loudly; there are no best-effort reads.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// cellVersion is the current cell frame layout version.
	cellVersion byte = 1

	// valueLen is the exact encoded size of a counter value.
	valueLen = 8

	// cellHeaderLen is magic(4) + layout(1) + version(8) + payload len(4).
	cellHeaderLen = 4 + 1 + 8 + 4
)

// magic tags every cell frame so foreign keys fail fast.
var magic = [4]byte{'C', 'S', 'E', 'Q'}

var (
	// ErrCorrupt reports bytes that are not a well-formed frame.
	ErrCorrupt = errors.New("wire: corrupt entry")

	// ErrVersion reports a frame written by an unknown layout version.
	ErrVersion = errors.New("wire: unsupported layout version")
)

// EncodeValue encodes a counter value as exactly eight big-endian bytes.
func EncodeValue(v int64) []byte {
	var b [valueLen]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

// DecodeValue decodes a counter value, rejecting anything but exactly
// eight bytes.
func DecodeValue(b []byte) (int64, error) {
	if len(b) != valueLen {
		return 0, fmt.Errorf("%w: value is %d bytes, want %d", ErrCorrupt, len(b), valueLen)
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// EncodeCell frames a payload with its cell version:
//
//	magic(4) | layout(1) | version(u64 be) | len(u32 be) | payload
func EncodeCell(version uint64, payload []byte) []byte {
	b := make([]byte, cellHeaderLen+len(payload))
	copy(b, magic[:])
	b[4] = cellVersion
	binary.BigEndian.PutUint64(b[5:13], version)
	binary.BigEndian.PutUint32(b[13:17], uint32(len(payload)))
	copy(b[cellHeaderLen:], payload)
	return b
}

// DecodeCell unframes a cell, returning its version and payload. The
// payload aliases b; callers that keep it must copy.
func DecodeCell(b []byte) (version uint64, payload []byte, err error) {
	if len(b) < cellHeaderLen {
		return 0, nil, fmt.Errorf("%w: cell is %d bytes, want at least %d", ErrCorrupt, len(b), cellHeaderLen)
	}
	if [4]byte(b[:4]) != magic {
		return 0, nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if b[4] != cellVersion {
		return 0, nil, fmt.Errorf("%w: %d", ErrVersion, b[4])
	}
	version = binary.BigEndian.Uint64(b[5:13])
	n := int(binary.BigEndian.Uint32(b[13:17]))
	if cellHeaderLen+n != len(b) {
		return 0, nil, fmt.Errorf("%w: payload length %d does not match frame", ErrCorrupt, n)
	}
	return version, b[cellHeaderLen:], nil
}
