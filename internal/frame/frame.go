package frame

import "encoding/binary"

// HeaderSize is the size of the length field that prefixes every frame.
const HeaderSize = 4

// Encode returns payload prefixed with its little-endian uint32 length.
func Encode(payload []byte) []byte {
	return Append(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// Append appends the framed form of payload to dst and returns the extended slice.
func Append(dst, payload []byte) []byte {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// TryDecode inspects buf without modifying it. When buf starts with a
// complete frame it returns the payload and the total number of bytes the
// frame occupies (header included). ok is false when more bytes are needed.
//
// The returned payload aliases buf.
func TryDecode(buf []byte) (payload []byte, consumed int, ok bool) {
	if len(buf) < HeaderSize {
		return nil, 0, false
	}
	size := uint64(binary.LittleEndian.Uint32(buf[:HeaderSize]))
	if size > uint64(len(buf)-HeaderSize) {
		return nil, 0, false
	}
	end := HeaderSize + int(size)
	return buf[HeaderSize:end], end, true
}

// Complete returns the length of the longest prefix of buf made only of
// complete frames.
func Complete(buf []byte) int {
	total := 0
	for {
		_, consumed, ok := TryDecode(buf[total:])
		if !ok {
			return total
		}
		total += consumed
	}
}
