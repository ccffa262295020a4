package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/nodestore/cql/cqlerr"
)

// EventStreamID is the reserved stream id marking a server-initiated
// event frame; it is never assigned to an outbound request.
const EventStreamID = -1

// MaxStreamV1V2 and MaxStreamV3 bound the assignable stream-id range for
// each header shape (ids 1..=max; 0 and -1 are reserved).
const (
	MaxStreamV1V2 = 127
	MaxStreamV3   = 32767
)

// Supported protocol revisions.
const (
	ProtocolV1 uint8 = 1
	ProtocolV2 uint8 = 2
	ProtocolV3 uint8 = 3
)

// responseBit marks a frame's version byte as carrying a response
// rather than a request.
const responseBit = 0x80

// Header is the fixed-shape prefix of every frame. Its on-wire width
// depends on the protocol version: v1/v2 encode Stream as a signed
// byte, v3 as a signed big-endian i16.
type Header struct {
	Version uint8 // protocol revision, high bit stripped
	Request bool  // true if this header was emitted by the request side
	Flags   uint8
	Stream  int16
	Opcode  Opcode
	Length  uint32
}

// headerLen returns the byte width of a header for the given protocol
// version (not counting the 4-byte length, which is always last).
func headerLen(version uint8) int {
	if version >= ProtocolV3 {
		return 5
	}
	return 4
}

// EncodeHeader appends the wire bytes for a header (without body) to
// dst and returns the extended slice.
func EncodeHeader(dst []byte, version uint8, request bool, flags uint8, stream int16, op Opcode, bodyLen uint32) []byte {
	v := version
	if !request {
		v |= responseBit
	}
	dst = append(dst, v, flags)
	if version >= ProtocolV3 {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(stream))
		dst = append(dst, b[:]...)
	} else {
		dst = append(dst, byte(int8(stream)))
	}
	dst = append(dst, byte(op))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], bodyLen)
	dst = append(dst, lenBuf[:]...)
	return dst
}

// peekVersion inspects the first byte of data (if present) and returns
// the bare protocol revision number (high bit stripped) plus whether the
// frame is a response.
func peekVersion(b byte) (version uint8, isResponse bool) {
	isResponse = b&responseBit != 0
	version = b &^ responseBit
	return version, isResponse
}

// TryReadFrame attempts to parse exactly one complete frame from the
// head of data. It returns (nil, 0, nil) when data does not yet contain
// a full frame — the caller must not advance its buffer in that case.
// It never consumes bytes past the frame's declared length.
func TryReadFrame(data []byte) (fr *Frame, consumed int, err error) {
	if len(data) < 1 {
		return nil, 0, nil
	}
	version, isResponse := peekVersion(data[0])
	if version < ProtocolV1 || version > ProtocolV3 {
		return nil, 0, cqlerr.NewCodec("read header", fmt.Errorf("unsupported protocol version %d", version))
	}
	hlen := headerLen(version)
	if len(data) < hlen+4 {
		return nil, 0, nil
	}
	flags := data[1]
	var stream int16
	var opByte byte
	if version >= ProtocolV3 {
		stream = int16(binary.BigEndian.Uint16(data[2:4]))
		opByte = data[4]
	} else {
		stream = int16(int8(data[2]))
		opByte = data[3]
	}
	bodyLen := binary.BigEndian.Uint32(data[hlen : hlen+4])
	total := hlen + 4 + int(bodyLen)
	if len(data) < total {
		return nil, 0, nil
	}
	h := Header{
		Version: version,
		Request: !isResponse,
		Flags:   flags,
		Stream:  stream,
		Opcode:  Opcode(opByte),
		Length:  bodyLen,
	}
	body := make([]byte, bodyLen)
	copy(body, data[hlen+4:total])
	return &Frame{Header: h, Body: body}, total, nil
}

// Frame is one complete protocol message: header plus body bytes. Body
// decoding is opcode-dependent and performed by the response/request
// decoders in this package.
type Frame struct {
	Header Header
	Body   []byte
}

// IsEvent reports whether fr is a server-pushed event frame (stream -1,
// opcode EVENT).
func (fr *Frame) IsEvent() bool {
	return fr.Header.Stream == EventStreamID && fr.Header.Opcode == OpEvent
}

// WriteFrame encodes a full frame (header + body) for the given opcode
// and stream id, at the given protocol version, request side.
func WriteFrame(version uint8, stream int16, op Opcode, flags uint8, body []byte) []byte {
	out := make([]byte, 0, headerLen(version)+4+len(body))
	out = EncodeHeader(out, version, true, flags, stream, op, uint32(len(body)))
	out = append(out, body...)
	return out
}
