package frame

import (
	"encoding/binary"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/nodestore/cql/cqlerr"
)

// Decoder reads primitive wire shapes off an in-memory body buffer. It
// never reads past the slice it was constructed with — all bodies are
// already length-delimited by the frame header before a Decoder sees
// them, so attempting to read past the end is always a malformed-body
// error, never a "need more bytes" condition.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder wraps data (typically a Frame's Body) for sequential
// reads.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the unread tail of the buffer.
func (d *Decoder) Remaining() []byte { return d.data[d.pos:] }

// Len reports how many unread bytes remain.
func (d *Decoder) Len() int { return len(d.data) - d.pos }

func (d *Decoder) need(n int, op string) error {
	if d.Len() < n {
		return cqlerr.NewCodec(op, fmt.Errorf("short read: need %d bytes, have %d", n, d.Len()))
	}
	return nil
}

func (d *Decoder) ReadByte() (byte, error) {
	if err := d.need(1, "read byte"); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) ReadBytesN(n int) ([]byte, error) {
	if err := d.need(n, "read bytes"); err != nil {
		return nil, err
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.ReadBytesN(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	b, err := d.ReadBytesN(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.ReadBytesN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) ReadInt64() (int64, error) {
	b, err := d.ReadBytesN(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.ReadBytesN(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadShortString reads a u16-length-prefixed UTF-8 string (the "short
// string" shape used for protocol tokens).
func (d *Decoder) ReadShortString() (string, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := d.ReadBytesN(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", cqlerr.NewCodec("read short string", fmt.Errorf("invalid utf-8"))
	}
	return string(b), nil
}

// ReadLongString reads an i32-length-prefixed UTF-8 string (used for
// query text and column string values).
func (d *Decoder) ReadLongString() (string, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", cqlerr.NewCodec("read long string", fmt.Errorf("negative length %d", n))
	}
	b, err := d.ReadBytesN(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", cqlerr.NewCodec("read long string", fmt.Errorf("invalid utf-8"))
	}
	return string(b), nil
}

// ReadShortBytes reads a u16-length-prefixed opaque byte string (used
// for prepared-statement ids and auth tokens on the challenge path).
func (d *Decoder) ReadShortBytes() ([]byte, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	return d.ReadBytesN(int(n))
}

// ReadLongBytes reads an i32-length-prefixed opaque byte string where
// length -1 denotes NULL (nil, false) and length 0 denotes empty
// ([]byte{}, true).
func (d *Decoder) ReadLongBytes() (b []byte, present bool, err error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, false, err
	}
	if n < 0 {
		return nil, false, nil
	}
	b, err = d.ReadBytesN(int(n))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// ReadStringMap reads a u16 count followed by that many (short-string,
// short-string) pairs.
func (d *Decoder) ReadStringMap() (map[string]string, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k, err := d.ReadShortString()
		if err != nil {
			return nil, err
		}
		v, err := d.ReadShortString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// ReadStringList reads a u16 count followed by that many short strings.
func (d *Decoder) ReadStringList() ([]string, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := d.ReadShortString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ReadInetAddr reads the EVENT-frame address shape: a one-byte length
// (4 or 16) followed by that many raw address bytes. This is distinct
// from a column Value of kind inet, whose length comes from the
// surrounding value's own length prefix.
func (d *Decoder) ReadInetAddr() (net.IP, error) {
	n, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if n != 4 && n != 16 {
		return nil, cqlerr.NewCodec("read inet", fmt.Errorf("invalid address length %d", n))
	}
	b, err := d.ReadBytesN(int(n))
	if err != nil {
		return nil, err
	}
	ip := make(net.IP, len(b))
	copy(ip, b)
	return ip, nil
}

func (d *Decoder) ReadConsistency() (Consistency, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return 0, err
	}
	return Consistency(n), nil
}

// Encoder accumulates wire bytes for a request body.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteByte(b byte) { e.buf = append(e.buf, b) }

func (e *Encoder) WriteRaw(b []byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) WriteUint16(n uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteInt32(n int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteUint32(n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteInt64(n int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteUint64(n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteShortString(s string) {
	e.WriteUint16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *Encoder) WriteLongString(s string) {
	e.WriteInt32(int32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *Encoder) WriteShortBytes(b []byte) {
	e.WriteUint16(uint16(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteLongBytes writes an i32-length-prefixed byte string. present
// false writes length -1 (NULL) and no body.
func (e *Encoder) WriteLongBytes(b []byte, present bool) {
	if !present {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteStringMap(m map[string]string) {
	e.WriteUint16(uint16(len(m)))
	for k, v := range m {
		e.WriteShortString(k)
		e.WriteShortString(v)
	}
}

func (e *Encoder) WriteStringList(ss []string) {
	e.WriteUint16(uint16(len(ss)))
	for _, s := range ss {
		e.WriteShortString(s)
	}
}

// WriteInetAddr writes the EVENT-frame address shape (length byte then
// raw bytes).
func (e *Encoder) WriteInetAddr(ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		e.WriteByte(4)
		e.WriteRaw(v4)
		return
	}
	e.WriteByte(16)
	e.WriteRaw(ip.To16())
}

func (e *Encoder) WriteConsistency(c Consistency) {
	e.WriteUint16(uint16(c))
}
