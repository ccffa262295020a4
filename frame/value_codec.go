package frame

import (
	"fmt"
	"math"
	"net"

	"github.com/google/uuid"

	"github.com/nodestore/cql/cqlerr"
)

// elemLenWidth reports the byte width of a collection-element length
// prefix for the given protocol version: 2 bytes (v1/v2) or 4 bytes
// (v3), per spec.md §3/§4.1.
func elemLenWidth(version uint8) int {
	if version >= ProtocolV3 {
		return 4
	}
	return 2
}

func writeElemLen(e *Encoder, n int, version uint8) {
	if version >= ProtocolV3 {
		e.WriteInt32(int32(n))
	} else {
		e.WriteUint16(uint16(int16(n)))
	}
}

func readElemLen(d *Decoder, version uint8) (int, error) {
	if version >= ProtocolV3 {
		n, err := d.ReadInt32()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	}
	n, err := d.ReadUint16()
	if err != nil {
		return 0, err
	}
	return int(int16(n)), nil
}

// EncodeTopLevelValue encodes v as a column value: an i32 length prefix
// (-1 for NULL) followed by the value's raw bytes.
func EncodeTopLevelValue(v Value, version uint8) ([]byte, error) {
	e := NewEncoder()
	if _, isNull := v.(Null); isNull || v == nil {
		e.WriteInt32(-1)
		return e.Bytes(), nil
	}
	raw := NewEncoder()
	if err := encodeRawValue(raw, v, version); err != nil {
		return nil, err
	}
	e.WriteInt32(int32(len(raw.Bytes())))
	e.WriteRaw(raw.Bytes())
	return e.Bytes(), nil
}

// DecodeTopLevelValue reads an i32-length-prefixed column value of kind
// (with aux1/aux2 for list/set/map element types) from d.
func DecodeTopLevelValue(d *Decoder, kind, aux1, aux2 Kind, version uint8) (Value, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return Null{Of: kind}, nil
	}
	raw, err := d.ReadBytesN(int(n))
	if err != nil {
		return nil, err
	}
	return decodeRawValue(kind, aux1, aux2, version, raw)
}

// encodeRawValue writes v's raw wire bytes (no length prefix) to e.
func encodeRawValue(e *Encoder, v Value, version uint8) error {
	switch x := v.(type) {
	case Ascii:
		e.WriteRaw([]byte(x))
	case Text:
		e.WriteRaw([]byte(x))
	case Varchar:
		e.WriteRaw([]byte(x))
	case BigInt:
		e.WriteInt64(int64(x))
	case Counter:
		e.WriteInt64(int64(x))
	case Blob:
		e.WriteRaw(x)
	case Boolean:
		if x {
			e.WriteByte(1)
		} else {
			e.WriteByte(0)
		}
	case Double:
		e.WriteUint64(math.Float64bits(float64(x)))
	case Float:
		e.WriteUint32(math.Float32bits(float32(x)))
	case Int:
		e.WriteInt32(int32(x))
	case Timestamp:
		e.WriteUint64(x.millis())
	case UUID:
		e.WriteRaw(x[:])
	case TimeUUID:
		e.WriteRaw(x[:])
	case Inet:
		ip := net.IP(x)
		if v4 := ip.To4(); v4 != nil {
			e.WriteRaw(v4)
		} else {
			e.WriteRaw(ip.To16())
		}
	case List:
		writeElemLen(e, len(x.Items), version)
		for _, item := range x.Items {
			if err := encodeElement(e, item, version); err != nil {
				return err
			}
		}
	case Set:
		writeElemLen(e, len(x.Items), version)
		for _, item := range x.Items {
			if err := encodeElement(e, item, version); err != nil {
				return err
			}
		}
	case Map:
		writeElemLen(e, len(x.Pairs), version)
		for _, p := range x.Pairs {
			if err := encodeElement(e, p.Key, version); err != nil {
				return err
			}
			if err := encodeElement(e, p.Val, version); err != nil {
				return err
			}
		}
	case Decimal:
		return cqlerr.ErrUnsupportedValue
	case Varint:
		return cqlerr.ErrUnsupportedValue
	case Null:
		return fmt.Errorf("cqlerr: encode: Null must be handled by caller")
	default:
		return fmt.Errorf("cqlerr: encode: unknown value type %T", v)
	}
	return nil
}

// encodeElement writes one collection element with its own
// version-width length prefix (or -1 for a NULL element).
func encodeElement(e *Encoder, v Value, version uint8) error {
	if _, isNull := v.(Null); isNull || v == nil {
		writeElemLen(e, -1, version)
		return nil
	}
	raw := NewEncoder()
	if err := encodeRawValue(raw, v, version); err != nil {
		return err
	}
	writeElemLen(e, len(raw.Bytes()), version)
	e.WriteRaw(raw.Bytes())
	return nil
}

// decodeRawValue parses raw (already sliced to its declared length) as
// a value of kind.
func decodeRawValue(kind, aux1, aux2 Kind, version uint8, raw []byte) (Value, error) {
	switch kind {
	case KindAscii:
		return Ascii(raw), nil
	case KindText:
		return Text(raw), nil
	case KindVarchar:
		return Varchar(raw), nil
	case KindBlob:
		return Blob(append([]byte(nil), raw...)), nil
	case KindBoolean:
		if len(raw) != 1 {
			return nil, cqlerr.NewCodec("read boolean", fmt.Errorf("expected 1 byte, got %d", len(raw)))
		}
		return Boolean(raw[0] != 0), nil
	case KindBigInt:
		if len(raw) != 8 {
			return nil, cqlerr.NewCodec("read bigint", fmt.Errorf("expected 8 bytes, got %d", len(raw)))
		}
		return BigInt(NewDecoder(raw).mustInt64()), nil
	case KindCounter:
		if len(raw) != 8 {
			return nil, cqlerr.NewCodec("read counter", fmt.Errorf("expected 8 bytes, got %d", len(raw)))
		}
		return Counter(NewDecoder(raw).mustInt64()), nil
	case KindTimestamp:
		if len(raw) != 8 {
			return nil, cqlerr.NewCodec("read timestamp", fmt.Errorf("expected 8 bytes, got %d", len(raw)))
		}
		ms := NewDecoder(raw).mustUint64()
		return Timestamp(msToTime(ms)), nil
	case KindDouble:
		if len(raw) != 8 {
			return nil, cqlerr.NewCodec("read double", fmt.Errorf("expected 8 bytes, got %d", len(raw)))
		}
		return Double(math.Float64frombits(NewDecoder(raw).mustUint64())), nil
	case KindFloat:
		if len(raw) != 4 {
			return nil, cqlerr.NewCodec("read float", fmt.Errorf("expected 4 bytes, got %d", len(raw)))
		}
		return Float(math.Float32frombits(NewDecoder(raw).mustUint32())), nil
	case KindInt:
		if len(raw) != 4 {
			return nil, cqlerr.NewCodec("read int", fmt.Errorf("expected 4 bytes, got %d", len(raw)))
		}
		return Int(int32(NewDecoder(raw).mustUint32())), nil
	case KindUUID:
		if len(raw) != 16 {
			return nil, cqlerr.NewCodec("read uuid", fmt.Errorf("expected 16 bytes, got %d", len(raw)))
		}
		u, _ := uuid.FromBytes(raw)
		return UUID(u), nil
	case KindTimeUUID:
		if len(raw) != 16 {
			return nil, cqlerr.NewCodec("read timeuuid", fmt.Errorf("expected 16 bytes, got %d", len(raw)))
		}
		u, _ := uuid.FromBytes(raw)
		return TimeUUID(u), nil
	case KindInet:
		if len(raw) != 4 && len(raw) != 16 {
			return nil, cqlerr.NewCodec("read inet", fmt.Errorf("invalid address length %d", len(raw)))
		}
		ip := make(net.IP, len(raw))
		copy(ip, raw)
		return Inet(ip), nil
	case KindList, KindSet:
		d := NewDecoder(raw)
		n, err := readElemLen(d, version)
		if err != nil {
			return nil, err
		}
		var items []Value
		if n > 0 {
			items = make([]Value, 0, n)
		}
		for i := 0; i < n; i++ {
			v, err := decodeElement(d, aux1, 0, version)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		if kind == KindList {
			return List{Elem: aux1, Items: items}, nil
		}
		return Set{Elem: aux1, Items: items}, nil
	case KindMap:
		d := NewDecoder(raw)
		n, err := readElemLen(d, version)
		if err != nil {
			return nil, err
		}
		pairs := make([]Pair, 0, max0(n))
		for i := 0; i < n; i++ {
			k, err := decodeElement(d, aux1, 0, version)
			if err != nil {
				return nil, err
			}
			v, err := decodeElement(d, aux2, 0, version)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: k, Val: v})
		}
		return Map{KeyKind: aux1, ValKind: aux2, Pairs: pairs}, nil
	case KindDecimal:
		return Decimal{Raw: append([]byte(nil), raw...)}, nil
	case KindVarint:
		return Varint{Raw: append([]byte(nil), raw...)}, nil
	default:
		return nil, cqlerr.NewCodec("read value", fmt.Errorf("unknown type key for kind %d", kind))
	}
}

// decodeElement reads one collection element (its own length-prefixed
// slot) and decodes it as kind.
func decodeElement(d *Decoder, kind, aux2 Kind, version uint8) (Value, error) {
	n, err := readElemLen(d, version)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return Null{Of: kind}, nil
	}
	raw, err := d.ReadBytesN(n)
	if err != nil {
		return nil, err
	}
	return decodeRawValue(kind, 0, aux2, version, raw)
}

// RawValue is one already-length-delimited value slot as it appears in
// an EXECUTE/BATCH body, before the caller applies prepared-statement
// type metadata to interpret its bytes.
type RawValue struct {
	Present bool
	Bytes   []byte
}

// ReadRawValues reads an i16 count followed by that many top-level
// (4-byte-length-prefixed) value slots without interpreting their
// contents — EXECUTE/BATCH bodies carry no inline type tags, so a
// generic reader can only delimit values, not decode them.
func ReadRawValues(d *Decoder) ([]RawValue, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make([]RawValue, n)
	for i := range out {
		ln, err := d.ReadInt32()
		if err != nil {
			return nil, err
		}
		if ln < 0 {
			continue
		}
		b, err := d.ReadBytesN(int(ln))
		if err != nil {
			return nil, err
		}
		out[i] = RawValue{Present: true, Bytes: b}
	}
	return out, nil
}

// DecodeRawValue interprets an already-delimited value's bytes as kind,
// given aux1/aux2 for list/set/map element types. It is the exported
// counterpart to decodeRawValue, for callers (tests, prepared-statement
// result decoding) that have value bytes and type metadata from two
// separate sources.
func DecodeRawValue(kind, aux1, aux2 Kind, version uint8, raw []byte) (Value, error) {
	return decodeRawValue(kind, aux1, aux2, version, raw)
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// mustInt64/mustUint64/mustUint32 read a fixed-width field from a
// Decoder already known (by the caller) to hold exactly that many
// bytes; the error path is unreachable given the length check the
// caller already performed, so these are infallible helpers rather
// than repeating the same error plumbing at every call site.
func (d *Decoder) mustInt64() int64 {
	v, _ := d.ReadInt64()
	return v
}

func (d *Decoder) mustUint64() uint64 {
	v, _ := d.ReadUint64()
	return v
}

func (d *Decoder) mustUint32() uint32 {
	v, _ := d.ReadUint32()
	return v
}
