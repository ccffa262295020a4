package frame

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Value is the tagged union of every CQL value variant. Every concrete
// type below may additionally appear wrapped in Null, representing a
// NULL of that kind on the wire (length -1).
type Value interface {
	Kind() Kind
	isValue()
}

// Null represents a NULL value of the given kind. A NULL carries no
// payload; Of is retained only so callers know what column type it was
// NULL for.
type Null struct{ Of Kind }

func (Null) isValue()     {}
func (n Null) Kind() Kind { return n.Of }

type Ascii string

func (Ascii) isValue()   {}
func (Ascii) Kind() Kind { return KindAscii }

type BigInt int64

func (BigInt) isValue()   {}
func (BigInt) Kind() Kind { return KindBigInt }

type Blob []byte

func (Blob) isValue()   {}
func (Blob) Kind() Kind { return KindBlob }

type Boolean bool

func (Boolean) isValue()   {}
func (Boolean) Kind() Kind { return KindBoolean }

type Counter int64

func (Counter) isValue()   {}
func (Counter) Kind() Kind { return KindCounter }

// Decimal is an acknowledged-but-unencodable value, per spec.md §9: the
// driver parses and skips decimal bytes on read and refuses to encode
// them on write. Raw retains the skipped bytes for callers who want to
// inspect them regardless.
type Decimal struct{ Raw []byte }

func (Decimal) isValue()   {}
func (Decimal) Kind() Kind { return KindDecimal }

type Double float64

func (Double) isValue()   {}
func (Double) Kind() Kind { return KindDouble }

type Float float32

func (Float) isValue()   {}
func (Float) Kind() Kind { return KindFloat }

type Inet net.IP

func (Inet) isValue()   {}
func (Inet) Kind() Kind { return KindInet }

type Int int32

func (Int) isValue()   {}
func (Int) Kind() Kind { return KindInt }

type Text string

func (Text) isValue()   {}
func (Text) Kind() Kind { return KindText }

// Timestamp is milliseconds since the Unix epoch, encoded unsigned on
// the wire (spec.md §3).
type Timestamp time.Time

func (Timestamp) isValue()   {}
func (Timestamp) Kind() Kind { return KindTimestamp }

func (t Timestamp) millis() uint64 {
	ms := time.Time(t).UnixMilli()
	if ms < 0 {
		ms = 0
	}
	return uint64(ms)
}

// msToTime converts a wire (unsigned, milliseconds-since-epoch)
// timestamp back into a time.Time.
func msToTime(ms uint64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

type UUID uuid.UUID

func (UUID) isValue()   {}
func (UUID) Kind() Kind { return KindUUID }

type TimeUUID uuid.UUID

func (TimeUUID) isValue()   {}
func (TimeUUID) Kind() Kind { return KindTimeUUID }

type Varchar string

func (Varchar) isValue()   {}
func (Varchar) Kind() Kind { return KindVarchar }

// Varint is an acknowledged-but-unencodable value, mirroring Decimal.
type Varint struct{ Raw []byte }

func (Varint) isValue()   {}
func (Varint) Kind() Kind { return KindVarint }

// List is an ordered collection of values sharing Elem's kind.
type List struct {
	Elem  Kind
	Items []Value
}

func (List) isValue()   {}
func (List) Kind() Kind { return KindList }

// Set is wire-identical to List; kept as a distinct Go type so callers
// and the column-metadata type-key round trip both preserve the
// set/list distinction the protocol makes.
type Set struct {
	Elem  Kind
	Items []Value
}

func (Set) isValue()   {}
func (Set) Kind() Kind { return KindSet }

// Pair is one key/value entry of a Map.
type Pair struct {
	Key Value
	Val Value
}

// Map is an ordered collection of key/value pairs.
type Map struct {
	KeyKind Kind
	ValKind Kind
	Pairs   []Pair
}

func (Map) isValue()   {}
func (Map) Kind() Kind { return KindMap }

// ColumnSpec describes one RESULT/PREPARED metadata column.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     Kind
	Aux1     Kind // list/set element type, or map key type
	Aux2     Kind // map value type
}

// flagHasGlobalTableSpec marks that metadata carries a single
// (keyspace, table) pair shared by all columns rather than per-column.
const flagHasGlobalTableSpec uint32 = 0x0001

// Metadata is the column-metadata block preceding ROWS/PREPARED result
// bodies.
type Metadata struct {
	Flags           uint32
	GlobalKeyspace  string
	GlobalTable     string
	Columns         []ColumnSpec
}

func (m Metadata) hasGlobalSpec() bool { return m.Flags&flagHasGlobalTableSpec != 0 }

// String renders a Value for diagnostics/logging; it is not a wire
// format.
func String(v Value) string {
	switch x := v.(type) {
	case Null:
		return "NULL"
	case UUID:
		return uuid.UUID(x).String()
	case TimeUUID:
		return uuid.UUID(x).String()
	case Timestamp:
		return time.Time(x).UTC().Format(time.RFC3339Nano)
	case Inet:
		return net.IP(x).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
