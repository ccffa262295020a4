package frame_test

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nodestore/cql/frame"
)

func roundTripTopLevel(t *testing.T, v frame.Value, kind, aux1, aux2 frame.Kind, version uint8) frame.Value {
	t.Helper()
	enc, err := frame.EncodeTopLevelValue(v, version)
	require.NoError(t, err)
	d := frame.NewDecoder(enc)
	got, err := frame.DecodeTopLevelValue(d, kind, aux1, aux2, version)
	require.NoError(t, err)
	require.Zero(t, d.Len(), "decoder should consume exactly the encoded bytes")
	return got
}

func TestValueRoundTrip_Scalars(t *testing.T) {
	t.Parallel()

	for _, version := range []uint8{frame.ProtocolV1, frame.ProtocolV2, frame.ProtocolV3} {
		version := version
		t.Run(versionName(version), func(t *testing.T) {
			t.Parallel()

			u := uuid.New()
			tu := uuid.New()
			ip4 := net.ParseIP("10.0.0.1").To4()
			ip6 := net.ParseIP("2001:db8::1")
			ts := frame.Timestamp(time.UnixMilli(1700000000000).UTC())

			cases := []struct {
				name string
				v    frame.Value
				kind frame.Kind
			}{
				{"ascii", frame.Ascii("hello"), frame.KindAscii},
				{"bigint", frame.BigInt(-123456789), frame.KindBigInt},
				{"blob", frame.Blob([]byte{0xde, 0xad, 0xbe, 0xef}), frame.KindBlob},
				{"boolean true", frame.Boolean(true), frame.KindBoolean},
				{"boolean false", frame.Boolean(false), frame.KindBoolean},
				{"counter", frame.Counter(42), frame.KindCounter},
				{"double", frame.Double(3.14159), frame.KindDouble},
				{"float", frame.Float(2.5), frame.KindFloat},
				{"int", frame.Int(-7), frame.KindInt},
				{"text", frame.Text("héllo wörld"), frame.KindText},
				{"varchar", frame.Varchar("varchar value"), frame.KindVarchar},
				{"timestamp", ts, frame.KindTimestamp},
				{"uuid", frame.UUID(u), frame.KindUUID},
				{"timeuuid", frame.TimeUUID(tu), frame.KindTimeUUID},
				{"inet v4", frame.Inet(ip4), frame.KindInet},
				{"inet v6", frame.Inet(ip6), frame.KindInet},
			}

			for _, tc := range cases {
				got := roundTripTopLevel(t, tc.v, tc.kind, 0, 0, version)
				require.Equal(t, tc.v, got, tc.name)
			}
		})
	}
}

func TestValueRoundTrip_NullEveryVariant(t *testing.T) {
	t.Parallel()

	kinds := []frame.Kind{
		frame.KindAscii, frame.KindBigInt, frame.KindBlob, frame.KindBoolean,
		frame.KindCounter, frame.KindDouble, frame.KindFloat, frame.KindInt,
		frame.KindText, frame.KindTimestamp, frame.KindUUID, frame.KindTimeUUID,
		frame.KindVarchar, frame.KindInet, frame.KindList, frame.KindMap, frame.KindSet,
	}
	for _, version := range []uint8{frame.ProtocolV1, frame.ProtocolV2, frame.ProtocolV3} {
		for _, k := range kinds {
			enc, err := frame.EncodeTopLevelValue(frame.Null{Of: k}, version)
			require.NoError(t, err)
			d := frame.NewDecoder(enc)
			got, err := frame.DecodeTopLevelValue(d, k, frame.KindInt, frame.KindInt, version)
			require.NoError(t, err)
			require.Equal(t, frame.Null{Of: k}, got)
		}
	}
}

func TestValueRoundTrip_Collections(t *testing.T) {
	t.Parallel()

	for _, version := range []uint8{frame.ProtocolV1, frame.ProtocolV2, frame.ProtocolV3} {
		version := version
		t.Run(versionName(version), func(t *testing.T) {
			t.Parallel()

			list := frame.List{Elem: frame.KindInt, Items: []frame.Value{frame.Int(1), frame.Int(2), frame.Int(3)}}
			got := roundTripTopLevel(t, list, frame.KindList, frame.KindInt, 0, version)
			require.Equal(t, list, got)

			set := frame.Set{Elem: frame.KindText, Items: []frame.Value{frame.Text("a"), frame.Text("b")}}
			gotSet := roundTripTopLevel(t, set, frame.KindSet, frame.KindText, 0, version)
			require.Equal(t, set, gotSet)

			m := frame.Map{
				KeyKind: frame.KindVarchar,
				ValKind: frame.KindInt,
				Pairs: []frame.Pair{
					{Key: frame.Varchar("k1"), Val: frame.Int(10)},
					{Key: frame.Varchar("k2"), Val: frame.Int(20)},
				},
			}
			gotMap := roundTripTopLevel(t, m, frame.KindMap, frame.KindVarchar, frame.KindInt, version)
			require.Equal(t, m, gotMap)
		})
	}
}

func TestValueRoundTrip_CollectionWithNullElement(t *testing.T) {
	t.Parallel()

	list := frame.List{Elem: frame.KindInt, Items: []frame.Value{frame.Int(1), frame.Null{Of: frame.KindInt}}}
	got := roundTripTopLevel(t, list, frame.KindList, frame.KindInt, 0, frame.ProtocolV3)
	require.Equal(t, list, got)
}

func TestDecimalVarintUnsupportedOnEncode(t *testing.T) {
	t.Parallel()

	_, err := frame.EncodeTopLevelValue(frame.Decimal{Raw: []byte{1, 2}}, frame.ProtocolV3)
	require.Error(t, err)

	_, err = frame.EncodeTopLevelValue(frame.Varint{Raw: []byte{1, 2}}, frame.ProtocolV3)
	require.Error(t, err)
}

func TestDecimalVarintSkippedOnDecode(t *testing.T) {
	t.Parallel()

	d := frame.NewDecoder(append([]byte{0, 0, 0, 3}, 1, 2, 3))
	v, err := frame.DecodeTopLevelValue(d, frame.KindDecimal, 0, 0, frame.ProtocolV3)
	require.NoError(t, err)
	require.Equal(t, frame.Decimal{Raw: []byte{1, 2, 3}}, v)
}

func TestFixedWidthMismatchIsCodecError(t *testing.T) {
	t.Parallel()

	// A UUID value whose declared length is not 16.
	d := frame.NewDecoder(append([]byte{0, 0, 0, 4}, 1, 2, 3, 4))
	_, err := frame.DecodeTopLevelValue(d, frame.KindUUID, 0, 0, frame.ProtocolV3)
	require.Error(t, err)
}

func versionName(v uint8) string {
	switch v {
	case frame.ProtocolV1:
		return "v1"
	case frame.ProtocolV2:
		return "v2"
	case frame.ProtocolV3:
		return "v3"
	}
	return "unknown"
}
