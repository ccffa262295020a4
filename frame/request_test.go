package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodestore/cql/cqlerr"
	"github.com/nodestore/cql/frame"
)

func TestStartupRequestEncode(t *testing.T) {
	t.Parallel()

	r := frame.NewStartupRequest()
	body, err := r.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	d := frame.NewDecoder(body)
	m, err := d.ReadStringMap()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"CQL_VERSION": "3.0.0"}, m)
	require.Zero(t, d.Len())
}

func TestOptionsRequestEncode(t *testing.T) {
	t.Parallel()

	body, err := frame.OptionsRequest{}.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	require.Empty(t, body)
}

func TestQueryRequestEncode_FlagsOnlyV2Plus(t *testing.T) {
	t.Parallel()

	r := frame.QueryRequest{Query: "SELECT * FROM t", Consistency: frame.ConsistencyQuorum, Flags: 0x01}

	v1, err := r.Encode(frame.ProtocolV1)
	require.NoError(t, err)
	d1 := frame.NewDecoder(v1)
	q, err := d1.ReadLongString()
	require.NoError(t, err)
	require.Equal(t, r.Query, q)
	cons, err := d1.ReadConsistency()
	require.NoError(t, err)
	require.Equal(t, r.Consistency, cons)
	require.Zero(t, d1.Len(), "v1 QUERY has no flags byte")

	v2, err := r.Encode(frame.ProtocolV2)
	require.NoError(t, err)
	d2 := frame.NewDecoder(v2)
	_, err = d2.ReadLongString()
	require.NoError(t, err)
	_, err = d2.ReadConsistency()
	require.NoError(t, err)
	flags, err := d2.ReadByte()
	require.NoError(t, err)
	require.Equal(t, r.Flags, flags)
	require.Zero(t, d2.Len())
}

func TestPrepareRequestEncode(t *testing.T) {
	t.Parallel()

	r := frame.PrepareRequest{Query: "SELECT * FROM t WHERE k = ?"}
	body, err := r.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	d := frame.NewDecoder(body)
	q, err := d.ReadLongString()
	require.NoError(t, err)
	require.Equal(t, r.Query, q)
	require.Zero(t, d.Len())
}

func TestExecuteRequestEncode_FieldOrderByVersion(t *testing.T) {
	t.Parallel()

	r := frame.ExecuteRequest{
		PreparedID:  []byte{0xaa, 0xbb},
		Values:      []frame.Value{frame.Int(7)},
		Consistency: frame.ConsistencyOne,
		Flags:       0x02,
	}

	// v1: id, values, consistency (no flags byte).
	v1, err := r.Encode(frame.ProtocolV1)
	require.NoError(t, err)
	d1 := frame.NewDecoder(v1)
	id, err := d1.ReadShortBytes()
	require.NoError(t, err)
	require.Equal(t, r.PreparedID, id)
	n, err := d1.ReadUint16()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	v, err := frame.DecodeTopLevelValue(d1, frame.KindInt, 0, 0, frame.ProtocolV1)
	require.NoError(t, err)
	require.Equal(t, frame.Int(7), v)
	cons, err := d1.ReadConsistency()
	require.NoError(t, err)
	require.Equal(t, r.Consistency, cons)
	require.Zero(t, d1.Len())

	// v2+: id, consistency, flags, values.
	v3, err := r.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	d3 := frame.NewDecoder(v3)
	id3, err := d3.ReadShortBytes()
	require.NoError(t, err)
	require.Equal(t, r.PreparedID, id3)
	cons3, err := d3.ReadConsistency()
	require.NoError(t, err)
	require.Equal(t, r.Consistency, cons3)
	flags3, err := d3.ReadByte()
	require.NoError(t, err)
	require.Equal(t, r.Flags, flags3)
	n3, err := d3.ReadUint16()
	require.NoError(t, err)
	require.EqualValues(t, 1, n3)
	v3v, err := frame.DecodeTopLevelValue(d3, frame.KindInt, 0, 0, frame.ProtocolV3)
	require.NoError(t, err)
	require.Equal(t, frame.Int(7), v3v)
	require.Zero(t, d3.Len())
}

func TestBatchRequestEncode_FlagsOnlyV3Plus(t *testing.T) {
	t.Parallel()

	r := frame.BatchRequest{
		Type: frame.BatchLogged,
		Queries: []frame.BatchSubQuery{
			{Prepared: false, Query: "INSERT INTO t (k) VALUES (1)"},
			{Prepared: true, PreparedID: []byte{1, 2}, Values: []frame.Value{frame.Text("x")}},
		},
		Consistency: frame.ConsistencyQuorum,
		Flags:       0x01,
	}

	v2, err := r.Encode(frame.ProtocolV2)
	require.NoError(t, err)
	d2 := frame.NewDecoder(v2)
	typ, err := d2.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(frame.BatchLogged), typ)
	count, err := d2.ReadUint16()
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	kind0, err := d2.ReadByte()
	require.NoError(t, err)
	require.Zero(t, kind0)
	q, err := d2.ReadLongString()
	require.NoError(t, err)
	require.Equal(t, r.Queries[0].Query, q)
	nv0, err := d2.ReadUint16()
	require.NoError(t, err)
	require.Zero(t, nv0)

	kind1, err := d2.ReadByte()
	require.NoError(t, err)
	require.EqualValues(t, 1, kind1)
	id1, err := d2.ReadShortBytes()
	require.NoError(t, err)
	require.Equal(t, r.Queries[1].PreparedID, id1)
	nv1, err := d2.ReadUint16()
	require.NoError(t, err)
	require.EqualValues(t, 1, nv1)
	v1, err := frame.DecodeTopLevelValue(d2, frame.KindText, 0, 0, frame.ProtocolV2)
	require.NoError(t, err)
	require.Equal(t, frame.Text("x"), v1)

	cons, err := d2.ReadConsistency()
	require.NoError(t, err)
	require.Equal(t, r.Consistency, cons)
	require.Zero(t, d2.Len(), "v2 BATCH has no trailing flags byte")

	v3, err := r.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	// Just verify the trailing flags byte is present and matches on v3.
	require.Equal(t, r.Flags, v3[len(v3)-1])
}

func TestExecuteRequestEncode_UnsupportedValuePropagatesError(t *testing.T) {
	t.Parallel()

	r := frame.ExecuteRequest{
		PreparedID:  []byte{0x01},
		Values:      []frame.Value{frame.Decimal{}},
		Consistency: frame.ConsistencyOne,
	}
	_, err := r.Encode(frame.ProtocolV3)
	require.ErrorIs(t, err, cqlerr.ErrUnsupportedValue)
}

func TestBatchRequestEncode_UnsupportedValuePropagatesError(t *testing.T) {
	t.Parallel()

	r := frame.BatchRequest{
		Type: frame.BatchLogged,
		Queries: []frame.BatchSubQuery{
			{Prepared: true, PreparedID: []byte{0x01}, Values: []frame.Value{frame.Varint{}}},
		},
		Consistency: frame.ConsistencyOne,
	}
	_, err := r.Encode(frame.ProtocolV3)
	require.ErrorIs(t, err, cqlerr.ErrUnsupportedValue)
}

func TestRegisterRequestEncode(t *testing.T) {
	t.Parallel()

	r := frame.RegisterRequest{EventTypes: []string{"TOPOLOGY_CHANGE", "STATUS_CHANGE"}}
	body, err := r.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	d := frame.NewDecoder(body)
	list, err := d.ReadStringList()
	require.NoError(t, err)
	require.Equal(t, r.EventTypes, list)
	require.Zero(t, d.Len())
}

func TestAuthResponseRequestEncode(t *testing.T) {
	t.Parallel()

	tok := frame.PasswordAuthToken("alice", "secret")
	require.Equal(t, append(append([]byte{0}, []byte("alice")...), append([]byte{0}, []byte("secret")...)...), tok)

	r := frame.AuthResponseRequest{Token: tok}
	body, err := r.Encode(frame.ProtocolV3)
	require.NoError(t, err)
	d := frame.NewDecoder(body)
	got, present, err := d.ReadLongBytes()
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, tok, got)
	require.Zero(t, d.Len())
}

func TestRequestOpcodes(t *testing.T) {
	t.Parallel()

	require.Equal(t, frame.OpStartup, frame.StartupRequest{}.Opcode())
	require.Equal(t, frame.OpOptions, frame.OptionsRequest{}.Opcode())
	require.Equal(t, frame.OpQuery, frame.QueryRequest{}.Opcode())
	require.Equal(t, frame.OpPrepare, frame.PrepareRequest{}.Opcode())
	require.Equal(t, frame.OpExecute, frame.ExecuteRequest{}.Opcode())
	require.Equal(t, frame.OpBatch, frame.BatchRequest{}.Opcode())
	require.Equal(t, frame.OpRegister, frame.RegisterRequest{}.Opcode())
	require.Equal(t, frame.OpAuthResponse, frame.AuthResponseRequest{}.Opcode())
}
