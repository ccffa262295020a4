package node_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodestore/cql/frame"
	"github.com/nodestore/cql/node"
	"github.com/nodestore/cql/pool"
)

func scriptedServer(t *testing.T, handle func(t *testing.T, nc net.Conn)) string {
	t.Helper()
	var lc net.ListenConfig
	lis, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	go func() {
		nc, err := lis.Accept()
		if err != nil {
			return
		}
		defer func() { _ = nc.Close() }()
		handle(t, nc)
	}()
	t.Cleanup(func() { _ = lis.Close() })
	return addr
}

func readFrame(t *testing.T, nc net.Conn) *frame.Frame {
	t.Helper()
	buf := make([]byte, 4096)
	var acc []byte
	for {
		fr, _, err := frame.TryReadFrame(acc)
		require.NoError(t, err)
		if fr != nil {
			return fr
		}
		n, err := nc.Read(buf)
		require.NoError(t, err)
		acc = append(acc, buf[:n]...)
	}
}

// serveStartupThenResult answers STARTUP with READY, then answers every
// subsequent request with the given RESULT body regardless of opcode.
func serveStartupThenResult(t *testing.T, nc net.Conn, res frame.ResultResponse) {
	for {
		fr := readFrame(t, nc)
		switch fr.Header.Opcode {
		case frame.OpStartup:
			raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
			raw[0] |= 0x80
			_, _ = nc.Write(raw)
		default:
			body, err := frame.EncodeResult(res, frame.ProtocolV3)
			require.NoError(t, err)
			raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpResult, 0, body)
			raw[0] |= 0x80
			_, _ = nc.Write(raw)
		}
	}
}

func newNode(t *testing.T, addr string) *node.Node {
	t.Helper()
	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx)
	return node.New(addr, p, nil)
}

func TestExecQueryReturnsVoidResult(t *testing.T) {
	t.Parallel()
	addr := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		serveStartupThenResult(t, nc, frame.ResultResponse{Kind: frame.ResultVoid})
	})
	n := newNode(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := n.ExecQuery(ctx, "INSERT INTO t (id) VALUES (1)", frame.ConsistencyQuorum)
	require.NoError(t, err)
	require.Equal(t, frame.ResultVoid, res.Kind)
}

func TestPreparedStatementReturnsIDAndMetadata(t *testing.T) {
	t.Parallel()
	addr := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		serveStartupThenResult(t, nc, frame.ResultResponse{
			Kind: frame.ResultPrepared,
			Prepared: &frame.PreparedResult{
				ID:          []byte{0x01, 0x02},
				ArgMetadata: frame.Metadata{},
			},
		})
	})
	n := newNode(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pr, err := n.PreparedStatement(ctx, "SELECT * FROM t WHERE id = ?")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, pr.ID)
}

func TestExecPreparedBindsValues(t *testing.T) {
	t.Parallel()
	addr := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		serveStartupThenResult(t, nc, frame.ResultResponse{Kind: frame.ResultVoid})
	})
	n := newNode(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := n.ExecPrepared(ctx, []byte{0x01}, []frame.Value{frame.Int(42)}, frame.ConsistencyOne)
	require.NoError(t, err)
	require.Equal(t, frame.ResultVoid, res.Kind)
}

func TestGetLatencyMeasuresRoundTrip(t *testing.T) {
	t.Parallel()
	addr := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		for {
			fr := readFrame(t, nc)
			switch fr.Header.Opcode {
			case frame.OpStartup:
				raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			case frame.OpQuery:
				time.Sleep(5 * time.Millisecond)
				body, err := frame.EncodeResult(frame.ResultResponse{Kind: frame.ResultVoid}, frame.ProtocolV3)
				require.NoError(t, err)
				raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpResult, 0, body)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			default:
				return
			}
		}
	})
	n := newNode(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := n.GetLatency(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, d, 5*time.Millisecond)
}

func TestOptionsReturnsSupportedMultimap(t *testing.T) {
	t.Parallel()
	addr := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		for {
			fr := readFrame(t, nc)
			switch fr.Header.Opcode {
			case frame.OpStartup:
				raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			case frame.OpOptions:
				e := frame.NewEncoder()
				e.WriteUint16(1)
				e.WriteShortString("CQL_VERSION")
				e.WriteStringList([]string{"3.0.0"})
				raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpSupported, 0, e.Bytes())
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			default:
				return
			}
		}
	})
	n := newNode(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	opts, err := n.Options(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"CQL_VERSION": {"3.0.0"}}, opts)
}

func TestSendRegisterSucceeds(t *testing.T) {
	t.Parallel()
	addr := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		for {
			fr := readFrame(t, nc)
			switch fr.Header.Opcode {
			case frame.OpStartup:
				raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			case frame.OpRegister:
				raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			default:
				return
			}
		}
	})
	n := newNode(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := n.SendRegister(ctx, []string{"TOPOLOGY_CHANGE", "STATUS_CHANGE"})
	require.NoError(t, err)
}
