package pool_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodestore/cql/frame"
	"github.com/nodestore/cql/pool"
)

// scriptedServer accepts one connection per call and hands it to handle.
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

func readyServer(t *testing.T, version uint8) string {
	return scriptedServer(t, func(t *testing.T, nc net.Conn) {
		for {
			fr := readFrame(t, nc)
			switch fr.Header.Opcode {
			case frame.OpStartup:
				raw := frame.WriteFrame(version, fr.Header.Stream, frame.OpReady, 0, nil)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			case frame.OpOptions:
				body, err := frame.EncodeResult(frame.ResultResponse{Kind: frame.ResultVoid}, version)
				require.NoError(t, err)
				raw := frame.WriteFrame(version, fr.Header.Stream, frame.OpResult, 0, body)
				raw[0] |= 0x80
				_, _ = nc.Write(raw)
			default:
				return
			}
		}
	})
}

func TestConnectDialsAndHandshakes(t *testing.T) {
	t.Parallel()
	addr := readyServer(t, frame.ProtocolV3)

	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	comp := p.Connect(addr)
	out, err := comp.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, out.Err)
}

func TestSubmitRoutesRequestAndReturnsResponse(t *testing.T) {
	t.Parallel()
	addr := readyServer(t, frame.ProtocolV3)

	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	comp := p.Submit(addr, frame.OptionsRequest{})
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	out, err := comp.Wait(waitCtx)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	_, ok := out.Response.(frame.ResultResponse)
	require.True(t, ok)
}

func TestSubmitReusesCachedConnection(t *testing.T) {
	t.Parallel()
	var accepts int
	var lc net.ListenConfig
	lis, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	t.Cleanup(func() { _ = lis.Close() })

	go func() {
		for {
			nc, err := lis.Accept()
			if err != nil {
				return
			}
			accepts++
			go func(nc net.Conn) {
				defer func() { _ = nc.Close() }()
				for {
					fr := readFrame(t, nc)
					switch fr.Header.Opcode {
					case frame.OpStartup:
						raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
						raw[0] |= 0x80
						_, _ = nc.Write(raw)
					case frame.OpOptions:
						body, _ := frame.EncodeResult(frame.ResultResponse{Kind: frame.ResultVoid}, frame.ProtocolV3)
						raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpResult, 0, body)
						raw[0] |= 0x80
						_, _ = nc.Write(raw)
					default:
						return
					}
				}
			}(nc)
		}
	}()

	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		comp := p.Submit(addr, frame.OptionsRequest{})
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		out, err := comp.Wait(waitCtx)
		waitCancel()
		require.NoError(t, err)
		require.NoError(t, out.Err)
	}

	require.Equal(t, 1, accepts, "only one connection should be dialed for repeated requests to the same host")
}

func TestSubmitToUnreachableHostResolvesWithError(t *testing.T) {
	t.Parallel()

	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// Nothing listens on this port.
	comp := p.Submit("127.0.0.1:1", frame.OptionsRequest{})
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	out, err := comp.Wait(waitCtx)
	require.NoError(t, err)
	require.Error(t, out.Err)
}

func TestSlowDialToOneHostDoesNotBlockAnotherHost(t *testing.T) {
	t.Parallel()

	slow := scriptedServer(t, func(t *testing.T, nc net.Conn) {
		time.Sleep(2 * time.Second)
		_ = readFrame(t, nc)
	})
	fast := readyServer(t, frame.ProtocolV3)

	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	slowComp := p.Submit(slow, frame.OptionsRequest{})
	fastComp := p.Submit(fast, frame.OptionsRequest{})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer waitCancel()
	out, err := fastComp.Wait(waitCtx)
	require.NoError(t, err, "request to a healthy host must not wait behind a slow dial to another host")
	require.NoError(t, out.Err)

	_ = slowComp
}

func TestShutdownClosesPool(t *testing.T) {
	t.Parallel()
	addr := readyServer(t, frame.ProtocolV3)

	p := pool.New(frame.ProtocolV3, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	comp := p.Connect(addr)
	_, err := comp.Wait(context.Background())
	require.NoError(t, err)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, p.Shutdown(shutdownCtx))
}
