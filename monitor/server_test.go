package monitor_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodestore/cql/cluster"
	"github.com/nodestore/cql/frame"
	"github.com/nodestore/cql/monitor"
)

func seedServer(t *testing.T) string {
	t.Helper()
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
			go func(nc net.Conn) {
				defer func() { _ = nc.Close() }()
				for {
					buf := make([]byte, 4096)
					var acc []byte
					var fr *frame.Frame
					for {
						f, _, err := frame.TryReadFrame(acc)
						if err != nil {
							return
						}
						if f != nil {
							fr = f
							break
						}
						n, err := nc.Read(buf)
						if err != nil {
							return
						}
						acc = append(acc, buf[:n]...)
					}
					switch fr.Header.Opcode {
					case frame.OpStartup, frame.OpRegister:
						raw := frame.WriteFrame(frame.ProtocolV3, fr.Header.Stream, frame.OpReady, 0, nil)
						raw[0] |= 0x80
						_, _ = nc.Write(raw)
					case frame.OpQuery:
						body, _ := frame.EncodeResult(frame.ResultResponse{
							Kind: frame.ResultRows,
							Rows: &frame.RowsResult{
								Metadata: frame.Metadata{
									Flags:   0x0001,
									Columns: []frame.ColumnSpec{{Name: "rpc_address", Type: frame.KindInet}},
								},
							},
						}, frame.ProtocolV3)
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
	return addr
}

func connectedCluster(t *testing.T) *cluster.Cluster {
	t.Helper()
	addr := seedServer(t)
	c := cluster.New(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.ConnectCluster(ctx, addr))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHandleStatusReturnsCurrentSnapshot(t *testing.T) {
	t.Parallel()
	c := connectedCluster(t)
	b := monitor.NewBroker[cluster.Info]()
	s := monitor.New(c, b, nil)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Version     uint8    `json:"version"`
		CurrentNode string   `json:"current_node"`
		Available   []string `json:"available"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, frame.ProtocolV3, got.Version)
	require.NotEmpty(t, got.CurrentNode)
}

func TestHandleSSEStreamsPublishedSnapshots(t *testing.T) {
	t.Parallel()
	c := connectedCluster(t)
	b := monitor.NewBroker[cluster.Info]()
	s := monitor.New(c, b, nil)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	reqCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b.Publish(cluster.Info{Version: frame.ProtocolV3, CurrentNode: "10.0.0.1:9042"})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	require.Contains(t, line, "10.0.0.1:9042")
}
