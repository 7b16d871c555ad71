// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// freeAddrs reserves n loopback addresses for a test mesh.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		require.NoError(t, ln.Close())
	}
	return addrs
}

func dialMesh(t *testing.T, parties []string, timeout time.Duration) []*TCPTransport {
	t.Helper()
	trs := make([]*TCPTransport, len(parties))
	var wg sync.WaitGroup
	errs := make([]error, len(parties))
	for rank := range parties {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			trs[rank], errs[rank] = New(Config{
				Parties:     parties,
				Rank:        int32(rank),
				RecvTimeout: timeout,
			})
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	t.Cleanup(func() {
		for _, tr := range trs {
			_ = tr.Close()
		}
	})
	return trs
}

func TestTCPMeshSendRecv(t *testing.T) {
	require := require.New(t)
	trs := dialMesh(t, freeAddrs(t, 2), 5*time.Second)

	require.NoError(trs[0].Send(1, TagHandshake, []byte("hello")))
	got, err := trs[1].Recv(0, TagHandshake)
	require.NoError(err)
	require.Equal([]byte("hello"), got)

	require.NoError(trs[1].Send(0, TagHandshakeResponse, []byte("world")))
	got, err = trs[0].Recv(1, TagHandshakeResponse)
	require.NoError(err)
	require.Equal([]byte("world"), got)
}

func TestTCPMeshOrderedAsync(t *testing.T) {
	require := require.New(t)
	trs := dialMesh(t, freeAddrs(t, 2), 5*time.Second)

	const count = 100
	for i := 0; i < count; i++ {
		require.NoError(trs[0].SendAsync(1, "seq", []byte(fmt.Sprintf("msg-%03d", i))))
	}
	for i := 0; i < count; i++ {
		got, err := trs[1].Recv(0, "seq")
		require.NoError(err)
		require.Equal(fmt.Sprintf("msg-%03d", i), string(got))
	}
}

func TestTCPMeshThreeParties(t *testing.T) {
	require := require.New(t)
	trs := dialMesh(t, freeAddrs(t, 3), 5*time.Second)

	for src := int32(1); src < 3; src++ {
		require.NoError(trs[src].Send(0, TagHandshake, []byte{byte(src)}))
	}
	for src := int32(1); src < 3; src++ {
		got, err := trs[0].Recv(src, TagHandshake)
		require.NoError(err)
		require.Equal([]byte{byte(src)}, got)
	}
}

func TestTCPMeshRecvTimeout(t *testing.T) {
	require := require.New(t)
	trs := dialMesh(t, freeAddrs(t, 2), 100*time.Millisecond)

	_, err := trs[0].Recv(1, "never")
	require.ErrorIs(err, ErrTimeout)
}

func TestTCPMeshRejectsBadRanks(t *testing.T) {
	require := require.New(t)
	trs := dialMesh(t, freeAddrs(t, 2), time.Second)

	require.Error(trs[0].Send(0, "t", nil))
	require.Error(trs[0].Send(5, "t", nil))
	_, err := trs[0].Recv(0, "t")
	require.Error(err)
}
