// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemMeshFIFOPerTag(t *testing.T) {
	require := require.New(t)
	trs := NewMemMesh(2, 0)

	require.NoError(trs[0].Send(1, "a", []byte("first")))
	require.NoError(trs[0].SendAsync(1, "a", []byte("second")))
	require.NoError(trs[0].Send(1, "b", []byte("other")))

	got, err := trs[1].Recv(0, "a")
	require.NoError(err)
	require.Equal([]byte("first"), got)

	got, err = trs[1].Recv(0, "b")
	require.NoError(err)
	require.Equal([]byte("other"), got)

	got, err = trs[1].Recv(0, "a")
	require.NoError(err)
	require.Equal([]byte("second"), got)
}

func TestMemMeshRecvTimeout(t *testing.T) {
	require := require.New(t)
	trs := NewMemMesh(2, 50*time.Millisecond)

	_, err := trs[0].Recv(1, "never")
	require.ErrorIs(err, ErrTimeout)
}

func TestMemMeshClose(t *testing.T) {
	require := require.New(t)
	trs := NewMemMesh(2, 0)

	done := make(chan error, 1)
	go func() {
		_, err := trs[0].Recv(1, "never")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(trs[0].Close())
	require.ErrorIs(<-done, ErrClosed)
}

func TestMemMeshIsolatesDirections(t *testing.T) {
	require := require.New(t)
	trs := NewMemMesh(3, 100*time.Millisecond)

	require.NoError(trs[1].Send(0, "t", []byte("from1")))
	require.NoError(trs[2].Send(0, "t", []byte("from2")))

	got, err := trs[0].Recv(2, "t")
	require.NoError(err)
	require.Equal([]byte("from2"), got)

	got, err = trs[0].Recv(1, "t")
	require.NoError(err)
	require.Equal([]byte("from1"), got)
}
