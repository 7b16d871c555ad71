// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sslr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/transport"
)

func testConfig() Config {
	return Config{
		Protocol:        pb.ProtocolKind_PROTOCOL_KIND_SEMI2K,
		FieldType:       pb.FieldType_FIELD_TYPE_64,
		FxpBits:         18,
		TruncMode:       pb.TruncMode_TRUNC_MODE_PROBABILISTIC,
		ShardFormat:     pb.ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_RAW,
		LastBatchPolicy: pb.LastBatchPolicy_LAST_BATCH_POLICY_DISCARD,
	}
}

// runParties executes fn once per rank over a fresh two-party mesh.
func runParties(t *testing.T, fn func(rank int32, e *Engine) error) {
	t.Helper()
	trs := transport.NewMemMesh(2, 10*time.Second)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for rank := int32(0); rank < 2; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()
			e, err := New(testConfig(), trs[rank], nil)
			if err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = fn(rank, e)
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestNewRejectsUnsupportedConfig(t *testing.T) {
	require := require.New(t)
	trs := transport.NewMemMesh(2, time.Second)

	cfg := testConfig()
	cfg.Protocol = pb.ProtocolKind_PROTOCOL_KIND_ABY3
	_, err := New(cfg, trs[0], nil)
	require.ErrorContains(err, "not implemented")

	cfg = testConfig()
	cfg.FieldType = pb.FieldType_FIELD_TYPE_128
	_, err = New(cfg, trs[0], nil)
	require.ErrorContains(err, "not implemented")

	cfg = testConfig()
	cfg.UseTTP = true
	_, err = New(cfg, trs[0], nil)
	require.ErrorContains(err, "not implemented")

	cfg = testConfig()
	cfg.LastBatchPolicy = pb.LastBatchPolicy_LAST_BATCH_POLICY_PAD
	_, err = New(cfg, trs[0], nil)
	require.ErrorContains(err, "not implemented")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	require := require.New(t)
	trs := transport.NewMemMesh(2, time.Second)
	e, err := New(testConfig(), trs[0], nil)
	require.NoError(err)

	for _, v := range []float64{0, 1, -1, 0.5, -0.25, 123.456, -98.7} {
		got := e.DecodeValue(e.EncodeValue(v))
		require.InDelta(v, got, 1e-4, "value %v", v)
	}
}

func TestOpenReconstructsSharedValue(t *testing.T) {
	// Party 0 holds the encoded plaintext, party 1 holds zeros; the opened
	// sum is the plaintext.
	plain := [][]float64{{1.5, -2}, {0.25, 4}}
	runParties(t, func(rank int32, e *Engine) error {
		var share *Matrix
		if rank == 0 {
			share = e.Encode(plain)
		} else {
			share = NewMatrix(2, 2)
		}
		got, err := e.Reveal(share)
		if err != nil {
			return err
		}
		for i := range plain {
			for j := range plain[i] {
				require.InDelta(t, plain[i][j], got[i][j], 1e-4)
			}
		}
		return nil
	})
}

func TestMatMulMatchesPlaintext(t *testing.T) {
	a := [][]float64{{1, 2}, {3, -1}, {0.5, 0.25}}
	b := [][]float64{{2, 0}, {1, -1}}
	expected := [][]float64{{4, -2}, {5, 1}, {1.25, -0.25}}

	runParties(t, func(rank int32, e *Engine) error {
		var x, y *Matrix
		if rank == 0 {
			x = e.Encode(a)
			y = NewMatrix(2, 2)
		} else {
			x = NewMatrix(3, 2)
			y = e.Encode(b)
		}
		z, err := e.MatMul(x, y)
		if err != nil {
			return err
		}
		got, err := e.Reveal(z)
		if err != nil {
			return err
		}
		for i := range expected {
			for j := range expected[i] {
				require.InDelta(t, expected[i][j], got[i][j], 1e-3)
			}
		}
		return nil
	})
}

func TestSigmoidMinimax(t *testing.T) {
	// 0.5 + 0.125x on shares.
	runParties(t, func(rank int32, e *Engine) error {
		var x *Matrix
		if rank == 0 {
			x = e.Encode([][]float64{{2}, {-2}, {0}})
		} else {
			x = NewMatrix(3, 1)
		}
		y, err := e.Sigmoid(pb.SigmoidMode_SIGMOID_MODE_MINIMAX_1, x)
		if err != nil {
			return err
		}
		got, err := e.Reveal(y)
		if err != nil {
			return err
		}
		require.InDelta(t, 0.75, got[0][0], 1e-3)
		require.InDelta(t, 0.25, got[1][0], 1e-3)
		require.InDelta(t, 0.5, got[2][0], 1e-3)
		return nil
	})
}

func TestMulPublicAndTrunc(t *testing.T) {
	runParties(t, func(rank int32, e *Engine) error {
		var x *Matrix
		if rank == 0 {
			x = e.Encode([][]float64{{8}, {-8}})
		} else {
			x = NewMatrix(2, 1)
		}
		got, err := e.Reveal(e.MulPublic(x, 0.25))
		if err != nil {
			return err
		}
		require.InDelta(t, 2.0, got[0][0], 1e-3)
		require.InDelta(t, -2.0, got[1][0], 1e-3)
		return nil
	})
}

func TestField32Arithmetic(t *testing.T) {
	trs := transport.NewMemMesh(2, 10*time.Second)
	cfg := testConfig()
	cfg.FieldType = pb.FieldType_FIELD_TYPE_32
	cfg.FxpBits = 12

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for rank := int32(0); rank < 2; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()
			e, err := New(cfg, trs[rank], nil)
			if err != nil {
				errs[rank] = err
				return
			}
			var x *Matrix
			if rank == 0 {
				x = e.Encode([][]float64{{3.5}, {-3.5}})
			} else {
				x = NewMatrix(2, 1)
			}
			got, err := e.Reveal(x)
			if err != nil {
				errs[rank] = err
				return
			}
			require.InDelta(t, 3.5, got[0][0], 1e-2)
			require.InDelta(t, -3.5, got[1][0], 1e-2)
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}
