// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package negotiate

import (
	"testing"

	"github.com/stretchr/testify/require"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
)

func TestIntersectCommutative(t *testing.T) {
	require := require.New(t)

	lists := [][]int32{
		{1, 2, 3, 4},
		{2, 3, 5},
		{3, 2, 9},
	}
	expected := Intersect(lists)
	require.Equal(2, expected.Len())
	require.True(expected.Contains(2))
	require.True(expected.Contains(3))

	permutations := [][][]int32{
		{lists[1], lists[0], lists[2]},
		{lists[2], lists[1], lists[0]},
		{lists[2], lists[0], lists[1]},
	}
	for _, perm := range permutations {
		got := Intersect(perm)
		require.Equal(expected, got)
	}
}

func TestIntersectIdentity(t *testing.T) {
	require := require.New(t)

	got := Intersect([][]int32{{4, 7, 4}})
	require.Equal(2, got.Len())
	require.True(got.Contains(4))
	require.True(got.Contains(7))
}

func TestIntersectEmptyInput(t *testing.T) {
	require.Zero(t, Intersect[int32](nil).Len())
}

func TestAlignScalar(t *testing.T) {
	tests := []struct {
		name       string
		vals       []int32
		expected   int32
		expectedOk bool
	}{
		{name: "all equal", vals: []int32{7, 7, 7}, expected: 7, expectedOk: true},
		{name: "single", vals: []int32{-1}, expected: -1, expectedOk: true},
		{name: "mismatch", vals: []int32{7, 8}, expectedOk: false},
		{name: "empty", vals: nil, expectedOk: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			got, ok := AlignScalar(tt.vals, func(v int32) int32 { return v })
			require.Equal(tt.expectedOk, ok)
			if ok {
				require.Equal(tt.expected, got)
			}
		})
	}
}

func TestIntersectNestedGated(t *testing.T) {
	require := require.New(t)

	type sub struct {
		method     int32
		compatible []int32
	}
	params := [][]sub{
		{{method: 1}, {method: 2, compatible: []int32{9}}},
		{{method: 1, compatible: []int32{5}}, {method: 2}},
	}

	// Gate on protocol 5: party 0's method 2 (compatible only with 9) drops.
	got := IntersectNested(params,
		func(p []sub) []sub { return p },
		func(s sub) int32 { return s.method },
		func(s sub) bool {
			if len(s.compatible) == 0 {
				return true
			}
			for _, c := range s.compatible {
				if c == 5 {
					return true
				}
			}
			return false
		})
	require.Equal(1, got.Len())
	require.True(got.Contains(1))
}

func TestExtractParams(t *testing.T) {
	require := require.New(t)

	mk := func(tags []int32, params []*pb.Any) *pb.HandshakeRequest {
		return &pb.HandshakeRequest{SupportedAlgos: tags, AlgoParams: params}
	}
	decode := func(a *pb.Any) (*pb.LrHyperparamsProposal, error) {
		p := new(pb.LrHyperparamsProposal)
		return p, pb.UnpackAny(a, "algos.LrHyperparamsProposal", p)
	}
	blob := func(optimizer int32) *pb.Any {
		return pb.PackAny("algos.LrHyperparamsProposal",
			&pb.LrHyperparamsProposal{Optimizers: []int32{optimizer}})
	}

	enums := func(r *pb.HandshakeRequest) []int32 { return r.SupportedAlgos }
	blobs := func(r *pb.HandshakeRequest) []*pb.Any { return r.AlgoParams }

	got := ExtractParams([]*pb.HandshakeRequest{
		mk([]int32{2}, []*pb.Any{blob(1)}),
		mk([]int32{1, 2}, []*pb.Any{blob(8), blob(3)}),
	}, enums, blobs, 2, decode)
	require.Len(got, 2)
	require.Equal([]int32{1}, got[0].Optimizers)
	require.Equal([]int32{3}, got[1].Optimizers)

	// A single envelope without the tag empties the whole result.
	got = ExtractParams([]*pb.HandshakeRequest{
		mk([]int32{2}, []*pb.Any{blob(1)}),
		mk([]int32{1}, []*pb.Any{blob(8)}),
	}, enums, blobs, 2, decode)
	require.Nil(got)

	// Ragged enum/param lists are treated as absent.
	got = ExtractParams([]*pb.HandshakeRequest{
		mk([]int32{1, 2}, []*pb.Any{blob(8)}),
	}, enums, blobs, 2, decode)
	require.Nil(got)
}

func TestAlmostZero(t *testing.T) {
	tests := []struct {
		name     string
		val      float64
		expected bool
	}{
		{name: "zero", val: 0, expected: true},
		{name: "subnormal", val: 1e-40, expected: true},
		{name: "half", val: 0.5, expected: false},
		{name: "negative half", val: -0.5, expected: false},
		{name: "small but normal", val: 1e-3, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, AlmostZero(tt.val))
		})
	}
}

func TestAlmostEqualUlps(t *testing.T) {
	require := require.New(t)
	require.True(AlmostEqual(1.0, 1.0, 2))
	require.True(AlmostEqual(1.0, 1.0+1e-8, 2))
	require.False(AlmostEqual(1.0, 1.001, 2))
}
