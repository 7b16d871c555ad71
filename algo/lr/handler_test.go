// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/interconnect/config"
	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/transport"
)

// testContext builds a suggested LR context the way the resolver would, with
// the dataset shape already prepared.
func testContext(rank, world int32, hasLabel bool, featureNum int32, sampleSize int64) *Context {
	ctx := &Context{
		Hyper: HyperParam{
			NumEpoch:        3,
			BatchSize:       20,
			LastBatchPolicy: pb.LastBatchPolicy_LAST_BATCH_POLICY_DISCARD,
			L2Norm:          0.5,
		},
		SigmoidMode: pb.SigmoidMode_SIGMOID_MODE_MINIMAX_1,
		Ss: SsParam{
			Protocol:             pb.ProtocolKind_PROTOCOL_KIND_SEMI2K,
			FieldType:            pb.FieldType_FIELD_TYPE_64,
			FxpBits:              18,
			TruncMode:            pb.TruncMode_TRUNC_MODE_PROBABILISTIC,
			ShardSerializeFormat: pb.ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_RAW,
		},
		Ttp: config.TtpConfig{
			ServerHost:    "127.0.0.1:9449",
			ServerVersion: 2,
			SessionID:     "interconnection-root",
		},
		Optimizer: Optimizer{
			Kind: pb.Optimizer_OPTIMIZER_SGD,
			Sgd:  &pb.SgdOptimizer{LearningRate: 0.0001},
		},
		Algo:             pb.AlgoType_ALGO_TYPE_SS_LR,
		ProtocolFamilies: []pb.ProtocolFamily{pb.ProtocolFamily_PROTOCOL_FAMILY_SS},
		Version:          2,
	}
	ctx.Io.SampleSize = sampleSize
	ctx.Io.FeatureNums = make([]int32, world)
	ctx.Io.FeatureNums[rank] = featureNum
	ctx.Io.LabelRank = -1
	if hasLabel {
		ctx.Io.LabelRank = rank
	}
	return ctx
}

func testHandlers(t *testing.T, ctxs ...*Context) []*Handler {
	t.Helper()
	trs := transport.NewMemMesh(int32(len(ctxs)), time.Second)
	handlers := make([]*Handler, len(ctxs))
	for i, ctx := range ctxs {
		handlers[i] = NewHandler(ctx, trs[i], nil)
	}
	return handlers
}

func TestNegotiateTwoPartyOK(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 2, true, 5, 1000)
	ctx1 := testContext(1, 2, false, 7, 1000)
	handlers := testHandlers(t, ctx0, ctx1)

	request := handlers[1].BuildHandshakeRequest()
	require.Equal(int32(2), request.Version)
	require.Equal(int32(1), request.RequesterRank)

	st := handlers[0].NegotiateHandshakeParams([]*pb.HandshakeRequest{request})
	require.True(st.OK())
	require.Equal([]int32{5, 7}, ctx0.Io.FeatureNums)
	require.Equal(int32(0), ctx0.Io.LabelRank)

	response := handlers[0].BuildHandshakeResponse()
	require.Equal(pb.ErrorCode_OK, response.Header.ErrorCode)
	require.NoError(handlers[1].ProcessHandshakeResponse(response))

	// Symmetric outcome: both contexts agree on every negotiated field.
	require.Equal(ctx0.Io.FeatureNums, ctx1.Io.FeatureNums)
	require.Equal(ctx0.Io.LabelRank, ctx1.Io.LabelRank)
	require.Equal(ctx0.Io.SampleSize, ctx1.Io.SampleSize)
	require.Equal(ctx0.Hyper, ctx1.Hyper)
	require.Equal(ctx0.Ss, ctx1.Ss)
	require.Equal(ctx0.Ttp.ServerHost, ctx1.Ttp.ServerHost)
	require.Equal(ctx0.Ttp.SessionID, ctx1.Ttp.SessionID)
	require.Equal(ctx0.Ttp.AdjustRank, ctx1.Ttp.AdjustRank)
}

func TestNegotiateSampleSizeMismatch(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 2, true, 5, 1000)
	ctx1 := testContext(1, 2, false, 7, 999)
	handlers := testHandlers(t, ctx0, ctx1)

	st := handlers[0].NegotiateHandshakeParams(
		[]*pb.HandshakeRequest{handlers[1].BuildHandshakeRequest()})
	require.False(st.OK())
	require.Equal(pb.ErrorCode_HANDSHAKE_REFUSED, st.Code)
	require.Equal("sample size inconsistent", st.Msg)
}

func TestNegotiateRefusalIsDeterministic(t *testing.T) {
	require := require.New(t)

	for i := 0; i < 3; i++ {
		ctx0 := testContext(0, 2, true, 5, 1000)
		ctx1 := testContext(1, 2, false, 7, 999)
		handlers := testHandlers(t, ctx0, ctx1)
		st := handlers[0].NegotiateHandshakeParams(
			[]*pb.HandshakeRequest{handlers[1].BuildHandshakeRequest()})
		require.Equal(pb.ErrorCode_HANDSHAKE_REFUSED, st.Code)
		require.Equal("sample size inconsistent", st.Msg)
	}
}

func TestNegotiateLabelUniqueness(t *testing.T) {
	tests := []struct {
		name         string
		label0       bool
		label1       bool
		expectedOK   bool
		expectedCode pb.ErrorCode
		expectedMsg  string
	}{
		{name: "exactly one labeler", label0: true, label1: false, expectedOK: true},
		{name: "proposer labels", label0: false, label1: true, expectedOK: true},
		{
			name:         "two labelers",
			label0:       true,
			label1:       true,
			expectedCode: pb.ErrorCode_HANDSHAKE_REFUSED,
			expectedMsg:  "more than one party have label",
		},
		{
			name:         "no labeler",
			label0:       false,
			label1:       false,
			expectedCode: pb.ErrorCode_INVALID_REQUEST,
			expectedMsg:  "no party has label",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			ctx0 := testContext(0, 2, tt.label0, 5, 100)
			ctx1 := testContext(1, 2, tt.label1, 7, 100)
			handlers := testHandlers(t, ctx0, ctx1)

			st := handlers[0].NegotiateHandshakeParams(
				[]*pb.HandshakeRequest{handlers[1].BuildHandshakeRequest()})
			if tt.expectedOK {
				require.True(st.OK())
				return
			}
			require.False(st.OK())
			require.Equal(tt.expectedCode, st.Code)
			require.Equal(tt.expectedMsg, st.Msg)
		})
	}
}

func TestNegotiatePenaltyDowngrade(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 2, true, 5, 100)
	ctx1 := testContext(1, 2, false, 7, 100)
	ctx1.Hyper.L2Norm = 0.0
	handlers := testHandlers(t, ctx0, ctx1)

	st := handlers[0].NegotiateHandshakeParams(
		[]*pb.HandshakeRequest{handlers[1].BuildHandshakeRequest()})
	require.True(st.OK())
	require.Zero(ctx0.Hyper.L2Norm)

	response := handlers[0].BuildHandshakeResponse()
	require.NoError(handlers[1].ProcessHandshakeResponse(response))
	require.Zero(ctx1.Hyper.L2Norm)
}

func TestNegotiateOptimizerNotOffered(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 2, true, 5, 100)
	ctx1 := testContext(1, 2, false, 7, 100)
	handlers := testHandlers(t, ctx0, ctx1)

	request := handlers[1].BuildHandshakeRequest()
	lrParam := new(pb.LrHyperparamsProposal)
	require.NoError(pb.UnpackAny(request.AlgoParams[0], "algos.LrHyperparamsProposal", lrParam))
	lrParam.Optimizers = []int32{int32(pb.Optimizer_OPTIMIZER_ADAM)}
	request.AlgoParams[0] = pb.PackAny("algos.LrHyperparamsProposal", lrParam)

	st := handlers[0].NegotiateHandshakeParams([]*pb.HandshakeRequest{request})
	require.False(st.OK())
	require.Equal(pb.ErrorCode_UNSUPPORTED_ARGUMENT, st.Code)
	require.Equal("negotiate optimizer failed", st.Msg)
}

func TestNegotiateTruncModeGatedByProtocol(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 2, true, 5, 100)
	ctx1 := testContext(1, 2, false, 7, 100)
	handlers := testHandlers(t, ctx0, ctx1)

	// The proposer's truncation mode only applies to ABY3, which is not the
	// locally chosen protocol, so the intersection is empty.
	request := handlers[1].BuildHandshakeRequest()
	ssParam := new(pb.SSProtocolProposal)
	require.NoError(pb.UnpackAny(request.ProtocolFamilyParams[0], "protocol.SSProtocolProposal", ssParam))
	ssParam.TruncModes[0].CompatibleProtocols = []int32{int32(pb.ProtocolKind_PROTOCOL_KIND_ABY3)}
	request.ProtocolFamilyParams[0] = pb.PackAny("protocol.SSProtocolProposal", ssParam)

	st := handlers[0].NegotiateHandshakeParams([]*pb.HandshakeRequest{request})
	require.False(st.OK())
	require.Equal(pb.ErrorCode_UNSUPPORTED_ARGUMENT, st.Code)
	require.Equal("negotiate trunc mode failed", st.Msg)
}

func TestNegotiateMissingAlgoParams(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 2, true, 5, 100)
	ctx1 := testContext(1, 2, false, 7, 100)
	handlers := testHandlers(t, ctx0, ctx1)

	request := handlers[1].BuildHandshakeRequest()
	request.AlgoParams = nil

	st := handlers[0].NegotiateHandshakeParams([]*pb.HandshakeRequest{request})
	require.False(st.OK())
	require.Equal(pb.ErrorCode_INVALID_REQUEST, st.Code)
}

func TestNegotiateThreeParties(t *testing.T) {
	require := require.New(t)

	ctx0 := testContext(0, 3, false, 3, 100)
	ctx1 := testContext(1, 3, true, 4, 100)
	ctx2 := testContext(2, 3, false, 5, 100)
	handlers := testHandlers(t, ctx0, ctx1, ctx2)

	st := handlers[0].NegotiateHandshakeParams([]*pb.HandshakeRequest{
		handlers[1].BuildHandshakeRequest(),
		handlers[2].BuildHandshakeRequest(),
	})
	require.True(st.OK())
	require.Equal([]int32{3, 4, 5}, ctx0.Io.FeatureNums)
	require.Equal(int32(1), ctx0.Io.LabelRank)

	response := handlers[0].BuildHandshakeResponse()
	require.NoError(handlers[1].ProcessHandshakeResponse(response))
	require.NoError(handlers[2].ProcessHandshakeResponse(response))
	require.Equal(ctx0.Io.FeatureNums, ctx1.Io.FeatureNums)
	require.Equal(ctx0.Io.FeatureNums, ctx2.Io.FeatureNums)
	require.Equal(int32(1), ctx2.Io.LabelRank)
}

func TestNewOptimizerRejectsUnimplemented(t *testing.T) {
	require := require.New(t)

	_, err := NewOptimizer(pb.Optimizer_OPTIMIZER_SGD, 0.1)
	require.NoError(err)

	for _, kind := range []pb.Optimizer{
		pb.Optimizer_OPTIMIZER_MOMENTUM,
		pb.Optimizer_OPTIMIZER_ADAM,
		pb.Optimizer_OPTIMIZER_NADAM,
	} {
		_, err := NewOptimizer(kind, 0.1)
		require.ErrorContains(err, "not implemented")
	}

	_, err = NewOptimizer(pb.Optimizer_OPTIMIZER_UNSPECIFIED, 0.1)
	require.ErrorContains(err, "unspecified")
}
