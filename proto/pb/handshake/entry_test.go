// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionSniff(t *testing.T) {
	tests := []struct {
		name        string
		buf         []byte
		expected    int32
		expectedErr bool
	}{
		{
			name:     "v2 request",
			buf:      (&HandshakeRequest{Version: 2, RequesterRank: 1}).Marshal(),
			expected: 2,
		},
		{
			name:     "v1 helper",
			buf:      (&VersionCheckHelper{Version: 1}).Marshal(),
			expected: 1,
		},
		{
			name:        "version zero",
			buf:         (&HandshakeRequest{RequesterRank: 1}).Marshal(),
			expectedErr: true,
		},
		{
			name:        "garbage",
			buf:         []byte{0xff, 0xff, 0xff},
			expectedErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			v, err := SniffVersion(tt.buf)
			if tt.expectedErr {
				require.Error(err)
				return
			}
			require.NoError(err)
			require.Equal(tt.expected, v)
		})
	}
}

func TestHandshakeRequestRoundTrip(t *testing.T) {
	require := require.New(t)

	lrParam := &LrHyperparamsProposal{
		SupportedVersions: []int32{1},
		Optimizers:        []int32{int32(Optimizer_OPTIMIZER_SGD)},
		LastBatchPolicies: []int32{int32(LastBatchPolicy_LAST_BATCH_POLICY_DISCARD)},
		UseL2Norm:         true,
	}
	ssParam := &SSProtocolProposal{
		SupportedVersions:  []int32{1},
		SupportedProtocols: []int32{int32(ProtocolKind_PROTOCOL_KIND_SEMI2K)},
		FieldTypes:         []int32{int32(FieldType_FIELD_TYPE_64)},
		TruncModes: []*TruncConfigProposal{{
			SupportedVersions: []int32{1},
			Method:            int32(TruncMode_TRUNC_MODE_PROBABILISTIC),
		}},
		PrgConfigs: []*PrgConfigProposal{{
			SupportedVersions: []int32{1},
			CryptoType:        int32(CryptoType_CRYPTO_TYPE_AES128_CTR),
		}},
		TripleConfigs: []*TripleConfigProposal{{
			SupportedVersions: []int32{1},
			ServerVersion:     2,
		}},
		ShardSerializeFormats: []int32{int32(ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_RAW)},
	}
	req := &HandshakeRequest{
		Version:              2,
		RequesterRank:        1,
		SupportedAlgos:       []int32{int32(AlgoType_ALGO_TYPE_SS_LR)},
		AlgoParams:           []*Any{PackAny("algos.LrHyperparamsProposal", lrParam)},
		Ops:                  []int32{int32(OpType_OP_TYPE_SIGMOID)},
		OpParams:             []*Any{PackAny("op.SigmoidParamsProposal", &SigmoidParamsProposal{SigmoidModes: []int32{1}})},
		ProtocolFamilies:     []int32{int32(ProtocolFamily_PROTOCOL_FAMILY_SS)},
		ProtocolFamilyParams: []*Any{PackAny("protocol.SSProtocolProposal", ssParam)},
		IoParam: PackAny("algos.LrDataIoProposal", &LrDataIoProposal{
			SupportedVersions: []int32{1},
			SampleSize:        1000,
			FeatureNum:        7,
			HasLabel:          true,
		}),
	}

	decoded := new(HandshakeRequest)
	require.NoError(decoded.Unmarshal(req.Marshal()))
	require.Equal(req.Version, decoded.Version)
	require.Equal(req.RequesterRank, decoded.RequesterRank)
	require.Equal(req.SupportedAlgos, decoded.SupportedAlgos)
	require.Equal(req.Ops, decoded.Ops)
	require.Equal(req.ProtocolFamilies, decoded.ProtocolFamilies)

	gotLr := new(LrHyperparamsProposal)
	require.NoError(UnpackAny(decoded.AlgoParams[0], "algos.LrHyperparamsProposal", gotLr))
	require.Equal(lrParam, gotLr)

	gotSs := new(SSProtocolProposal)
	require.NoError(UnpackAny(decoded.ProtocolFamilyParams[0], "protocol.SSProtocolProposal", gotSs))
	require.Equal(ssParam, gotSs)

	gotIo := new(LrDataIoProposal)
	require.NoError(UnpackAny(decoded.IoParam, "algos.LrDataIoProposal", gotIo))
	require.Equal(int64(1000), gotIo.SampleSize)
	require.True(gotIo.HasLabel)
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	require := require.New(t)

	resp := &HandshakeResponse{
		Header: ErrHeader(ErrorCode_HANDSHAKE_REFUSED, "sample size inconsistent"),
		Algo:   int32(AlgoType_ALGO_TYPE_SS_LR),
	}
	decoded := new(HandshakeResponse)
	require.NoError(decoded.Unmarshal(resp.Marshal()))
	require.Equal(ErrorCode_HANDSHAKE_REFUSED, decoded.Header.ErrorCode)
	require.Equal("sample size inconsistent", decoded.Header.ErrorMsg)
	require.Equal(resp.Algo, decoded.Algo)
}

func TestNegativeScalarsSurviveRoundTrip(t *testing.T) {
	require := require.New(t)

	psiIo := &PsiDataIoProposal{ItemNum: 100, ResultToRank: -1}
	gotPsi := new(PsiDataIoProposal)
	require.NoError(gotPsi.Unmarshal(psiIo.Marshal()))
	require.Equal(int32(-1), gotPsi.ResultToRank)
	require.Equal(int64(100), gotPsi.ItemNum)

	lrIo := &LrDataIoResult{SampleSize: 10, FeatureNums: []int32{5, 7}, LabelRank: 0}
	gotLr := new(LrDataIoResult)
	require.NoError(gotLr.Unmarshal(lrIo.Marshal()))
	require.Equal(int32(0), gotLr.LabelRank)
	require.Equal([]int32{5, 7}, gotLr.FeatureNums)

	ecc := &EccProtocolResult{
		EcSuit:                  &EcSuit{Curve: 1, Hash: 1, Hash2CurveStrategy: 1},
		PointOctetFormat:        1,
		BitLengthAfterTruncated: -1,
	}
	gotEcc := new(EccProtocolResult)
	require.NoError(gotEcc.Unmarshal(ecc.Marshal()))
	require.Equal(int32(-1), gotEcc.BitLengthAfterTruncated)
	require.Equal(ecc.EcSuit, gotEcc.EcSuit)
}

func TestLrHyperparamsResultRoundTrip(t *testing.T) {
	require := require.New(t)

	result := &LrHyperparamsResult{
		Version:         1,
		NumEpoch:        3,
		BatchSize:       20,
		LastBatchPolicy: int32(LastBatchPolicy_LAST_BATCH_POLICY_DISCARD),
		L2Norm:          0.5,
		OptimizerName:   int32(Optimizer_OPTIMIZER_SGD),
		OptimizerParam:  PackAny("algos.SgdOptimizer", &SgdOptimizer{LearningRate: 0.0001}),
	}
	decoded := new(LrHyperparamsResult)
	require.NoError(decoded.Unmarshal(result.Marshal()))
	require.Equal(result.NumEpoch, decoded.NumEpoch)
	require.Equal(result.BatchSize, decoded.BatchSize)
	require.Equal(0.5, decoded.L2Norm)
	require.Zero(decoded.L0Norm)

	sgd := new(SgdOptimizer)
	require.NoError(UnpackAny(decoded.OptimizerParam, "algos.SgdOptimizer", sgd))
	require.Equal(0.0001, sgd.LearningRate)
}

func TestUnpackAnyRejectsWrongType(t *testing.T) {
	require := require.New(t)

	a := PackAny("algos.LrDataIoProposal", &LrDataIoProposal{SampleSize: 1})
	dst := new(PsiDataIoProposal)
	require.Error(UnpackAny(a, "algos.PsiDataIoProposal", dst))
	require.Error(UnpackAny(nil, "algos.PsiDataIoProposal", dst))
}

func TestUnmarshalTruncated(t *testing.T) {
	require := require.New(t)

	buf := (&HandshakeRequest{
		Version: 2,
		IoParam: PackAny("algos.PsiDataIoProposal", &PsiDataIoProposal{ItemNum: 7}),
	}).Marshal()
	req := new(HandshakeRequest)
	require.Error(req.Unmarshal(buf[:len(buf)-3]))
}
