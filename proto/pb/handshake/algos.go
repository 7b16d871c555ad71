// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import "google.golang.org/protobuf/encoding/protowire"

// LrHyperparamsProposal enumerates what a party is willing to accept for the
// SS-LR hyperparameters.
type LrHyperparamsProposal struct {
	SupportedVersions []int32
	Optimizers        []int32
	LastBatchPolicies []int32
	UseL0Norm         bool
	UseL1Norm         bool
	UseL2Norm         bool
}

func (m *LrHyperparamsProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendPackedInt32s(b, 2, m.Optimizers)
	b = appendPackedInt32s(b, 3, m.LastBatchPolicies)
	b = appendBoolField(b, 4, m.UseL0Norm)
	b = appendBoolField(b, 5, m.UseL1Norm)
	b = appendBoolField(b, 6, m.UseL2Norm)
	return b
}

func (m *LrHyperparamsProposal) Unmarshal(b []byte) error {
	*m = LrHyperparamsProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.Optimizers, n, err = consumeRepeatedInt32(m.Optimizers, b, typ)
		case 3:
			m.LastBatchPolicies, n, err = consumeRepeatedInt32(m.LastBatchPolicies, b, typ)
		case 4:
			m.UseL0Norm, n, err = consumeBool(b)
		case 5:
			m.UseL1Norm, n, err = consumeBool(b)
		case 6:
			m.UseL2Norm, n, err = consumeBool(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// LrHyperparamsResult carries the single chosen value per hyperparameter.
// Penalty coefficients are present only for penalties still enabled.
type LrHyperparamsResult struct {
	Version         int32
	NumEpoch        int64
	BatchSize       int64
	LastBatchPolicy int32
	L0Norm          float64
	L1Norm          float64
	L2Norm          float64
	OptimizerName   int32
	OptimizerParam  *Any
}

func (m *LrHyperparamsResult) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Version)
	b = appendInt64Field(b, 2, m.NumEpoch)
	b = appendInt64Field(b, 3, m.BatchSize)
	b = appendInt32Field(b, 4, m.LastBatchPolicy)
	b = appendDoubleField(b, 5, m.L0Norm)
	b = appendDoubleField(b, 6, m.L1Norm)
	b = appendDoubleField(b, 7, m.L2Norm)
	b = appendInt32Field(b, 8, m.OptimizerName)
	b = appendMessageField(b, 9, m.OptimizerParam)
	return b
}

func (m *LrHyperparamsResult) Unmarshal(b []byte) error {
	*m = LrHyperparamsResult{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.Version, n, err = consumeInt32(b)
		case 2:
			m.NumEpoch, n, err = consumeInt64(b)
		case 3:
			m.BatchSize, n, err = consumeInt64(b)
		case 4:
			m.LastBatchPolicy, n, err = consumeInt32(b)
		case 5:
			m.L0Norm, n, err = consumeDouble(b)
		case 6:
			m.L1Norm, n, err = consumeDouble(b)
		case 7:
			m.L2Norm, n, err = consumeDouble(b)
		case 8:
			m.OptimizerName, n, err = consumeInt32(b)
		case 9:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.OptimizerParam = new(Any)
				err = m.OptimizerParam.Unmarshal(raw)
			}
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// SgdOptimizer is the only optimizer parameter shape with engine support.
type SgdOptimizer struct {
	LearningRate float64
}

func (m *SgdOptimizer) Marshal() []byte {
	var b []byte
	b = appendDoubleField(b, 1, m.LearningRate)
	return b
}

func (m *SgdOptimizer) Unmarshal(b []byte) error {
	*m = SgdOptimizer{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.LearningRate, n, err = consumeDouble(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// SigmoidParamsProposal lists supported sigmoid approximation modes.
type SigmoidParamsProposal struct {
	SupportedVersions []int32
	SigmoidModes      []int32
}

func (m *SigmoidParamsProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendPackedInt32s(b, 2, m.SigmoidModes)
	return b
}

func (m *SigmoidParamsProposal) Unmarshal(b []byte) error {
	*m = SigmoidParamsProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.SigmoidModes, n, err = consumeRepeatedInt32(m.SigmoidModes, b, typ)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// SigmoidParamsResult carries the chosen sigmoid mode.
type SigmoidParamsResult struct {
	SigmoidMode int32
}

func (m *SigmoidParamsResult) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.SigmoidMode)
	return b
}

func (m *SigmoidParamsResult) Unmarshal(b []byte) error {
	*m = SigmoidParamsResult{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SigmoidMode, n, err = consumeInt32(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// LrDataIoProposal describes a party's local dataset shape.
type LrDataIoProposal struct {
	SupportedVersions []int32
	SampleSize        int64
	FeatureNum        int32
	HasLabel          bool
}

func (m *LrDataIoProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendInt64Field(b, 2, m.SampleSize)
	b = appendInt32Field(b, 3, m.FeatureNum)
	b = appendBoolField(b, 4, m.HasLabel)
	return b
}

func (m *LrDataIoProposal) Unmarshal(b []byte) error {
	*m = LrDataIoProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.SampleSize, n, err = consumeInt64(b)
		case 3:
			m.FeatureNum, n, err = consumeInt32(b)
		case 4:
			m.HasLabel, n, err = consumeBool(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// LrDataIoResult carries the cohort-wide dataset layout.
type LrDataIoResult struct {
	Version     int32
	SampleSize  int64
	FeatureNums []int32
	LabelRank   int32
}

func (m *LrDataIoResult) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Version)
	b = appendInt64Field(b, 2, m.SampleSize)
	b = appendPackedInt32s(b, 3, m.FeatureNums)
	// label_rank may legitimately be 0 (rank 0 holds the label), so it is
	// emitted unconditionally with -1 as the wire value for "absent".
	b = appendVarintField(b, 4, uint64(int64(m.LabelRank)))
	return b
}

func (m *LrDataIoResult) Unmarshal(b []byte) error {
	*m = LrDataIoResult{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.Version, n, err = consumeInt32(b)
		case 2:
			m.SampleSize, n, err = consumeInt64(b)
		case 3:
			m.FeatureNums, n, err = consumeRepeatedInt32(m.FeatureNums, b, typ)
		case 4:
			m.LabelRank, n, err = consumeInt32(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// PsiDataIoProposal describes a party's PSI input shape. The aggregator's
// response reuses this shape with the final values.
type PsiDataIoProposal struct {
	SupportedVersions []int32
	ItemNum           int64
	ResultToRank      int32
}

func (m *PsiDataIoProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendInt64Field(b, 2, m.ItemNum)
	// result_to_rank -1 means broadcast and must survive the round trip.
	b = appendVarintField(b, 3, uint64(int64(m.ResultToRank)))
	return b
}

func (m *PsiDataIoProposal) Unmarshal(b []byte) error {
	*m = PsiDataIoProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.ItemNum, n, err = consumeInt64(b)
		case 3:
			m.ResultToRank, n, err = consumeInt32(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
