// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lr implements the SS-LR side of the handshake: the proposal,
// negotiation and acceptance rules, and the training loop driven through the
// secret-shared engine.
package lr

import (
	"fmt"

	"github.com/luxfi/interconnect/config"
	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/transport"
)

// HyperParam holds the LR hyperparameters under negotiation.
type HyperParam struct {
	NumEpoch        int64
	BatchSize       int64
	LastBatchPolicy pb.LastBatchPolicy
	L0Norm          float64
	L1Norm          float64
	L2Norm          float64
}

// IoParam holds the cohort dataset layout. FeatureNums is indexed by rank.
type IoParam struct {
	SampleSize  int64
	FeatureNums []int32
	LabelRank   int32
}

// SsParam holds the secret-sharing stack under negotiation.
type SsParam struct {
	Protocol             pb.ProtocolKind
	FieldType            pb.FieldType
	FxpBits              int32
	TruncMode            pb.TruncMode
	ShardSerializeFormat pb.ShardSerializeFormat
}

// Context is the LR party state: suggested by the resolver, mutated only
// during the handshake, then read-only for the training run.
type Context struct {
	Hyper       HyperParam
	Io          IoParam
	SigmoidMode pb.SigmoidMode
	Ss          SsParam
	Ttp         config.TtpConfig
	Optimizer   Optimizer

	Algo             pb.AlgoType
	ProtocolFamilies []pb.ProtocolFamily
	Version          int32

	Dataset  string
	SkipRows int32
	Output   string

	// hasLabelFlag is the local --has_label suggestion; the negotiated truth
	// lives in Io.LabelRank.
	hasLabelFlag bool
}

// HasLabel reports whether the given rank holds the label column.
func (c *Context) HasLabel(rank int32) bool {
	return c.Io.LabelRank == rank
}

// NewContext builds the suggested LR context from the resolved config.
func NewContext(cfg *config.AppConfig, world int32) (*Context, error) {
	ctx := &Context{
		Hyper: HyperParam{
			NumEpoch:        cfg.LR.NumEpoch,
			BatchSize:       cfg.LR.BatchSize,
			LastBatchPolicy: cfg.LR.LastBatchPolicy,
			L0Norm:          cfg.LR.L0Norm,
			L1Norm:          cfg.LR.L1Norm,
			L2Norm:          cfg.LR.L2Norm,
		},
		SigmoidMode: cfg.LR.SigmoidMode,
		Ss: SsParam{
			Protocol:             cfg.LR.SS.Protocol,
			FieldType:            cfg.LR.SS.FieldType,
			FxpBits:              cfg.LR.SS.FxpBits,
			TruncMode:            cfg.LR.SS.TruncMode,
			ShardSerializeFormat: cfg.LR.SS.ShardSerializeFormat,
		},
		Ttp:              cfg.LR.SS.TTP,
		Algo:             cfg.Algo,
		ProtocolFamilies: cfg.ProtocolFamilies,
		Version:          cfg.Version,
		Dataset:          cfg.LR.Dataset,
		SkipRows:         cfg.LR.SkipRows,
		Output:           cfg.LR.Output,
		hasLabelFlag:     cfg.LR.HasLabel,
	}

	optimizer, err := NewOptimizer(cfg.LR.Optimizer, cfg.LR.LearningRate)
	if err != nil {
		return nil, err
	}
	ctx.Optimizer = optimizer

	labelRank, err := suggestedLabelRank(cfg, world)
	if err != nil {
		return nil, err
	}
	ctx.Io.LabelRank = labelRank

	featureNums, err := suggestedFeatureNums(cfg, world)
	if err != nil {
		return nil, err
	}
	ctx.Io.FeatureNums = featureNums

	return ctx, nil
}

// suggestedLabelRank mirrors the handshake-disabled escape hatch: without a
// handshake the label owner comes from the environment.
func suggestedLabelRank(cfg *config.AppConfig, world int32) (int32, error) {
	if !cfg.DisableHandshake {
		if cfg.LR.HasLabel {
			return cfg.Rank, nil
		}
		return -1, nil
	}

	owner, ok := config.LabelOwnerFromEnv()
	if !ok {
		return -1, fmt.Errorf("lr: label_owner not in env")
	}
	for rank := int32(0); rank < world; rank++ {
		if transport.PartyID(rank) == owner {
			return rank, nil
		}
	}
	return -1, fmt.Errorf("lr: label owner %q is not a cohort member", owner)
}

// suggestedFeatureNums is empty when the handshake will discover the layout,
// and env-supplied when the handshake is disabled.
func suggestedFeatureNums(cfg *config.AppConfig, world int32) ([]int32, error) {
	if !cfg.DisableHandshake {
		return nil, nil
	}
	byParty, err := config.FeatureNumsFromEnv()
	if err != nil {
		return nil, err
	}
	nums := make([]int32, world)
	for rank := int32(0); rank < world; rank++ {
		n, ok := byParty[transport.PartyID(rank)]
		if !ok {
			return nil, fmt.Errorf("lr: feature_nums has no entry for %s", transport.PartyID(rank))
		}
		nums[rank] = n
	}
	return nums, nil
}
