// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package psi implements the ECDH-PSI side of the handshake and the
// curve25519 intersection engine behind it.
package psi

import (
	"github.com/luxfi/interconnect/config"
	pb "github.com/luxfi/interconnect/proto/pb/handshake"
)

// Context is the PSI party state: suggested by the resolver, mutated only
// during the handshake, then read-only for the run.
type Context struct {
	CurveType               pb.CurveType
	HashType                pb.HashType
	Hash2CurveStrategy      pb.Hash2CurveStrategy
	PointOctetFormat        pb.PointOctetFormat
	BitLengthAfterTruncated int32

	ItemNum      int64
	ResultToRank int32

	InPath        string
	FieldNames    []string
	OutPath       string
	ShouldSort    bool
	PrecheckInput bool

	Algo             pb.AlgoType
	ProtocolFamilies []pb.ProtocolFamily
	Version          int32
}

// NewContext builds the suggested PSI context from the resolved config.
func NewContext(cfg *config.AppConfig) *Context {
	return &Context{
		CurveType:               cfg.PSI.CurveType,
		HashType:                cfg.PSI.HashType,
		Hash2CurveStrategy:      cfg.PSI.Hash2CurveStrategy,
		PointOctetFormat:        cfg.PSI.PointOctetFormat,
		BitLengthAfterTruncated: cfg.PSI.BitLengthAfterTruncated,
		ResultToRank:            cfg.PSI.ResultToRank,
		InPath:                  cfg.PSI.InPath,
		FieldNames:              cfg.PSI.FieldNames,
		OutPath:                 cfg.PSI.OutPath,
		ShouldSort:              cfg.PSI.ShouldSort,
		PrecheckInput:           cfg.PSI.PrecheckInput,
		Algo:                    cfg.Algo,
		ProtocolFamilies:        cfg.ProtocolFamilies,
		Version:                 cfg.Version,
	}
}
