// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package psi

import (
	"errors"
	"fmt"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/interconnect/negotiate"
	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/status"
	"github.com/luxfi/interconnect/transport"
)

// ecSuit is the comparable composite the suite intersection runs on.
type ecSuit struct {
	curve, hash, strategy int32
}

// Handler is the ECDH-PSI negotiation strategy plus the engine shim.
type Handler struct {
	ctx *Context
	tr  transport.Transport
	log log.Logger

	items []string
}

// NewHandler binds a PSI context to a transport endpoint.
func NewHandler(ctx *Context, tr transport.Transport, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Handler{ctx: ctx, tr: tr, log: logger}
}

func extractReqEccParams(requests []*pb.HandshakeRequest) []*pb.EccProtocolProposal {
	return negotiate.ExtractParams(requests,
		func(r *pb.HandshakeRequest) []int32 { return r.ProtocolFamilies },
		func(r *pb.HandshakeRequest) []*pb.Any { return r.ProtocolFamilyParams },
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_ECC),
		func(a *pb.Any) (*pb.EccProtocolProposal, error) {
			p := new(pb.EccProtocolProposal)
			return p, pb.UnpackAny(a, "protocol.EccProtocolProposal", p)
		})
}

// PrepareDataset loads the CSV and records the item count.
func (h *Handler) PrepareDataset() error {
	items, err := readItems(h.ctx.InPath, h.ctx.FieldNames, h.ctx.PrecheckInput)
	if err != nil {
		return err
	}
	h.items = items
	h.ctx.ItemNum = int64(len(items))
	h.log.Info("dataset ready", zap.Int64("itemNum", h.ctx.ItemNum))
	return nil
}

// BuildHandshakeRequest renders the local proposal.
func (h *Handler) BuildHandshakeRequest() *pb.HandshakeRequest {
	request := &pb.HandshakeRequest{
		Version:        h.ctx.Version,
		RequesterRank:  h.tr.Rank(),
		SupportedAlgos: []int32{int32(h.ctx.Algo)},
	}

	request.ProtocolFamilies = append(request.ProtocolFamilies,
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_ECC))
	eccParam := &pb.EccProtocolProposal{
		SupportedVersions: []int32{1},
		EcSuits: []*pb.EcSuit{{
			Curve:              int32(h.ctx.CurveType),
			Hash:               int32(h.ctx.HashType),
			Hash2CurveStrategy: int32(h.ctx.Hash2CurveStrategy),
		}},
		PointOctetFormats:      []int32{int32(h.ctx.PointOctetFormat)},
		SupportPointTruncation: h.ctx.BitLengthAfterTruncated != -1,
	}
	request.ProtocolFamilyParams = append(request.ProtocolFamilyParams,
		pb.PackAny("protocol.EccProtocolProposal", eccParam))

	psiIo := &pb.PsiDataIoProposal{
		SupportedVersions: []int32{1},
		ItemNum:           h.ctx.ItemNum,
		ResultToRank:      h.ctx.ResultToRank,
	}
	request.IoParam = pb.PackAny("algos.PsiDataIoProposal", psiIo)

	return request
}

// NegotiateHandshakeParams reduces all proposals, first failure wins.
func (h *Handler) NegotiateHandshakeParams(requests []*pb.HandshakeRequest) *status.Status {
	if st := h.negotiateEccParams(requests); !st.OK() {
		return st
	}
	if st := h.negotiatePsiIoParams(requests); !st.OK() {
		return st
	}
	return nil
}

func (h *Handler) negotiateEccParams(requests []*pb.HandshakeRequest) *status.Status {
	eccParams := extractReqEccParams(requests)
	if len(eccParams) == 0 {
		return status.InvalidRequest("certain request has no ecc params")
	}

	suits := negotiate.IntersectNested(eccParams,
		func(p *pb.EccProtocolProposal) []*pb.EcSuit { return p.EcSuits },
		func(s *pb.EcSuit) ecSuit {
			return ecSuit{curve: s.Curve, hash: s.Hash, strategy: s.Hash2CurveStrategy}
		},
		nil)
	local := ecSuit{
		curve:    int32(h.ctx.CurveType),
		hash:     int32(h.ctx.HashType),
		strategy: int32(h.ctx.Hash2CurveStrategy),
	}
	if !suits.Contains(local) {
		return status.HandshakeRefused("negotiate ec suits failed")
	}

	formats := negotiate.IntersectField(eccParams,
		func(p *pb.EccProtocolProposal) []int32 { return p.PointOctetFormats })
	if !formats.Contains(int32(h.ctx.PointOctetFormat)) {
		return status.HandshakeRefused("negotiate point octet format failed")
	}

	// Truncation survives only if every party supports it.
	supported, ok := negotiate.AlignScalar(eccParams,
		func(p *pb.EccProtocolProposal) bool { return p.SupportPointTruncation })
	if !ok || !supported {
		h.ctx.BitLengthAfterTruncated = -1
	}

	return nil
}

func (h *Handler) negotiatePsiIoParams(requests []*pb.HandshakeRequest) *status.Status {
	ioParams := negotiate.ExtractIoParams(requests,
		func(r *pb.HandshakeRequest) *pb.Any { return r.IoParam },
		func(a *pb.Any) (*pb.PsiDataIoProposal, error) {
			p := new(pb.PsiDataIoProposal)
			return p, pb.UnpackAny(a, "algos.PsiDataIoProposal", p)
		})
	if len(ioParams) == 0 {
		return status.InvalidRequest("certain request has no psi io params")
	}

	// The local proposal joins the alignment set so the equality check is
	// verified symmetrically.
	ioParams = append(ioParams, &pb.PsiDataIoProposal{ResultToRank: h.ctx.ResultToRank})
	resultToRank, ok := negotiate.AlignScalar(ioParams,
		func(p *pb.PsiDataIoProposal) int32 { return p.ResultToRank })
	if !ok || resultToRank != h.ctx.ResultToRank {
		return status.HandshakeRefused("negotiate result_to_rank failed")
	}

	return nil
}

// BuildHandshakeResponse renders the negotiated result.
func (h *Handler) BuildHandshakeResponse() *pb.HandshakeResponse {
	response := &pb.HandshakeResponse{
		Header: pb.OkHeader(),
		Algo:   int32(pb.AlgoType_ALGO_TYPE_ECDH_PSI),
	}

	response.ProtocolFamilies = append(response.ProtocolFamilies,
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_ECC))
	eccParam := &pb.EccProtocolResult{
		EcSuit: &pb.EcSuit{
			Curve:              int32(h.ctx.CurveType),
			Hash:               int32(h.ctx.HashType),
			Hash2CurveStrategy: int32(h.ctx.Hash2CurveStrategy),
		},
		PointOctetFormat:        int32(h.ctx.PointOctetFormat),
		BitLengthAfterTruncated: h.ctx.BitLengthAfterTruncated,
	}
	response.ProtocolFamilyParams = append(response.ProtocolFamilyParams,
		pb.PackAny("protocol.EccProtocolResult", eccParam))

	psiIo := &pb.PsiDataIoProposal{
		ItemNum:      h.ctx.ItemNum,
		ResultToRank: h.ctx.ResultToRank,
	}
	response.IoParam = pb.PackAny("algos.PsiDataIoProposal", psiIo)

	return response
}

// ProcessHandshakeResponse verifies the result against the local proposal.
func (h *Handler) ProcessHandshakeResponse(response *pb.HandshakeResponse) error {
	if pb.AlgoType(response.Algo) != pb.AlgoType_ALGO_TYPE_ECDH_PSI {
		return fmt.Errorf("psi: response algo %d, want ECDH_PSI", response.Algo)
	}

	eccParams := negotiate.ExtractParams([]*pb.HandshakeResponse{response},
		func(r *pb.HandshakeResponse) []int32 { return r.ProtocolFamilies },
		func(r *pb.HandshakeResponse) []*pb.Any { return r.ProtocolFamilyParams },
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_ECC),
		func(a *pb.Any) (*pb.EccProtocolResult, error) {
			p := new(pb.EccProtocolResult)
			return p, pb.UnpackAny(a, "protocol.EccProtocolResult", p)
		})
	if len(eccParams) == 0 {
		return errors.New("psi: response has no ecc param")
	}
	eccParam := eccParams[0]
	if eccParam.EcSuit == nil ||
		pb.CurveType(eccParam.EcSuit.Curve) != h.ctx.CurveType ||
		pb.HashType(eccParam.EcSuit.Hash) != h.ctx.HashType ||
		pb.Hash2CurveStrategy(eccParam.EcSuit.Hash2CurveStrategy) != h.ctx.Hash2CurveStrategy {
		return errors.New("psi: response ec suit differs from proposal")
	}
	if pb.PointOctetFormat(eccParam.PointOctetFormat) != h.ctx.PointOctetFormat {
		return errors.New("psi: response point octet format differs from proposal")
	}
	if eccParam.BitLengthAfterTruncated != -1 && h.ctx.BitLengthAfterTruncated == -1 {
		return errors.New("psi: response enables point truncation the local proposal disabled")
	}
	h.ctx.BitLengthAfterTruncated = eccParam.BitLengthAfterTruncated

	ioParam := new(pb.PsiDataIoProposal)
	if err := pb.UnpackAny(response.IoParam, "algos.PsiDataIoProposal", ioParam); err != nil {
		return err
	}
	if ioParam.ResultToRank != h.ctx.ResultToRank {
		return errors.New("psi: response result_to_rank differs from proposal")
	}

	return nil
}

// RunAlgo executes the intersection with the agreed parameters.
func (h *Handler) RunAlgo() error {
	engine, err := newEcdhEngine(h.ctx, h.tr, h.log)
	if err != nil {
		return err
	}
	report, err := engine.Run(h.items)
	if err != nil {
		return fmt.Errorf("psi: run failed: %w", err)
	}
	h.log.Info("psi finished",
		zap.Int32("rank", h.tr.Rank()),
		zap.Int64("originalCount", report.OriginalCount),
		zap.Int64("intersectionCount", report.IntersectionCount),
	)
	return nil
}
