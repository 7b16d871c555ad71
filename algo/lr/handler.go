// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lr

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

// Handler is the SS-LR negotiation strategy plus the training shim.
type Handler struct {
	ctx *Context
	tr  transport.Transport
	log log.Logger

	dataset [][]float64
}

// NewHandler binds an LR context to a transport endpoint.
func NewHandler(ctx *Context, tr transport.Transport, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Handler{ctx: ctx, tr: tr, log: logger}
}

func usePenaltyTerm(value float64) bool { return !negotiate.AlmostZero(value) }

// envelope getters for the generic extraction ops

func reqAlgoEnums(r *pb.HandshakeRequest) []int32   { return r.SupportedAlgos }
func reqAlgoBlobs(r *pb.HandshakeRequest) []*pb.Any { return r.AlgoParams }
func reqOpEnums(r *pb.HandshakeRequest) []int32     { return r.Ops }
func reqOpBlobs(r *pb.HandshakeRequest) []*pb.Any   { return r.OpParams }
func reqPfEnums(r *pb.HandshakeRequest) []int32     { return r.ProtocolFamilies }
func reqPfBlobs(r *pb.HandshakeRequest) []*pb.Any   { return r.ProtocolFamilyParams }

func decodeAs[P pb.Message](name string, alloc func() P) func(*pb.Any) (P, error) {
	return func(a *pb.Any) (P, error) {
		p := alloc()
		if err := pb.UnpackAny(a, name, p); err != nil {
			return p, err
		}
		return p, nil
	}
}

func extractReqLrParams(requests []*pb.HandshakeRequest) []*pb.LrHyperparamsProposal {
	return negotiate.ExtractParams(requests, reqAlgoEnums, reqAlgoBlobs,
		int32(pb.AlgoType_ALGO_TYPE_SS_LR),
		decodeAs("algos.LrHyperparamsProposal", func() *pb.LrHyperparamsProposal { return new(pb.LrHyperparamsProposal) }))
}

func extractReqSigmoidParams(requests []*pb.HandshakeRequest) []*pb.SigmoidParamsProposal {
	return negotiate.ExtractParams(requests, reqOpEnums, reqOpBlobs,
		int32(pb.OpType_OP_TYPE_SIGMOID),
		decodeAs("op.SigmoidParamsProposal", func() *pb.SigmoidParamsProposal { return new(pb.SigmoidParamsProposal) }))
}

func extractReqSsParams(requests []*pb.HandshakeRequest) []*pb.SSProtocolProposal {
	return negotiate.ExtractParams(requests, reqPfEnums, reqPfBlobs,
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_SS),
		decodeAs("protocol.SSProtocolProposal", func() *pb.SSProtocolProposal { return new(pb.SSProtocolProposal) }))
}

// PrepareDataset loads the CSV and records the local shape.
func (h *Handler) PrepareDataset() error {
	input, err := inputFileName(h.ctx.Dataset)
	if err != nil {
		return err
	}
	dataset, err := readDataset(input, h.ctx.SkipRows)
	if err != nil {
		return err
	}

	sampleSize := int64(len(dataset))
	if sampleSize <= 0 {
		return errors.New("lr: dataset is empty")
	}
	cols := len(dataset[0])
	for i, row := range dataset {
		if len(row) != cols {
			return fmt.Errorf("lr: dataset is ragged at row %d", i)
		}
	}
	featureNum := int32(cols)
	if h.ctx.HasLabel(h.tr.Rank()) {
		featureNum--
	}
	if featureNum <= 0 {
		return errors.New("lr: dataset has no feature columns")
	}

	h.dataset = dataset
	h.ctx.Io.SampleSize = sampleSize
	if int32(len(h.ctx.Io.FeatureNums)) != h.tr.WorldSize() {
		h.ctx.Io.FeatureNums = make([]int32, h.tr.WorldSize())
	}
	h.ctx.Io.FeatureNums[h.tr.Rank()] = featureNum

	h.log.Info("dataset ready",
		zap.Int64("sampleSize", sampleSize),
		zap.Int32("featureNum", featureNum),
		zap.Bool("hasLabel", h.ctx.HasLabel(h.tr.Rank())),
	)
	return nil
}

// BuildHandshakeRequest renders the local proposal.
func (h *Handler) BuildHandshakeRequest() *pb.HandshakeRequest {
	request := &pb.HandshakeRequest{
		Version:       h.ctx.Version,
		RequesterRank: h.tr.Rank(),
	}

	request.SupportedAlgos = append(request.SupportedAlgos, int32(h.ctx.Algo))
	lrParam := &pb.LrHyperparamsProposal{
		SupportedVersions: []int32{1},
		Optimizers:        []int32{int32(h.ctx.Optimizer.Kind)},
		LastBatchPolicies: []int32{int32(h.ctx.Hyper.LastBatchPolicy)},
		UseL0Norm:         usePenaltyTerm(h.ctx.Hyper.L0Norm),
		UseL1Norm:         usePenaltyTerm(h.ctx.Hyper.L1Norm),
		UseL2Norm:         usePenaltyTerm(h.ctx.Hyper.L2Norm),
	}
	request.AlgoParams = append(request.AlgoParams, pb.PackAny("algos.LrHyperparamsProposal", lrParam))

	request.Ops = append(request.Ops, int32(pb.OpType_OP_TYPE_SIGMOID))
	sigmoidParam := &pb.SigmoidParamsProposal{
		SupportedVersions: []int32{1},
		SigmoidModes:      []int32{int32(h.ctx.SigmoidMode)},
	}
	request.OpParams = append(request.OpParams, pb.PackAny("op.SigmoidParamsProposal", sigmoidParam))

	for _, family := range h.ctx.ProtocolFamilies {
		if family != pb.ProtocolFamily_PROTOCOL_FAMILY_SS {
			continue
		}
		request.ProtocolFamilies = append(request.ProtocolFamilies, int32(family))
		ssParam := &pb.SSProtocolProposal{
			SupportedVersions:     []int32{1},
			SupportedProtocols:    []int32{int32(h.ctx.Ss.Protocol)},
			FieldTypes:            []int32{int32(h.ctx.Ss.FieldType)},
			ShardSerializeFormats: []int32{int32(h.ctx.Ss.ShardSerializeFormat)},
			TruncModes: []*pb.TruncConfigProposal{{
				SupportedVersions: []int32{1},
				Method:            int32(h.ctx.Ss.TruncMode),
			}},
			PrgConfigs: []*pb.PrgConfigProposal{{
				SupportedVersions: []int32{1},
				CryptoType:        int32(pb.CryptoType_CRYPTO_TYPE_AES128_CTR),
			}},
			TripleConfigs: []*pb.TripleConfigProposal{{
				SupportedVersions: []int32{1},
				ServerVersion:     h.ctx.Ttp.ServerVersion,
			}},
		}
		request.ProtocolFamilyParams = append(request.ProtocolFamilyParams,
			pb.PackAny("protocol.SSProtocolProposal", ssParam))
	}

	lrIo := &pb.LrDataIoProposal{
		SupportedVersions: []int32{1},
		SampleSize:        h.ctx.Io.SampleSize,
		FeatureNum:        h.ctx.Io.FeatureNums[h.tr.Rank()],
		HasLabel:          h.ctx.HasLabel(h.tr.Rank()),
	}
	request.IoParam = pb.PackAny("algos.LrDataIoProposal", lrIo)

	return request
}

// NegotiateHandshakeParams reduces all proposals, first failure wins.
func (h *Handler) NegotiateHandshakeParams(requests []*pb.HandshakeRequest) *status.Status {
	if st := h.negotiateLrAlgoParams(requests); !st.OK() {
		return st
	}
	if st := h.negotiateOpParams(requests); !st.OK() {
		return st
	}
	if st := h.negotiateSsParams(requests); !st.OK() {
		return st
	}
	if st := h.negotiateLrIoParams(requests); !st.OK() {
		return st
	}
	return nil
}

func (h *Handler) negotiateLrAlgoParams(requests []*pb.HandshakeRequest) *status.Status {
	lrParams := extractReqLrParams(requests)
	if len(lrParams) == 0 {
		return status.InvalidRequest("certain request has no lr algo params")
	}

	optimizers := negotiate.IntersectField(lrParams,
		func(p *pb.LrHyperparamsProposal) []int32 { return p.Optimizers })
	if !optimizers.Contains(int32(h.ctx.Optimizer.Kind)) {
		return status.UnsupportedArgument("negotiate optimizer failed")
	}

	policies := negotiate.IntersectField(lrParams,
		func(p *pb.LrHyperparamsProposal) []int32 { return p.LastBatchPolicies })
	if !policies.Contains(int32(h.ctx.Hyper.LastBatchPolicy)) {
		return status.UnsupportedArgument("negotiate last batch policy failed")
	}

	h.negotiatePenaltyTerms(lrParams)
	return nil
}

// negotiatePenaltyTerms disables a penalty locally unless every proposer
// keeps it enabled.
func (h *Handler) negotiatePenaltyTerms(lrParams []*pb.LrHyperparamsProposal) {
	negotiateNorm := func(norm *float64, use func(*pb.LrHyperparamsProposal) bool) {
		aligned, ok := negotiate.AlignScalar(lrParams, use)
		if !ok || !aligned {
			*norm = 0.0
		}
	}
	negotiateNorm(&h.ctx.Hyper.L0Norm, func(p *pb.LrHyperparamsProposal) bool { return p.UseL0Norm })
	negotiateNorm(&h.ctx.Hyper.L1Norm, func(p *pb.LrHyperparamsProposal) bool { return p.UseL1Norm })
	negotiateNorm(&h.ctx.Hyper.L2Norm, func(p *pb.LrHyperparamsProposal) bool { return p.UseL2Norm })
}

func (h *Handler) negotiateOpParams(requests []*pb.HandshakeRequest) *status.Status {
	opParams := extractReqSigmoidParams(requests)
	if len(opParams) == 0 {
		return status.InvalidRequest("certain request has no op params")
	}

	modes := negotiate.IntersectField(opParams,
		func(p *pb.SigmoidParamsProposal) []int32 { return p.SigmoidModes })
	if !modes.Contains(int32(h.ctx.SigmoidMode)) {
		return status.UnsupportedArgument("negotiate sigmoid mode failed")
	}
	return nil
}

func (h *Handler) negotiateSsParams(requests []*pb.HandshakeRequest) *status.Status {
	ssParams := extractReqSsParams(requests)
	if len(ssParams) == 0 {
		return status.InvalidRequest("certain request has no ss params")
	}

	protocols := negotiate.IntersectField(ssParams,
		func(p *pb.SSProtocolProposal) []int32 { return p.SupportedProtocols })
	if !protocols.Contains(int32(h.ctx.Ss.Protocol)) {
		return status.UnsupportedArgument("negotiate ss protocol failed")
	}

	fields := negotiate.IntersectField(ssParams,
		func(p *pb.SSProtocolProposal) []int32 { return p.FieldTypes })
	if !fields.Contains(int32(h.ctx.Ss.FieldType)) {
		return status.UnsupportedArgument("negotiate field type failed")
	}

	formats := negotiate.IntersectField(ssParams,
		func(p *pb.SSProtocolProposal) []int32 { return p.ShardSerializeFormats })
	if !formats.Contains(int32(h.ctx.Ss.ShardSerializeFormat)) {
		return status.UnsupportedArgument("negotiate shard serialize format failed")
	}

	// A proposed truncation mode counts only if its compatible-protocols
	// list is empty or contains the locally chosen protocol.
	truncModes := negotiate.IntersectNested(ssParams,
		func(p *pb.SSProtocolProposal) []*pb.TruncConfigProposal { return p.TruncModes },
		func(t *pb.TruncConfigProposal) int32 { return t.Method },
		func(t *pb.TruncConfigProposal) bool {
			if len(t.CompatibleProtocols) == 0 {
				return true
			}
			for _, p := range t.CompatibleProtocols {
				if p == int32(h.ctx.Ss.Protocol) {
					return true
				}
			}
			return false
		})
	if !truncModes.Contains(int32(h.ctx.Ss.TruncMode)) {
		return status.UnsupportedArgument("negotiate trunc mode failed")
	}

	cryptoTypes := negotiate.IntersectNested(ssParams,
		func(p *pb.SSProtocolProposal) []*pb.PrgConfigProposal { return p.PrgConfigs },
		func(c *pb.PrgConfigProposal) int32 { return c.CryptoType },
		nil)
	if !cryptoTypes.Contains(int32(pb.CryptoType_CRYPTO_TYPE_AES128_CTR)) {
		return status.UnsupportedArgument("negotiate PRG config failed")
	}

	ttpVersions := negotiate.IntersectNested(ssParams,
		func(p *pb.SSProtocolProposal) []*pb.TripleConfigProposal { return p.TripleConfigs },
		func(c *pb.TripleConfigProposal) int32 { return c.ServerVersion },
		nil)
	if !ttpVersions.Contains(h.ctx.Ttp.ServerVersion) {
		return status.UnsupportedArgument("negotiate TTP config failed")
	}

	return nil
}

func (h *Handler) negotiateLrIoParams(requests []*pb.HandshakeRequest) *status.Status {
	world := h.tr.WorldSize()
	for _, request := range requests {
		ioParam := new(pb.LrDataIoProposal)
		if request.IoParam == nil ||
			pb.UnpackAny(request.IoParam, "algos.LrDataIoProposal", ioParam) != nil {
			return status.InvalidRequest("certain request has invalid io param")
		}

		if ioParam.SampleSize != h.ctx.Io.SampleSize {
			return status.HandshakeRefused("sample size inconsistent")
		}

		if ioParam.FeatureNum <= 0 {
			return status.InvalidRequest("certain request has invalid feature_num")
		}
		if request.RequesterRank < 0 || request.RequesterRank >= world {
			return status.InvalidRequest("certain request has invalid requester_rank")
		}
		h.ctx.Io.FeatureNums[request.RequesterRank] = ioParam.FeatureNum

		if ioParam.HasLabel {
			if h.ctx.Io.LabelRank != -1 {
				return status.HandshakeRefused("more than one party have label")
			}
			h.ctx.Io.LabelRank = request.RequesterRank
		}
	}

	if h.ctx.Io.LabelRank == -1 {
		return status.InvalidRequest("no party has label")
	}
	return nil
}

// BuildHandshakeResponse renders the negotiated result.
func (h *Handler) BuildHandshakeResponse() *pb.HandshakeResponse {
	response := &pb.HandshakeResponse{
		Header: pb.OkHeader(),
		Algo:   int32(pb.AlgoType_ALGO_TYPE_SS_LR),
	}

	lrParam := &pb.LrHyperparamsResult{
		Version:         1,
		NumEpoch:        h.ctx.Hyper.NumEpoch,
		BatchSize:       h.ctx.Hyper.BatchSize,
		LastBatchPolicy: int32(h.ctx.Hyper.LastBatchPolicy),
		OptimizerName:   int32(h.ctx.Optimizer.Kind),
		OptimizerParam:  pb.PackAny("algos.SgdOptimizer", h.ctx.Optimizer.Sgd),
	}
	if usePenaltyTerm(h.ctx.Hyper.L0Norm) {
		lrParam.L0Norm = h.ctx.Hyper.L0Norm
	}
	if usePenaltyTerm(h.ctx.Hyper.L1Norm) {
		lrParam.L1Norm = h.ctx.Hyper.L1Norm
	}
	if usePenaltyTerm(h.ctx.Hyper.L2Norm) {
		lrParam.L2Norm = h.ctx.Hyper.L2Norm
	}
	response.AlgoParam = pb.PackAny("algos.LrHyperparamsResult", lrParam)

	response.Ops = append(response.Ops, int32(pb.OpType_OP_TYPE_SIGMOID))
	response.OpParams = append(response.OpParams, pb.PackAny("op.SigmoidParamsResult",
		&pb.SigmoidParamsResult{SigmoidMode: int32(h.ctx.SigmoidMode)}))

	response.ProtocolFamilies = append(response.ProtocolFamilies,
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_SS))
	ssParam := &pb.SSProtocolResult{
		Protocol:             int32(h.ctx.Ss.Protocol),
		FieldType:            int32(h.ctx.Ss.FieldType),
		FxpFractionBits:      h.ctx.Ss.FxpBits,
		ShardSerializeFormat: int32(h.ctx.Ss.ShardSerializeFormat),
		TruncMode: &pb.TruncConfigResult{
			Version: 1,
			Method:  int32(h.ctx.Ss.TruncMode),
		},
		TripleConfig: &pb.TripleConfigResult{
			Version:    h.ctx.Ttp.ServerVersion,
			ServerHost: h.ctx.Ttp.ServerHost,
			SessionId:  h.ctx.Ttp.SessionID,
			AdjustRank: h.ctx.Ttp.AdjustRank,
		},
	}
	response.ProtocolFamilyParams = append(response.ProtocolFamilyParams,
		pb.PackAny("protocol.SSProtocolResult", ssParam))

	ioParam := &pb.LrDataIoResult{
		Version:     1,
		SampleSize:  h.ctx.Io.SampleSize,
		FeatureNums: append([]int32(nil), h.ctx.Io.FeatureNums...),
		LabelRank:   h.ctx.Io.LabelRank,
	}
	response.IoParam = pb.PackAny("algos.LrDataIoResult", ioParam)

	return response
}

// ProcessHandshakeResponse verifies the result against the local proposal
// and adopts the negotiated values.
func (h *Handler) ProcessHandshakeResponse(response *pb.HandshakeResponse) error {
	if pb.AlgoType(response.Algo) != pb.AlgoType_ALGO_TYPE_SS_LR {
		return fmt.Errorf("lr: response algo %d, want SS_LR", response.Algo)
	}

	lrParam := new(pb.LrHyperparamsResult)
	if err := pb.UnpackAny(response.AlgoParam, "algos.LrHyperparamsResult", lrParam); err != nil {
		return err
	}
	h.ctx.Hyper.NumEpoch = lrParam.NumEpoch
	h.ctx.Hyper.BatchSize = lrParam.BatchSize

	// An enabled penalty in the result must have been proposed; a disabled
	// one zeroes the local coefficient.
	if usePenaltyTerm(lrParam.L0Norm) && !usePenaltyTerm(h.ctx.Hyper.L0Norm) {
		return errors.New("lr: response enables l0 norm the local proposal disabled")
	}
	h.ctx.Hyper.L0Norm = lrParam.L0Norm
	if usePenaltyTerm(lrParam.L1Norm) && !usePenaltyTerm(h.ctx.Hyper.L1Norm) {
		return errors.New("lr: response enables l1 norm the local proposal disabled")
	}
	h.ctx.Hyper.L1Norm = lrParam.L1Norm
	if usePenaltyTerm(lrParam.L2Norm) && !usePenaltyTerm(h.ctx.Hyper.L2Norm) {
		return errors.New("lr: response enables l2 norm the local proposal disabled")
	}
	h.ctx.Hyper.L2Norm = lrParam.L2Norm

	if pb.Optimizer(lrParam.OptimizerName) != pb.Optimizer_OPTIMIZER_SGD {
		return fmt.Errorf("lr: response optimizer %d, only SGD is implemented", lrParam.OptimizerName)
	}
	sgd := new(pb.SgdOptimizer)
	if err := pb.UnpackAny(lrParam.OptimizerParam, "algos.SgdOptimizer", sgd); err != nil {
		return err
	}
	h.ctx.Optimizer.Sgd = sgd

	ioParam := new(pb.LrDataIoResult)
	if err := pb.UnpackAny(response.IoParam, "algos.LrDataIoResult", ioParam); err != nil {
		return err
	}
	if ioParam.SampleSize != h.ctx.Io.SampleSize {
		return errors.New("lr: response sample size differs from local dataset")
	}
	if len(ioParam.FeatureNums) != len(h.ctx.Io.FeatureNums) {
		return errors.New("lr: response feature_nums size differs from world size")
	}
	self := h.tr.Rank()
	for i, n := range ioParam.FeatureNums {
		if int32(i) == self {
			if h.ctx.Io.FeatureNums[i] != n {
				return errors.New("lr: response rewrites the local feature_num")
			}
			continue
		}
		h.ctx.Io.FeatureNums[i] = n
	}
	if ioParam.LabelRank == self && !h.ctx.HasLabel(self) {
		return errors.New("lr: response assigns the label to a party without one")
	}
	if h.ctx.HasLabel(self) && ioParam.LabelRank != self {
		return errors.New("lr: response moves the label away from its holder")
	}
	h.ctx.Io.LabelRank = ioParam.LabelRank

	sigmoidParam := negotiate.ExtractParams([]*pb.HandshakeResponse{response},
		func(r *pb.HandshakeResponse) []int32 { return r.Ops },
		func(r *pb.HandshakeResponse) []*pb.Any { return r.OpParams },
		int32(pb.OpType_OP_TYPE_SIGMOID),
		decodeAs("op.SigmoidParamsResult", func() *pb.SigmoidParamsResult { return new(pb.SigmoidParamsResult) }))
	if len(sigmoidParam) == 0 {
		return errors.New("lr: response has no sigmoid param")
	}
	if pb.SigmoidMode(sigmoidParam[0].SigmoidMode) != h.ctx.SigmoidMode {
		return errors.New("lr: response sigmoid mode differs from proposal")
	}

	ssParams := negotiate.ExtractParams([]*pb.HandshakeResponse{response},
		func(r *pb.HandshakeResponse) []int32 { return r.ProtocolFamilies },
		func(r *pb.HandshakeResponse) []*pb.Any { return r.ProtocolFamilyParams },
		int32(pb.ProtocolFamily_PROTOCOL_FAMILY_SS),
		decodeAs("protocol.SSProtocolResult", func() *pb.SSProtocolResult { return new(pb.SSProtocolResult) }))
	if len(ssParams) == 0 {
		return errors.New("lr: response has no ss param")
	}
	ssParam := ssParams[0]
	if pb.ProtocolKind(ssParam.Protocol) != h.ctx.Ss.Protocol {
		return errors.New("lr: response ss protocol differs from proposal")
	}
	if pb.FieldType(ssParam.FieldType) != h.ctx.Ss.FieldType {
		return errors.New("lr: response field type differs from proposal")
	}
	if ssParam.TruncMode == nil || pb.TruncMode(ssParam.TruncMode.Method) != h.ctx.Ss.TruncMode {
		return errors.New("lr: response trunc mode differs from proposal")
	}
	if pb.ShardSerializeFormat(ssParam.ShardSerializeFormat) != h.ctx.Ss.ShardSerializeFormat {
		return errors.New("lr: response shard serialize format differs from proposal")
	}
	h.ctx.Ss.FxpBits = ssParam.FxpFractionBits

	if ssParam.TripleConfig == nil || ssParam.TripleConfig.Version != h.ctx.Ttp.ServerVersion {
		return errors.New("lr: response TTP version differs from proposal")
	}
	h.ctx.Ttp.ServerHost = ssParam.TripleConfig.ServerHost
	h.ctx.Ttp.SessionID = ssParam.TripleConfig.SessionId
	h.ctx.Ttp.AdjustRank = ssParam.TripleConfig.AdjustRank

	h.log.Info("adopted negotiated lr params",
		zap.Int64("numEpoch", h.ctx.Hyper.NumEpoch),
		zap.Int64("batchSize", h.ctx.Hyper.BatchSize),
		zap.Int32("fxpBits", h.ctx.Ss.FxpBits),
		zap.Int32("labelRank", h.ctx.Io.LabelRank),
	)
	return nil
}
