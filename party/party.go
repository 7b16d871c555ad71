// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package party drives the handshake role state machine. Rank 0 is the
// aggregator: it collects one proposal per proposer, reduces them to a single
// result, and broadcasts it. Every other rank is a proposer: it sends its
// proposal and accepts or rejects the aggregator's result.
//
// There is no retry. A refusal is terminal and every party exits with the
// same wire code.
package party

import (
	"errors"
	"fmt"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/status"
	"github.com/luxfi/interconnect/transport"
)

// Handler is the algorithm-specific half of the handshake: the proposal,
// response, and validation rules layered on the state machine.
type Handler interface {
	// PrepareDataset loads the local dataset and fills the shape fields the
	// proposal needs (sample_size / item_num / own feature_num).
	PrepareDataset() error
	// BuildHandshakeRequest builds the local proposal envelope.
	BuildHandshakeRequest() *pb.HandshakeRequest
	// NegotiateHandshakeParams reduces all proposals to one result,
	// mutating the handler's context. Aggregator only.
	NegotiateHandshakeParams(requests []*pb.HandshakeRequest) *status.Status
	// BuildHandshakeResponse renders the negotiated result. Aggregator only,
	// after a successful negotiation.
	BuildHandshakeResponse() *pb.HandshakeResponse
	// ProcessHandshakeResponse verifies the result against the local
	// proposal and adopts the negotiated values. Proposer only.
	ProcessHandshakeResponse(resp *pb.HandshakeResponse) error
	// RunAlgo executes the negotiated computation.
	RunAlgo() error
}

// ErrRefused is wrapped into every error caused by a non-OK response code, so
// callers can distinguish refusals from transport failures.
var ErrRefused = errors.New("handshake refused")

const aggregatorRank = int32(0)

// Party binds a transport endpoint to the role its rank implies.
type Party struct {
	tr      transport.Transport
	log     log.Logger
	version int32

	// disableHandshake bypasses negotiation; local proposals are taken as
	// truth (the resolver supplies what the handshake would have found).
	disableHandshake bool
}

// New builds a Party. version is the local handshake version (>= 2).
func New(tr transport.Transport, logger log.Logger, version int32, disableHandshake bool) *Party {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Party{
		tr:               tr,
		log:              logger,
		version:          version,
		disableHandshake: disableHandshake,
	}
}

// Run drives the handshake to completion or refusal, then runs the
// algorithm. It is the only entry point; the role is chosen by rank.
func (p *Party) Run(h Handler) error {
	if err := h.PrepareDataset(); err != nil {
		return fmt.Errorf("prepare dataset: %w", err)
	}

	if !p.disableHandshake {
		var err error
		if p.tr.Rank() == aggregatorRank {
			err = p.passiveHandshake(h)
		} else {
			err = p.activeHandshake(h)
		}
		if err != nil {
			return err
		}
	}

	return h.RunAlgo()
}

// passiveHandshake is the aggregator side: collect, align versions,
// negotiate, broadcast.
func (p *Party) passiveHandshake(h Handler) error {
	raw, err := p.recvRequests()
	if err != nil {
		return err
	}

	requests, verr := p.parseAndAlignVersions(raw)
	if verr != nil {
		resp := &pb.HandshakeResponse{
			Header: pb.ErrHeader(pb.ErrorCode_HANDSHAKE_REFUSED, verr.Error()),
		}
		p.broadcastResponse(resp)
		return fmt.Errorf("%w: %s", ErrRefused, verr.Error())
	}

	resp := p.processRequests(h, requests)
	p.broadcastResponse(resp)

	if resp.Header.ErrorCode != pb.ErrorCode_OK {
		return fmt.Errorf("%w: %s: %s", ErrRefused, resp.Header.ErrorCode, resp.Header.ErrorMsg)
	}
	return nil
}

// activeHandshake is the proposer side: send, receive, verify.
func (p *Party) activeHandshake(h Handler) error {
	request := h.BuildHandshakeRequest()
	if err := p.tr.Send(aggregatorRank, transport.TagHandshake, request.Marshal()); err != nil {
		return fmt.Errorf("send handshake request: %w", err)
	}
	p.log.Info("sent handshake request",
		zap.Int32("rank", p.tr.Rank()),
		zap.Int32("version", request.Version),
	)

	buf, err := p.tr.Recv(aggregatorRank, transport.TagHandshakeResponse)
	if err != nil {
		return fmt.Errorf("recv handshake response: %w", err)
	}
	resp := new(pb.HandshakeResponse)
	if err := resp.Unmarshal(buf); err != nil {
		return fmt.Errorf("parse handshake response: %w", err)
	}
	if resp.Header == nil {
		return errors.New("handshake response has no header")
	}
	if resp.Header.ErrorCode != pb.ErrorCode_OK {
		p.log.Warn("handshake response carries error",
			zap.Stringer("errorCode", resp.Header.ErrorCode),
			zap.String("errorMsg", resp.Header.ErrorMsg),
		)
		return fmt.Errorf("%w: %s: %s", ErrRefused, resp.Header.ErrorCode, resp.Header.ErrorMsg)
	}

	if err := h.ProcessHandshakeResponse(resp); err != nil {
		return fmt.Errorf("process handshake response: %w", err)
	}
	p.log.Info("handshake negotiated", zap.Int32("rank", p.tr.Rank()))
	return nil
}

// recvRequests blocks on one request per proposer, in rank order 1..W-1.
func (p *Party) recvRequests() ([][]byte, error) {
	world := p.tr.WorldSize()
	raw := make([][]byte, 0, world-1)
	for src := int32(0); src < world; src++ {
		if src == p.tr.Rank() {
			continue
		}
		buf, err := p.tr.Recv(src, transport.TagHandshake)
		if err != nil {
			return nil, fmt.Errorf("recv handshake request from rank %d: %w", src, err)
		}
		raw = append(raw, buf)
	}
	return raw, nil
}

// parseAndAlignVersions sniffs every request's version, requires all of them
// (and the local version) to agree, and parses the v2 envelopes.
func (p *Party) parseAndAlignVersions(raw [][]byte) ([]*pb.HandshakeRequest, error) {
	requests := make([]*pb.HandshakeRequest, 0, len(raw))
	for _, buf := range raw {
		version, err := pb.SniffVersion(buf)
		if err != nil {
			return nil, errors.New("handshake versions inconsistent")
		}
		if version != p.version {
			p.log.Warn("handshake version mismatch",
				zap.Int32("local", p.version),
				zap.Int32("remote", version),
			)
			return nil, errors.New("handshake versions inconsistent")
		}
		req := new(pb.HandshakeRequest)
		if err := req.Unmarshal(buf); err != nil {
			return nil, errors.New("handshake versions inconsistent")
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// processRequests negotiates and renders the response. Negotiation failures
// never propagate as errors here: they become the response envelope.
func (p *Party) processRequests(h Handler, requests []*pb.HandshakeRequest) *pb.HandshakeResponse {
	if st := h.NegotiateHandshakeParams(requests); !st.OK() {
		p.log.Warn("negotiate handshake params failed",
			zap.Stringer("errorCode", st.Code),
			zap.String("errorMsg", st.Msg),
		)
		return &pb.HandshakeResponse{Header: pb.ErrHeader(st.Code, st.Msg)}
	}
	return h.BuildHandshakeResponse()
}

// broadcastResponse fans the response out to every proposer, fire-and-forget.
func (p *Party) broadcastResponse(resp *pb.HandshakeResponse) {
	buf := resp.Marshal()
	world := p.tr.WorldSize()
	for dst := int32(0); dst < world; dst++ {
		if dst == p.tr.Rank() {
			continue
		}
		if err := p.tr.SendAsync(dst, transport.TagHandshakeResponse, buf); err != nil {
			p.log.Warn("broadcast handshake response failed",
				zap.Int32("dst", dst),
				zap.Error(err),
			)
		}
	}
	p.log.Info("broadcast handshake response",
		zap.Stringer("errorCode", resp.Header.ErrorCode),
	)
}
