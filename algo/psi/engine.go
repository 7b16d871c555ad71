// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package psi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/luxfi/log"
	"golang.org/x/crypto/curve25519"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/transport"
)

// Transport tags owned by the engine.
const (
	tagMask = "EcdhPsi_mask"
	tagDual = "EcdhPsi_dual"
)

const pointSize = 32

// Report summarizes one PSI run.
type Report struct {
	OriginalCount     int64
	IntersectionCount int64
}

// ecdhEngine is a two-party ECDH-PSI on curve25519 u-coordinates with the
// direct-hash-as-point-x mapping: SHA-256 of the item is taken as the point.
type ecdhEngine struct {
	ctx *Context
	tr  transport.Transport
	log log.Logger

	broadcastResult bool
	receiverRank    int32
}

// newEcdhEngine validates the agreed parameters against the engine's support
// table, mirroring the curve/hash/strategy combinations the runtime accepts.
func newEcdhEngine(ctx *Context, tr transport.Transport, logger log.Logger) (*ecdhEngine, error) {
	if tr.WorldSize() != 2 {
		return nil, fmt.Errorf("psi: world size %d, ECDH-PSI is two-party", tr.WorldSize())
	}
	switch ctx.CurveType {
	case pb.CurveType_CURVE_TYPE_CURVE25519:
		if ctx.HashType != pb.HashType_HASH_TYPE_SHA_256 {
			return nil, fmt.Errorf("psi: curve25519 requires sha256 hash")
		}
		if ctx.Hash2CurveStrategy != pb.Hash2CurveStrategy_HASH_TO_CURVE_STRATEGY_DIRECT_HASH_AS_POINT_X {
			return nil, fmt.Errorf("psi: curve25519 requires direct_hash_as_point_x strategy")
		}
	case pb.CurveType_CURVE_TYPE_SM2:
		return nil, fmt.Errorf("psi: sm2 curve not implemented")
	default:
		return nil, fmt.Errorf("psi: unspecified curve type %d", ctx.CurveType)
	}
	if ctx.PointOctetFormat != pb.PointOctetFormat_POINT_OCTET_FORMAT_UNCOMPRESSED {
		return nil, fmt.Errorf("psi: point octet format %d not implemented", ctx.PointOctetFormat)
	}

	e := &ecdhEngine{ctx: ctx, tr: tr, log: logger}
	if ctx.ResultToRank == -1 {
		e.broadcastResult = true
	} else {
		e.receiverRank = ctx.ResultToRank
	}
	return e, nil
}

// hashToPoint maps an item onto a curve25519 u-coordinate.
func hashToPoint(item string) []byte {
	sum := sha256.Sum256([]byte(item))
	return sum[:]
}

// mask applies the scalar to every point, in place order.
func mask(scalar []byte, points [][]byte) ([][]byte, error) {
	out := make([][]byte, len(points))
	for i, p := range points {
		m, err := curve25519.X25519(scalar, p)
		if err != nil {
			return nil, fmt.Errorf("psi: scalar mult: %w", err)
		}
		out[i] = m
	}
	return out, nil
}

func packPoints(points [][]byte) []byte {
	buf := make([]byte, 8, 8+pointSize*len(points))
	binary.LittleEndian.PutUint64(buf, uint64(len(points)))
	for _, p := range points {
		buf = append(buf, p...)
	}
	return buf
}

func unpackPoints(buf []byte) ([][]byte, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("psi: short point frame")
	}
	count := binary.LittleEndian.Uint64(buf)
	buf = buf[8:]
	if uint64(len(buf)) != count*pointSize {
		return nil, fmt.Errorf("psi: point frame size mismatch")
	}
	points := make([][]byte, count)
	for i := range points {
		points[i] = buf[pointSize*i : pointSize*(i+1)]
	}
	return points, nil
}

// Run executes the double-masking exchange and writes the output CSV on the
// receiving rank(s).
func (e *ecdhEngine) Run(items []string) (*Report, error) {
	peer := int32(1) - e.tr.Rank()

	scalar := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(scalar); err != nil {
		return nil, fmt.Errorf("psi: sample scalar: %w", err)
	}

	points := make([][]byte, len(items))
	for i, item := range items {
		points[i] = hashToPoint(item)
	}
	masked, err := mask(scalar, points)
	if err != nil {
		return nil, err
	}

	// Exchange single-masked sets, then return the peer's set double-masked.
	if err := e.tr.SendAsync(peer, tagMask, packPoints(masked)); err != nil {
		return nil, err
	}
	peerMaskedBuf, err := e.tr.Recv(peer, tagMask)
	if err != nil {
		return nil, err
	}
	peerMasked, err := unpackPoints(peerMaskedBuf)
	if err != nil {
		return nil, err
	}
	peerDual, err := mask(scalar, peerMasked)
	if err != nil {
		return nil, err
	}
	if err := e.tr.SendAsync(peer, tagDual, packPoints(peerDual)); err != nil {
		return nil, err
	}
	selfDualBuf, err := e.tr.Recv(peer, tagDual)
	if err != nil {
		return nil, err
	}
	selfDual, err := unpackPoints(selfDualBuf)
	if err != nil {
		return nil, err
	}
	if len(selfDual) != len(items) {
		return nil, fmt.Errorf("psi: dual-masked set size %d, want %d", len(selfDual), len(items))
	}

	// Both double-masked sets equal H(x)^(ab); match locally.
	peerSet := make(map[string]struct{}, len(peerDual))
	for _, p := range peerDual {
		peerSet[string(p)] = struct{}{}
	}
	var matched []string
	for i, p := range selfDual {
		if _, ok := peerSet[string(p)]; ok {
			matched = append(matched, items[i])
		}
	}

	report := &Report{
		OriginalCount:     int64(len(items)),
		IntersectionCount: int64(len(matched)),
	}

	if e.broadcastResult || e.receiverRank == e.tr.Rank() {
		if e.ctx.ShouldSort {
			sort.Strings(matched)
		}
		if err := writeItems(e.ctx.OutPath, e.ctx.FieldNames, matched); err != nil {
			return nil, err
		}
	}
	return report, nil
}
