// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sslr is the secret-shared arithmetic engine behind SS-LR training.
// Values are additively shared over Z_2^k with fixed-point encoding; secret
// products use beaver triples dealt by the adjust-rank party. The engine is
// deterministic per party: every rank must issue the same operation sequence.
package sslr

import (
	"crypto/rand"
	"fmt"

	"github.com/luxfi/log"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/transport"
)

// Transport tags owned by the engine.
const (
	tagOpen   = "SslrOpen"
	tagTriple = "SslrTriple"
)

// Config is the negotiated parameter set that drives the engine. It is built
// by the runtime shim from the handshake result and is read-only afterwards.
type Config struct {
	Protocol        pb.ProtocolKind
	FieldType       pb.FieldType
	FxpBits         int32
	TruncMode       pb.TruncMode
	ShardFormat     pb.ShardSerializeFormat
	LastBatchPolicy pb.LastBatchPolicy

	UseTTP     bool
	AdjustRank int32
}

// Engine executes ring arithmetic over a transport mesh.
type Engine struct {
	cfg  Config
	tr   transport.Transport
	log  log.Logger
	mask uint64
	sign uint64 // the field's sign bit
}

// New validates the negotiated configuration against the engine's support
// table and builds the engine.
func New(cfg Config, tr transport.Transport, logger log.Logger) (*Engine, error) {
	if cfg.Protocol != pb.ProtocolKind_PROTOCOL_KIND_SEMI2K {
		return nil, fmt.Errorf("sslr: protocol %s not implemented", cfg.Protocol)
	}
	bits := cfg.FieldType.Bits()
	if bits != 32 && bits != 64 {
		return nil, fmt.Errorf("sslr: field width %d not implemented", bits)
	}
	if cfg.TruncMode != pb.TruncMode_TRUNC_MODE_PROBABILISTIC {
		return nil, fmt.Errorf("sslr: truncation mode %d not implemented", cfg.TruncMode)
	}
	if cfg.ShardFormat != pb.ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_RAW {
		return nil, fmt.Errorf("sslr: shard serialize format %d not implemented", cfg.ShardFormat)
	}
	if cfg.LastBatchPolicy != pb.LastBatchPolicy_LAST_BATCH_POLICY_DISCARD {
		return nil, fmt.Errorf("sslr: last batch policy %d not implemented", cfg.LastBatchPolicy)
	}
	if cfg.UseTTP {
		return nil, fmt.Errorf("sslr: trusted third party beaver service not implemented")
	}
	if cfg.FxpBits <= 0 || int(cfg.FxpBits) >= bits-1 {
		return nil, fmt.Errorf("sslr: fxp bits %d out of range for field width %d", cfg.FxpBits, bits)
	}
	if cfg.AdjustRank < 0 || cfg.AdjustRank >= tr.WorldSize() {
		return nil, fmt.Errorf("sslr: adjust rank %d out of range", cfg.AdjustRank)
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}

	var mask uint64
	if bits == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << bits) - 1
	}
	return &Engine{
		cfg:  cfg,
		tr:   tr,
		log:  logger,
		mask: mask,
		sign: uint64(1) << (bits - 1),
	}, nil
}

// FxpBits returns the fixed-point fraction width.
func (e *Engine) FxpBits() int32 { return e.cfg.FxpBits }

// toSigned sign-extends a masked ring element into an int64.
func (e *Engine) toSigned(v uint64) int64 {
	v &= e.mask
	if v&e.sign != 0 {
		return int64(v | ^e.mask)
	}
	return int64(v)
}

// EncodeValue fixed-point encodes a float into the ring.
func (e *Engine) EncodeValue(f float64) uint64 {
	scaled := int64(f * float64(int64(1)<<e.cfg.FxpBits))
	return uint64(scaled) & e.mask
}

// DecodeValue decodes a ring element back into a float.
func (e *Engine) DecodeValue(v uint64) float64 {
	return float64(e.toSigned(v)) / float64(int64(1)<<e.cfg.FxpBits)
}

// Encode fixed-point encodes a plaintext matrix.
func (e *Engine) Encode(vals [][]float64) *Matrix {
	rows := len(vals)
	cols := 0
	if rows > 0 {
		cols = len(vals[0])
	}
	m := NewMatrix(rows, cols)
	for i, row := range vals {
		for j, f := range row {
			m.Set(i, j, e.EncodeValue(f))
		}
	}
	return m
}

// Decode reconstructs floats from an opened matrix.
func (e *Engine) Decode(m *Matrix) [][]float64 {
	out := make([][]float64, m.Rows)
	for i := range out {
		out[i] = make([]float64, m.Cols)
		for j := range out[i] {
			out[i][j] = e.DecodeValue(m.At(i, j))
		}
	}
	return out
}

// Add returns x + y on shares.
func (e *Engine) Add(x, y *Matrix) *Matrix {
	out := NewMatrix(x.Rows, x.Cols)
	for i := range out.Data {
		out.Data[i] = (x.Data[i] + y.Data[i]) & e.mask
	}
	return out
}

// Sub returns x - y on shares.
func (e *Engine) Sub(x, y *Matrix) *Matrix {
	out := NewMatrix(x.Rows, x.Cols)
	for i := range out.Data {
		out.Data[i] = (x.Data[i] - y.Data[i]) & e.mask
	}
	return out
}

// Transpose is share-local.
func (e *Engine) Transpose(x *Matrix) *Matrix {
	out := NewMatrix(x.Cols, x.Rows)
	for i := 0; i < x.Rows; i++ {
		for j := 0; j < x.Cols; j++ {
			out.Set(j, i, x.At(i, j))
		}
	}
	return out
}

// HConcat concatenates column blocks, share-local.
func (e *Engine) HConcat(blocks ...*Matrix) *Matrix {
	rows := blocks[0].Rows
	cols := 0
	for _, b := range blocks {
		cols += b.Cols
	}
	out := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		off := 0
		for _, b := range blocks {
			for j := 0; j < b.Cols; j++ {
				out.Set(i, off+j, b.At(i, j))
			}
			off += b.Cols
		}
	}
	return out
}

// PublicColumn builds a shared column whose plaintext is the given constant:
// the adjust-rank party carries the encoded value, everyone else zeros.
func (e *Engine) PublicColumn(rows int, value float64) *Matrix {
	out := NewMatrix(rows, 1)
	if e.tr.Rank() == e.cfg.AdjustRank {
		v := e.EncodeValue(value)
		for i := 0; i < rows; i++ {
			out.Set(i, 0, v)
		}
	}
	return out
}

// AddPublic adds a public constant to every element of a shared matrix.
func (e *Engine) AddPublic(x *Matrix, value float64) *Matrix {
	out := x.Clone()
	if e.tr.Rank() == e.cfg.AdjustRank {
		v := e.EncodeValue(value)
		for i := range out.Data {
			out.Data[i] = (out.Data[i] + v) & e.mask
		}
	}
	return out
}

// MulPublic scales a shared matrix by a public constant, truncating once to
// restore the fixed-point scale.
func (e *Engine) MulPublic(x *Matrix, value float64) *Matrix {
	c := e.EncodeValue(value)
	out := NewMatrix(x.Rows, x.Cols)
	for i := range out.Data {
		out.Data[i] = (x.Data[i] * c) & e.mask
	}
	return e.Trunc(out)
}

// Trunc rescales after a fixed-point product. Probabilistic mode: every
// party shifts its own share, accepting a small-probability MSB error.
func (e *Engine) Trunc(x *Matrix) *Matrix {
	out := NewMatrix(x.Rows, x.Cols)
	f := uint(e.cfg.FxpBits)
	for i := range out.Data {
		s := e.toSigned(x.Data[i])
		if e.tr.Rank() == e.cfg.AdjustRank {
			out.Data[i] = uint64(s>>f) & e.mask
		} else {
			out.Data[i] = uint64(-((-s) >> f)) & e.mask
		}
	}
	return out
}

// Open reconstructs a shared matrix by exchanging shares all-to-all.
func (e *Engine) Open(x *Matrix) (*Matrix, error) {
	buf := marshalMatrix(x)
	world := e.tr.WorldSize()
	self := e.tr.Rank()
	for dst := int32(0); dst < world; dst++ {
		if dst == self {
			continue
		}
		if err := e.tr.SendAsync(dst, tagOpen, buf); err != nil {
			return nil, fmt.Errorf("sslr: open send: %w", err)
		}
	}
	sum := x.Clone()
	for src := int32(0); src < world; src++ {
		if src == self {
			continue
		}
		raw, err := e.tr.Recv(src, tagOpen)
		if err != nil {
			return nil, fmt.Errorf("sslr: open recv from rank %d: %w", src, err)
		}
		share, err := unmarshalMatrix(raw)
		if err != nil {
			return nil, err
		}
		if share.Rows != sum.Rows || share.Cols != sum.Cols {
			return nil, fmt.Errorf("sslr: open shape mismatch from rank %d", src)
		}
		for i := range sum.Data {
			sum.Data[i] = (sum.Data[i] + share.Data[i]) & e.mask
		}
	}
	return sum, nil
}

// Reveal opens and decodes.
func (e *Engine) Reveal(x *Matrix) ([][]float64, error) {
	opened, err := e.Open(x)
	if err != nil {
		return nil, err
	}
	return e.Decode(opened), nil
}

// randomMatrix samples a uniform ring matrix from crypto/rand.
func (e *Engine) randomMatrix(rows, cols int) (*Matrix, error) {
	raw := make([]byte, 8*rows*cols)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("sslr: sample randomness: %w", err)
	}
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		var v uint64
		for b := 0; b < 8; b++ {
			v = v<<8 | uint64(raw[8*i+b])
		}
		m.Data[i] = v & e.mask
	}
	return m, nil
}

// ringMatMul is a plaintext ring matmul used on shares and opened values.
func (e *Engine) ringMatMul(a, b *Matrix) *Matrix {
	out := NewMatrix(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		for k := 0; k < a.Cols; k++ {
			av := a.At(i, k)
			if av == 0 {
				continue
			}
			for j := 0; j < b.Cols; j++ {
				out.Data[i*out.Cols+j] = (out.Data[i*out.Cols+j] + av*b.At(k, j)) & e.mask
			}
		}
	}
	return out
}

// beaverTriple is one dealt matmul triple: c = a·b on the ring.
type beaverTriple struct {
	a, b, c *Matrix
}

// dealTriple distributes additive shares of a random (A, B, C=A·B) for the
// given shapes. The adjust-rank party deals; this is the trusted-first-party
// mode the engine runs when no TTP service is configured.
func (e *Engine) dealTriple(m, k, n int) (*beaverTriple, error) {
	world := e.tr.WorldSize()
	self := e.tr.Rank()
	dealer := e.cfg.AdjustRank

	if self != dealer {
		raw, err := e.tr.Recv(dealer, tagTriple)
		if err != nil {
			return nil, fmt.Errorf("sslr: recv triple: %w", err)
		}
		return unmarshalTriple(raw)
	}

	a, err := e.randomMatrix(m, k)
	if err != nil {
		return nil, err
	}
	b, err := e.randomMatrix(k, n)
	if err != nil {
		return nil, err
	}
	c := e.ringMatMul(a, b)

	// Split each matrix into world additive shares; the dealer keeps the
	// residual share.
	own := &beaverTriple{a: a.Clone(), b: b.Clone(), c: c.Clone()}
	for dst := int32(0); dst < world; dst++ {
		if dst == dealer {
			continue
		}
		sa, err := e.randomMatrix(m, k)
		if err != nil {
			return nil, err
		}
		sb, err := e.randomMatrix(k, n)
		if err != nil {
			return nil, err
		}
		sc, err := e.randomMatrix(m, n)
		if err != nil {
			return nil, err
		}
		if err := e.tr.Send(dst, tagTriple, marshalTriple(&beaverTriple{a: sa, b: sb, c: sc})); err != nil {
			return nil, fmt.Errorf("sslr: send triple: %w", err)
		}
		own.a = e.Sub(own.a, sa)
		own.b = e.Sub(own.b, sb)
		own.c = e.Sub(own.c, sc)
	}
	return own, nil
}

func marshalTriple(t *beaverTriple) []byte {
	var buf []byte
	for _, m := range []*Matrix{t.a, t.b, t.c} {
		part := marshalMatrix(m)
		head := make([]byte, 8)
		for i, b := 0, uint64(len(part)); i < 8; i++ {
			head[i] = byte(b >> (8 * i))
		}
		buf = append(buf, head...)
		buf = append(buf, part...)
	}
	return buf
}

func unmarshalTriple(buf []byte) (*beaverTriple, error) {
	parts := make([]*Matrix, 0, 3)
	for len(buf) > 0 {
		if len(buf) < 8 {
			return nil, fmt.Errorf("sslr: short triple frame")
		}
		var size uint64
		for i := 0; i < 8; i++ {
			size |= uint64(buf[i]) << (8 * i)
		}
		buf = buf[8:]
		if uint64(len(buf)) < size {
			return nil, fmt.Errorf("sslr: short triple frame")
		}
		m, err := unmarshalMatrix(buf[:size])
		if err != nil {
			return nil, err
		}
		parts = append(parts, m)
		buf = buf[size:]
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("sslr: triple frame has %d parts", len(parts))
	}
	return &beaverTriple{a: parts[0], b: parts[1], c: parts[2]}, nil
}

// MatMul multiplies two shared matrices with a beaver triple and truncates
// back to the fixed-point scale.
func (e *Engine) MatMul(x, y *Matrix) (*Matrix, error) {
	if x.Cols != y.Rows {
		return nil, fmt.Errorf("sslr: matmul shape (%dx%d)x(%dx%d)", x.Rows, x.Cols, y.Rows, y.Cols)
	}
	triple, err := e.dealTriple(x.Rows, x.Cols, y.Cols)
	if err != nil {
		return nil, err
	}

	eOpen, err := e.Open(e.Sub(x, triple.a))
	if err != nil {
		return nil, err
	}
	fOpen, err := e.Open(e.Sub(y, triple.b))
	if err != nil {
		return nil, err
	}

	// z = c + E·b + a·F (+ E·F once, on the dealer).
	z := e.Add(triple.c, e.ringMatMul(eOpen, triple.b))
	z = e.Add(z, e.ringMatMul(triple.a, fOpen))
	if e.tr.Rank() == e.cfg.AdjustRank {
		z = e.Add(z, e.ringMatMul(eOpen, fOpen))
	}
	return e.Trunc(z), nil
}

// Sigmoid applies the negotiated approximation on shares. Only the degree-1
// minimax form 0.5 + 0.125x is supported.
func (e *Engine) Sigmoid(mode pb.SigmoidMode, x *Matrix) (*Matrix, error) {
	if mode != pb.SigmoidMode_SIGMOID_MODE_MINIMAX_1 {
		return nil, fmt.Errorf("sslr: sigmoid mode %d not implemented", mode)
	}
	return e.AddPublic(e.MulPublic(x, 0.125), 0.5), nil
}
