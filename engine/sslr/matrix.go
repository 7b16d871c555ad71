// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sslr

import (
	"encoding/binary"
	"fmt"
)

// Matrix is a dense row-major matrix of ring elements. Elements are stored in
// the low bits of a uint64 and kept masked to the configured field width.
type Matrix struct {
	Rows, Cols int
	Data       []uint64
}

// NewMatrix allocates a zero matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]uint64, rows*cols)}
}

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) uint64 { return m.Data[i*m.Cols+j] }

// Set writes the element at (i, j).
func (m *Matrix) Set(i, j int, v uint64) { m.Data[i*m.Cols+j] = v }

// Clone deep-copies the matrix.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

// SliceRows returns rows [beg, end).
func (m *Matrix) SliceRows(beg, end int) *Matrix {
	out := NewMatrix(end-beg, m.Cols)
	copy(out.Data, m.Data[beg*m.Cols:end*m.Cols])
	return out
}

// marshalMatrix serializes dims and elements little-endian; the raw shard
// serialization format negotiated for the cohort.
func marshalMatrix(m *Matrix) []byte {
	buf := make([]byte, 16+8*len(m.Data))
	binary.LittleEndian.PutUint64(buf, uint64(m.Rows))
	binary.LittleEndian.PutUint64(buf[8:], uint64(m.Cols))
	for i, v := range m.Data {
		binary.LittleEndian.PutUint64(buf[16+8*i:], v)
	}
	return buf
}

func unmarshalMatrix(buf []byte) (*Matrix, error) {
	if len(buf) < 16 {
		return nil, fmt.Errorf("sslr: short share frame (%d bytes)", len(buf))
	}
	rows := int(binary.LittleEndian.Uint64(buf))
	cols := int(binary.LittleEndian.Uint64(buf[8:]))
	if rows < 0 || cols < 0 || len(buf) != 16+8*rows*cols {
		return nil, fmt.Errorf("sslr: share frame shape %dx%d does not match %d bytes", rows, cols, len(buf))
	}
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = binary.LittleEndian.Uint64(buf[16+8*i:])
	}
	return m, nil
}
