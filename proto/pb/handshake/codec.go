// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is the common surface of every wire message in this package.
type Message interface {
	Marshal() []byte
	Unmarshal(b []byte) error
}

var errTruncated = errors.New("handshake: truncated message")

func parseErr(n int) error {
	if err := protowire.ParseError(n); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	return errTruncated
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendInt32Field sign-extends negatives to 64 bits, matching proto3 int32.
func appendInt32Field(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	return appendVarintField(b, num, uint64(int64(v)))
}

func appendInt64Field(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	return appendVarintField(b, num, uint64(v))
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarintField(b, num, 1)
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendPackedInt32s emits a proto3 packed repeated int32 field.
func appendPackedInt32s(b []byte, num protowire.Number, vals []int32) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendMessageField(b []byte, num protowire.Number, m Message) []byte {
	if m == nil {
		return b
	}
	if v := reflect.ValueOf(m); v.Kind() == reflect.Ptr && v.IsNil() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.Marshal())
}

func consumeInt32(b []byte) (int32, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, parseErr(n)
	}
	return int32(uint32(v)), n, nil
}

func consumeInt64(b []byte) (int64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, parseErr(n)
	}
	return int64(v), n, nil
}

func consumeBool(b []byte) (bool, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return false, 0, parseErr(n)
	}
	return v != 0, n, nil
}

func consumeDouble(b []byte) (float64, int, error) {
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, parseErr(n)
	}
	return math.Float64frombits(v), n, nil
}

func consumeString(b []byte) (string, int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, parseErr(n)
	}
	return v, n, nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, parseErr(n)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

// consumeRepeatedInt32 accepts both packed and unpacked encodings.
func consumeRepeatedInt32(dst []int32, b []byte, typ protowire.Type) ([]int32, int, error) {
	if typ == protowire.VarintType {
		v, n, err := consumeInt32(b)
		if err != nil {
			return dst, 0, err
		}
		return append(dst, v), n, nil
	}
	packed, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return dst, 0, parseErr(n)
	}
	for len(packed) > 0 {
		v, m, err := consumeInt32(packed)
		if err != nil {
			return dst, 0, err
		}
		dst = append(dst, v)
		packed = packed[m:]
	}
	return dst, n, nil
}

func skipField(b []byte, num protowire.Number, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, parseErr(n)
	}
	return n, nil
}
