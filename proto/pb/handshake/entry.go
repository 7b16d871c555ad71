// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package handshake holds the org.interconnection.v2 handshake message set.
//
// The messages are maintained in generated form: every message carries a
// hand-kept Marshal/Unmarshal pair built on protowire, keeping the encoding
// byte-compatible with the proto3 definitions without a protoc step.
package handshake

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// VersionCheckHelper parses only the version field of either envelope
// generation, so the decoder can be chosen before a full parse.
type VersionCheckHelper struct {
	Version int32
}

func (m *VersionCheckHelper) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Version)
	return b
}

func (m *VersionCheckHelper) Unmarshal(b []byte) error {
	*m = VersionCheckHelper{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			if typ != protowire.VarintType {
				n, err = skipField(b, num, typ)
				break
			}
			m.Version, n, err = consumeInt32(b)
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

// SniffVersion extracts the envelope version from raw bytes.
// Version < 1 (or an unparsable buffer) is a fatal envelope error.
func SniffVersion(b []byte) (int32, error) {
	var helper VersionCheckHelper
	if err := helper.Unmarshal(b); err != nil {
		return 0, fmt.Errorf("handshake: version sniff: %w", err)
	}
	if helper.Version < 1 {
		return 0, fmt.Errorf("handshake: invalid request version %d", helper.Version)
	}
	return helper.Version, nil
}

// ResponseHeader carries the aggregator's verdict.
type ResponseHeader struct {
	ErrorCode ErrorCode
	ErrorMsg  string
}

func (m *ResponseHeader) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, int32(m.ErrorCode))
	b = appendStringField(b, 2, m.ErrorMsg)
	return b
}

func (m *ResponseHeader) Unmarshal(b []byte) error {
	*m = ResponseHeader{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			var v int32
			v, n, err = consumeInt32(b)
			m.ErrorCode = ErrorCode(v)
		case 2:
			m.ErrorMsg, n, err = consumeString(b)
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

// HandshakeRequest is the version >= 2 proposal envelope.
type HandshakeRequest struct {
	Version              int32
	RequesterRank        int32
	SupportedAlgos       []int32
	AlgoParams           []*Any
	Ops                  []int32
	OpParams             []*Any
	ProtocolFamilies     []int32
	ProtocolFamilyParams []*Any
	IoParam              *Any
}

func (m *HandshakeRequest) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Version)
	b = appendInt32Field(b, 2, m.RequesterRank)
	b = appendPackedInt32s(b, 3, m.SupportedAlgos)
	for _, p := range m.AlgoParams {
		b = appendMessageField(b, 4, p)
	}
	b = appendPackedInt32s(b, 5, m.Ops)
	for _, p := range m.OpParams {
		b = appendMessageField(b, 6, p)
	}
	b = appendPackedInt32s(b, 7, m.ProtocolFamilies)
	for _, p := range m.ProtocolFamilyParams {
		b = appendMessageField(b, 8, p)
	}
	b = appendMessageField(b, 9, m.IoParam)
	return b
}

func (m *HandshakeRequest) Unmarshal(b []byte) error {
	*m = HandshakeRequest{}
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
			m.RequesterRank, n, err = consumeInt32(b)
		case 3:
			m.SupportedAlgos, n, err = consumeRepeatedInt32(m.SupportedAlgos, b, typ)
		case 4:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				a := new(Any)
				err = a.Unmarshal(raw)
				m.AlgoParams = append(m.AlgoParams, a)
			}
		case 5:
			m.Ops, n, err = consumeRepeatedInt32(m.Ops, b, typ)
		case 6:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				a := new(Any)
				err = a.Unmarshal(raw)
				m.OpParams = append(m.OpParams, a)
			}
		case 7:
			m.ProtocolFamilies, n, err = consumeRepeatedInt32(m.ProtocolFamilies, b, typ)
		case 8:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				a := new(Any)
				err = a.Unmarshal(raw)
				m.ProtocolFamilyParams = append(m.ProtocolFamilyParams, a)
			}
		case 9:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.IoParam = new(Any)
				err = m.IoParam.Unmarshal(raw)
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

// HandshakeResponse is the aggregator's result envelope.
type HandshakeResponse struct {
	Header               *ResponseHeader
	Algo                 int32
	AlgoParam            *Any
	Ops                  []int32
	OpParams             []*Any
	ProtocolFamilies     []int32
	ProtocolFamilyParams []*Any
	IoParam              *Any
}

func (m *HandshakeResponse) Marshal() []byte {
	var b []byte
	b = appendMessageField(b, 1, m.Header)
	b = appendInt32Field(b, 2, m.Algo)
	b = appendMessageField(b, 3, m.AlgoParam)
	b = appendPackedInt32s(b, 4, m.Ops)
	for _, p := range m.OpParams {
		b = appendMessageField(b, 5, p)
	}
	b = appendPackedInt32s(b, 6, m.ProtocolFamilies)
	for _, p := range m.ProtocolFamilyParams {
		b = appendMessageField(b, 7, p)
	}
	b = appendMessageField(b, 8, m.IoParam)
	return b
}

func (m *HandshakeResponse) Unmarshal(b []byte) error {
	*m = HandshakeResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.Header = new(ResponseHeader)
				err = m.Header.Unmarshal(raw)
			}
		case 2:
			m.Algo, n, err = consumeInt32(b)
		case 3:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.AlgoParam = new(Any)
				err = m.AlgoParam.Unmarshal(raw)
			}
		case 4:
			m.Ops, n, err = consumeRepeatedInt32(m.Ops, b, typ)
		case 5:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				a := new(Any)
				err = a.Unmarshal(raw)
				m.OpParams = append(m.OpParams, a)
			}
		case 6:
			m.ProtocolFamilies, n, err = consumeRepeatedInt32(m.ProtocolFamilies, b, typ)
		case 7:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				a := new(Any)
				err = a.Unmarshal(raw)
				m.ProtocolFamilyParams = append(m.ProtocolFamilyParams, a)
			}
		case 8:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.IoParam = new(Any)
				err = m.IoParam.Unmarshal(raw)
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

// OkHeader builds a success header.
func OkHeader() *ResponseHeader {
	return &ResponseHeader{ErrorCode: ErrorCode_OK}
}

// ErrHeader builds a refusal header.
func ErrHeader(code ErrorCode, msg string) *ResponseHeader {
	return &ResponseHeader{ErrorCode: code, ErrorMsg: msg}
}
