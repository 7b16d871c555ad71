// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import "google.golang.org/protobuf/encoding/protowire"

// TruncConfigProposal wraps a truncation mode with the protocols it applies
// to. An empty CompatibleProtocols list means the mode applies to all.
type TruncConfigProposal struct {
	SupportedVersions   []int32
	Method              int32
	CompatibleProtocols []int32
}

func (m *TruncConfigProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendInt32Field(b, 2, m.Method)
	b = appendPackedInt32s(b, 3, m.CompatibleProtocols)
	return b
}

func (m *TruncConfigProposal) Unmarshal(b []byte) error {
	*m = TruncConfigProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.Method, n, err = consumeInt32(b)
		case 3:
			m.CompatibleProtocols, n, err = consumeRepeatedInt32(m.CompatibleProtocols, b, typ)
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

// TruncConfigResult carries the chosen truncation mode.
type TruncConfigResult struct {
	Version int32
	Method  int32
}

func (m *TruncConfigResult) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Version)
	b = appendInt32Field(b, 2, m.Method)
	return b
}

func (m *TruncConfigResult) Unmarshal(b []byte) error {
	*m = TruncConfigResult{}
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
			m.Method, n, err = consumeInt32(b)
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

// PrgConfigProposal advertises the PRG crypto primitive.
type PrgConfigProposal struct {
	SupportedVersions []int32
	CryptoType        int32
}

func (m *PrgConfigProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendInt32Field(b, 2, m.CryptoType)
	return b
}

func (m *PrgConfigProposal) Unmarshal(b []byte) error {
	*m = PrgConfigProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.CryptoType, n, err = consumeInt32(b)
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

// TripleConfigProposal advertises the supported TTP beaver server version.
type TripleConfigProposal struct {
	SupportedVersions []int32
	ServerVersion     int32
}

func (m *TripleConfigProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendInt32Field(b, 2, m.ServerVersion)
	return b
}

func (m *TripleConfigProposal) Unmarshal(b []byte) error {
	*m = TripleConfigProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.ServerVersion, n, err = consumeInt32(b)
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

// TripleConfigResult carries the agreed TTP beaver service coordinates.
type TripleConfigResult struct {
	Version    int32
	ServerHost string
	SessionId  string
	AdjustRank int32
}

func (m *TripleConfigResult) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Version)
	b = appendStringField(b, 2, m.ServerHost)
	b = appendStringField(b, 3, m.SessionId)
	b = appendInt32Field(b, 4, m.AdjustRank)
	return b
}

func (m *TripleConfigResult) Unmarshal(b []byte) error {
	*m = TripleConfigResult{}
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
			m.ServerHost, n, err = consumeString(b)
		case 3:
			m.SessionId, n, err = consumeString(b)
		case 4:
			m.AdjustRank, n, err = consumeInt32(b)
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

// SSProtocolProposal enumerates the secret-sharing stack a party supports.
type SSProtocolProposal struct {
	SupportedVersions     []int32
	SupportedProtocols    []int32
	FieldTypes            []int32
	TruncModes            []*TruncConfigProposal
	PrgConfigs            []*PrgConfigProposal
	TripleConfigs         []*TripleConfigProposal
	ShardSerializeFormats []int32
}

func (m *SSProtocolProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	b = appendPackedInt32s(b, 2, m.SupportedProtocols)
	b = appendPackedInt32s(b, 3, m.FieldTypes)
	for _, t := range m.TruncModes {
		b = appendMessageField(b, 4, t)
	}
	for _, p := range m.PrgConfigs {
		b = appendMessageField(b, 5, p)
	}
	for _, t := range m.TripleConfigs {
		b = appendMessageField(b, 6, t)
	}
	b = appendPackedInt32s(b, 7, m.ShardSerializeFormats)
	return b
}

func (m *SSProtocolProposal) Unmarshal(b []byte) error {
	*m = SSProtocolProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			m.SupportedProtocols, n, err = consumeRepeatedInt32(m.SupportedProtocols, b, typ)
		case 3:
			m.FieldTypes, n, err = consumeRepeatedInt32(m.FieldTypes, b, typ)
		case 4:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				t := new(TruncConfigProposal)
				err = t.Unmarshal(raw)
				m.TruncModes = append(m.TruncModes, t)
			}
		case 5:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				p := new(PrgConfigProposal)
				err = p.Unmarshal(raw)
				m.PrgConfigs = append(m.PrgConfigs, p)
			}
		case 6:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				t := new(TripleConfigProposal)
				err = t.Unmarshal(raw)
				m.TripleConfigs = append(m.TripleConfigs, t)
			}
		case 7:
			m.ShardSerializeFormats, n, err = consumeRepeatedInt32(m.ShardSerializeFormats, b, typ)
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

// SSProtocolResult carries the agreed secret-sharing stack.
type SSProtocolResult struct {
	Protocol             int32
	FieldType            int32
	FxpFractionBits      int32
	TruncMode            *TruncConfigResult
	TripleConfig         *TripleConfigResult
	ShardSerializeFormat int32
}

func (m *SSProtocolResult) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Protocol)
	b = appendInt32Field(b, 2, m.FieldType)
	b = appendInt32Field(b, 3, m.FxpFractionBits)
	b = appendMessageField(b, 4, m.TruncMode)
	b = appendMessageField(b, 5, m.TripleConfig)
	b = appendInt32Field(b, 6, m.ShardSerializeFormat)
	return b
}

func (m *SSProtocolResult) Unmarshal(b []byte) error {
	*m = SSProtocolResult{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.Protocol, n, err = consumeInt32(b)
		case 2:
			m.FieldType, n, err = consumeInt32(b)
		case 3:
			m.FxpFractionBits, n, err = consumeInt32(b)
		case 4:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.TruncMode = new(TruncConfigResult)
				err = m.TruncMode.Unmarshal(raw)
			}
		case 5:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				m.TripleConfig = new(TripleConfigResult)
				err = m.TripleConfig.Unmarshal(raw)
			}
		case 6:
			m.ShardSerializeFormat, n, err = consumeInt32(b)
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

// EcSuit is the (curve, hash, hash-to-curve) triple negotiated for PSI.
type EcSuit struct {
	Curve              int32
	Hash               int32
	Hash2CurveStrategy int32
}

func (m *EcSuit) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Curve)
	b = appendInt32Field(b, 2, m.Hash)
	b = appendInt32Field(b, 3, m.Hash2CurveStrategy)
	return b
}

func (m *EcSuit) Unmarshal(b []byte) error {
	*m = EcSuit{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.Curve, n, err = consumeInt32(b)
		case 2:
			m.Hash, n, err = consumeInt32(b)
		case 3:
			m.Hash2CurveStrategy, n, err = consumeInt32(b)
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

// EccProtocolProposal enumerates the EC stack a party supports.
type EccProtocolProposal struct {
	SupportedVersions      []int32
	EcSuits                []*EcSuit
	PointOctetFormats      []int32
	SupportPointTruncation bool
}

func (m *EccProtocolProposal) Marshal() []byte {
	var b []byte
	b = appendPackedInt32s(b, 1, m.SupportedVersions)
	for _, s := range m.EcSuits {
		b = appendMessageField(b, 2, s)
	}
	b = appendPackedInt32s(b, 3, m.PointOctetFormats)
	b = appendBoolField(b, 4, m.SupportPointTruncation)
	return b
}

func (m *EccProtocolProposal) Unmarshal(b []byte) error {
	*m = EccProtocolProposal{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.SupportedVersions, n, err = consumeRepeatedInt32(m.SupportedVersions, b, typ)
		case 2:
			var raw []byte
			raw, n, err = consumeBytes(b)
			if err == nil {
				s := new(EcSuit)
				err = s.Unmarshal(raw)
				m.EcSuits = append(m.EcSuits, s)
			}
		case 3:
			m.PointOctetFormats, n, err = consumeRepeatedInt32(m.PointOctetFormats, b, typ)
		case 4:
			m.SupportPointTruncation, n, err = consumeBool(b)
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

// EccProtocolResult carries the agreed EC stack.
type EccProtocolResult struct {
	EcSuit                  *EcSuit
	PointOctetFormat        int32
	BitLengthAfterTruncated int32
}

func (m *EccProtocolResult) Marshal() []byte {
	var b []byte
	b = appendMessageField(b, 1, m.EcSuit)
	b = appendInt32Field(b, 2, m.PointOctetFormat)
	// -1 disables truncation and must survive the round trip.
	b = appendVarintField(b, 3, uint64(int64(m.BitLengthAfterTruncated)))
	return b
}

func (m *EccProtocolResult) Unmarshal(b []byte) error {
	*m = EccProtocolResult{}
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
				m.EcSuit = new(EcSuit)
				err = m.EcSuit.Unmarshal(raw)
			}
		case 2:
			m.PointOctetFormat, n, err = consumeInt32(b)
		case 3:
			m.BitLengthAfterTruncated, n, err = consumeInt32(b)
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
