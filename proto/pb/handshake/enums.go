// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

// ErrorCode mirrors the wire header codes of the interconnection protocol.
type ErrorCode int32

const (
	ErrorCode_OK                   ErrorCode = 0
	ErrorCode_UNEXPECTED_ERROR     ErrorCode = 1
	ErrorCode_INVALID_REQUEST      ErrorCode = 2
	ErrorCode_HANDSHAKE_REFUSED    ErrorCode = 3
	ErrorCode_UNSUPPORTED_ARGUMENT ErrorCode = 4
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorCode_OK:
		return "OK"
	case ErrorCode_UNEXPECTED_ERROR:
		return "UNEXPECTED_ERROR"
	case ErrorCode_INVALID_REQUEST:
		return "INVALID_REQUEST"
	case ErrorCode_HANDSHAKE_REFUSED:
		return "HANDSHAKE_REFUSED"
	case ErrorCode_UNSUPPORTED_ARGUMENT:
		return "UNSUPPORTED_ARGUMENT"
	default:
		return "UNKNOWN"
	}
}

// AlgoType enumerates the negotiable algorithms.
type AlgoType int32

const (
	AlgoType_ALGO_TYPE_UNSPECIFIED AlgoType = 0
	AlgoType_ALGO_TYPE_ECDH_PSI    AlgoType = 1
	AlgoType_ALGO_TYPE_SS_LR       AlgoType = 2
)

// AlgoTypeValues is the name table used for flag resolution.
var AlgoTypeValues = map[string]int32{
	"ALGO_TYPE_UNSPECIFIED": 0,
	"ALGO_TYPE_ECDH_PSI":    1,
	"ALGO_TYPE_SS_LR":       2,
}

func (a AlgoType) String() string {
	switch a {
	case AlgoType_ALGO_TYPE_ECDH_PSI:
		return "ECDH_PSI"
	case AlgoType_ALGO_TYPE_SS_LR:
		return "SS_LR"
	default:
		return "unspecified"
	}
}

// ProtocolFamily enumerates the negotiable protocol families.
type ProtocolFamily int32

const (
	ProtocolFamily_PROTOCOL_FAMILY_UNSPECIFIED ProtocolFamily = 0
	ProtocolFamily_PROTOCOL_FAMILY_ECC         ProtocolFamily = 1
	ProtocolFamily_PROTOCOL_FAMILY_SS          ProtocolFamily = 2
)

var ProtocolFamilyValues = map[string]int32{
	"PROTOCOL_FAMILY_UNSPECIFIED": 0,
	"PROTOCOL_FAMILY_ECC":         1,
	"PROTOCOL_FAMILY_SS":          2,
}

func (p ProtocolFamily) String() string {
	switch p {
	case ProtocolFamily_PROTOCOL_FAMILY_ECC:
		return "ecc"
	case ProtocolFamily_PROTOCOL_FAMILY_SS:
		return "ss"
	default:
		return "unspecified"
	}
}

// OpType enumerates negotiable operators.
type OpType int32

const (
	OpType_OP_TYPE_UNSPECIFIED OpType = 0
	OpType_OP_TYPE_SIGMOID     OpType = 1
)

// CurveType enumerates elliptic curves.
type CurveType int32

const (
	CurveType_CURVE_TYPE_UNSPECIFIED CurveType = 0
	CurveType_CURVE_TYPE_CURVE25519  CurveType = 1
	CurveType_CURVE_TYPE_SM2         CurveType = 2
)

var CurveTypeValues = map[string]int32{
	"CURVE_TYPE_UNSPECIFIED": 0,
	"CURVE_TYPE_CURVE25519":  1,
	"CURVE_TYPE_SM2":         2,
}

// HashType enumerates hash functions for hash-to-curve.
type HashType int32

const (
	HashType_HASH_TYPE_UNSPECIFIED HashType = 0
	HashType_HASH_TYPE_SHA_256     HashType = 1
	HashType_HASH_TYPE_SHA_512     HashType = 2
	HashType_HASH_TYPE_SM3         HashType = 3
)

var HashTypeValues = map[string]int32{
	"HASH_TYPE_UNSPECIFIED": 0,
	"HASH_TYPE_SHA_256":     1,
	"HASH_TYPE_SHA_512":     2,
	"HASH_TYPE_SM3":         3,
}

// Hash2CurveStrategy enumerates hash-to-curve strategies.
type Hash2CurveStrategy int32

const (
	Hash2CurveStrategy_HASH_TO_CURVE_STRATEGY_UNSPECIFIED           Hash2CurveStrategy = 0
	Hash2CurveStrategy_HASH_TO_CURVE_STRATEGY_DIRECT_HASH_AS_POINT_X Hash2CurveStrategy = 1
	Hash2CurveStrategy_HASH_TO_CURVE_STRATEGY_TRY_AND_REHASH         Hash2CurveStrategy = 2
)

var Hash2CurveStrategyValues = map[string]int32{
	"HASH_TO_CURVE_STRATEGY_UNSPECIFIED":            0,
	"HASH_TO_CURVE_STRATEGY_DIRECT_HASH_AS_POINT_X": 1,
	"HASH_TO_CURVE_STRATEGY_TRY_AND_REHASH":         2,
}

// PointOctetFormat enumerates EC point serialization formats.
type PointOctetFormat int32

const (
	PointOctetFormat_POINT_OCTET_FORMAT_UNSPECIFIED     PointOctetFormat = 0
	PointOctetFormat_POINT_OCTET_FORMAT_UNCOMPRESSED    PointOctetFormat = 1
	PointOctetFormat_POINT_OCTET_FORMAT_X962_COMPRESSED PointOctetFormat = 2
)

var PointOctetFormatValues = map[string]int32{
	"POINT_OCTET_FORMAT_UNSPECIFIED":     0,
	"POINT_OCTET_FORMAT_UNCOMPRESSED":    1,
	"POINT_OCTET_FORMAT_X962_COMPRESSED": 2,
}

// ProtocolKind enumerates secret-sharing protocols.
type ProtocolKind int32

const (
	ProtocolKind_PROTOCOL_KIND_UNSPECIFIED ProtocolKind = 0
	ProtocolKind_PROTOCOL_KIND_SEMI2K      ProtocolKind = 1
	ProtocolKind_PROTOCOL_KIND_ABY3        ProtocolKind = 2
)

var ProtocolKindValues = map[string]int32{
	"PROTOCOL_KIND_UNSPECIFIED": 0,
	"PROTOCOL_KIND_SEMI2K":      1,
	"PROTOCOL_KIND_ABY3":        2,
}

func (p ProtocolKind) String() string {
	switch p {
	case ProtocolKind_PROTOCOL_KIND_SEMI2K:
		return "semi2k"
	case ProtocolKind_PROTOCOL_KIND_ABY3:
		return "aby3"
	default:
		return "unspecified"
	}
}

// FieldType enumerates ring field widths.
type FieldType int32

const (
	FieldType_FIELD_TYPE_UNSPECIFIED FieldType = 0
	FieldType_FIELD_TYPE_32          FieldType = 1
	FieldType_FIELD_TYPE_64          FieldType = 2
	FieldType_FIELD_TYPE_128         FieldType = 3
)

var FieldTypeValues = map[string]int32{
	"FIELD_TYPE_UNSPECIFIED": 0,
	"FIELD_TYPE_32":          1,
	"FIELD_TYPE_64":          2,
	"FIELD_TYPE_128":         3,
}

// Bits returns the ring width in bits, or 0 for unspecified.
func (f FieldType) Bits() int {
	switch f {
	case FieldType_FIELD_TYPE_32:
		return 32
	case FieldType_FIELD_TYPE_64:
		return 64
	case FieldType_FIELD_TYPE_128:
		return 128
	default:
		return 0
	}
}

// TruncMode enumerates fixed-point truncation modes.
type TruncMode int32

const (
	TruncMode_TRUNC_MODE_UNSPECIFIED   TruncMode = 0
	TruncMode_TRUNC_MODE_PROBABILISTIC TruncMode = 1
	TruncMode_TRUNC_MODE_PRECISE       TruncMode = 2
)

var TruncModeValues = map[string]int32{
	"TRUNC_MODE_UNSPECIFIED":   0,
	"TRUNC_MODE_PROBABILISTIC": 1,
	"TRUNC_MODE_PRECISE":       2,
}

// ShardSerializeFormat enumerates share serialization formats.
type ShardSerializeFormat int32

const (
	ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_UNSPECIFIED ShardSerializeFormat = 0
	ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_RAW         ShardSerializeFormat = 1
	ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_WITH_META   ShardSerializeFormat = 2
)

var ShardSerializeFormatValues = map[string]int32{
	"SHARD_SERIALIZE_FORMAT_UNSPECIFIED": 0,
	"SHARD_SERIALIZE_FORMAT_RAW":         1,
	"SHARD_SERIALIZE_FORMAT_WITH_META":   2,
}

// CryptoType enumerates PRG crypto primitives.
type CryptoType int32

const (
	CryptoType_CRYPTO_TYPE_UNSPECIFIED CryptoType = 0
	CryptoType_CRYPTO_TYPE_AES128_CTR  CryptoType = 1
	CryptoType_CRYPTO_TYPE_SM4_CTR     CryptoType = 2
)

// SigmoidMode enumerates sigmoid approximation modes.
type SigmoidMode int32

const (
	SigmoidMode_SIGMOID_MODE_UNSPECIFIED SigmoidMode = 0
	SigmoidMode_SIGMOID_MODE_MINIMAX_1   SigmoidMode = 1
	SigmoidMode_SIGMOID_MODE_SEG_3       SigmoidMode = 2
	SigmoidMode_SIGMOID_MODE_REAL        SigmoidMode = 3
)

var SigmoidModeValues = map[string]int32{
	"SIGMOID_MODE_UNSPECIFIED": 0,
	"SIGMOID_MODE_MINIMAX_1":   1,
	"SIGMOID_MODE_SEG_3":       2,
	"SIGMOID_MODE_REAL":        3,
}

// Optimizer enumerates LR optimizers.
type Optimizer int32

const (
	Optimizer_OPTIMIZER_UNSPECIFIED Optimizer = 0
	Optimizer_OPTIMIZER_SGD         Optimizer = 1
	Optimizer_OPTIMIZER_MOMENTUM    Optimizer = 2
	Optimizer_OPTIMIZER_ADAGRAD     Optimizer = 3
	Optimizer_OPTIMIZER_ADADELTA    Optimizer = 4
	Optimizer_OPTIMIZER_RMSPROP     Optimizer = 5
	Optimizer_OPTIMIZER_ADAM        Optimizer = 6
	Optimizer_OPTIMIZER_ADAMAX      Optimizer = 7
	Optimizer_OPTIMIZER_NADAM       Optimizer = 8
)

var OptimizerValues = map[string]int32{
	"OPTIMIZER_UNSPECIFIED": 0,
	"OPTIMIZER_SGD":         1,
	"OPTIMIZER_MOMENTUM":    2,
	"OPTIMIZER_ADAGRAD":     3,
	"OPTIMIZER_ADADELTA":    4,
	"OPTIMIZER_RMSPROP":     5,
	"OPTIMIZER_ADAM":        6,
	"OPTIMIZER_ADAMAX":      7,
	"OPTIMIZER_NADAM":       8,
}

func (o Optimizer) String() string {
	switch o {
	case Optimizer_OPTIMIZER_SGD:
		return "sgd"
	case Optimizer_OPTIMIZER_MOMENTUM:
		return "momentum"
	case Optimizer_OPTIMIZER_ADAGRAD:
		return "adagrad"
	case Optimizer_OPTIMIZER_ADADELTA:
		return "adadelta"
	case Optimizer_OPTIMIZER_RMSPROP:
		return "rmsprop"
	case Optimizer_OPTIMIZER_ADAM:
		return "adam"
	case Optimizer_OPTIMIZER_ADAMAX:
		return "adamax"
	case Optimizer_OPTIMIZER_NADAM:
		return "nadam"
	default:
		return "unspecified"
	}
}

// LastBatchPolicy enumerates behaviors for a short trailing batch.
type LastBatchPolicy int32

const (
	LastBatchPolicy_LAST_BATCH_POLICY_UNSPECIFIED LastBatchPolicy = 0
	LastBatchPolicy_LAST_BATCH_POLICY_DISCARD     LastBatchPolicy = 1
	LastBatchPolicy_LAST_BATCH_POLICY_PAD         LastBatchPolicy = 2
	LastBatchPolicy_LAST_BATCH_POLICY_KEEP        LastBatchPolicy = 3
)

var LastBatchPolicyValues = map[string]int32{
	"LAST_BATCH_POLICY_UNSPECIFIED": 0,
	"LAST_BATCH_POLICY_DISCARD":     1,
	"LAST_BATCH_POLICY_PAD":         2,
	"LAST_BATCH_POLICY_KEEP":        3,
}
