// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config resolves the per-party suggested parameter bundle: every
// flag is overridable by the environment variable
// runtime.component.parameter.<name>, enum flags are resolved against the
// wire enum name tables, and the result is one AppConfig built in main and
// threaded through explicitly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
)

// Flags holds the raw command-line surface before env resolution.
type Flags struct {
	Parties          string
	Rank             int32
	IcVersion        int32
	Algo             string
	ProtocolFamilies string
	DisableHandshake bool
	RecvTimeoutSec   int32

	// PSI
	InPath        string
	FieldNames    string
	OutPath       string
	ShouldSort    bool
	PrecheckInput bool
	ResultToRank  int32

	// ECC
	CurveType          string
	HashType           string
	Hash2CurveStrategy string
	PointOctetFormat   string

	// LR
	Dataset         string
	SkipRows        int32
	LrOutput        string
	HasLabel        bool
	BatchSize       int64
	NumEpoch        int64
	LastBatchPolicy string
	L0Norm          float64
	L1Norm          float64
	L2Norm          float64
	Optimizer       string
	LearningRate    float64
	SigmoidMode     string

	// SS
	Protocol             string
	Field                string
	FxpBits              int32
	TruncMode            string
	ShardSerializeFormat string
	UseTTP               bool
	TtpServerHost        string
	TtpSessionID         string
	TtpAdjustRank        int32
}

// Bind registers every flag with its compile-time default.
func (f *Flags) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.Parties, "parties", "127.0.0.1:9530,127.0.0.1:9531",
		"server list, format: host1:port1[,host2:port2, ...]")
	fs.Int32Var(&f.Rank, "rank", 0, "self rank")
	fs.Int32Var(&f.IcVersion, "ic_version", 2, "handshake request version suggested")
	fs.StringVar(&f.Algo, "algo", "ECDH_PSI", "algorithm suggested")
	fs.StringVar(&f.ProtocolFamilies, "protocol_families", "ecc",
		"comma-separated list of protocol families")
	fs.BoolVar(&f.DisableHandshake, "disable_handshake", false,
		"bypass negotiation; proposals are taken as truth")
	fs.Int32Var(&f.RecvTimeoutSec, "recv_timeout", 0,
		"transport receive timeout in seconds, 0 waits forever")

	fs.StringVar(&f.InPath, "in_path", "data.csv", "psi data in file path")
	fs.StringVar(&f.FieldNames, "field_names", "id", "field names")
	fs.StringVar(&f.OutPath, "out_path", "", "psi out file path")
	fs.BoolVar(&f.ShouldSort, "should_sort", false, "whether sort psi result")
	fs.BoolVar(&f.PrecheckInput, "precheck_input", false, "whether precheck input dataset")
	fs.Int32Var(&f.ResultToRank, "result_to_rank", -1, "which rank gets the result")

	fs.StringVar(&f.CurveType, "curve_type", "curve25519", "elliptic curve type")
	fs.StringVar(&f.HashType, "hash_type", "sha_256", "hash type for hash-to-curve")
	fs.StringVar(&f.Hash2CurveStrategy, "hash2curve_strategy", "direct_hash_as_point_x",
		"hash to curve strategy")
	fs.StringVar(&f.PointOctetFormat, "point_octet_format", "uncompressed",
		"EC point serialization format")

	fs.StringVar(&f.Dataset, "dataset", "data.csv", "dataset file, only csv is supported")
	fs.Int32Var(&f.SkipRows, "skip_rows", 1, "skip number of rows from dataset")
	fs.StringVar(&f.LrOutput, "lr_output", "/tmp/sslr_result", "full path name of output file")
	fs.BoolVar(&f.HasLabel, "has_label", false, "if true, label is the last column of dataset")
	fs.Int64Var(&f.BatchSize, "batch_size", 21, "size of each batch")
	fs.Int64Var(&f.NumEpoch, "num_epoch", 1, "number of epoch")
	fs.StringVar(&f.LastBatchPolicy, "last_batch_policy", "discard",
		"policy to process the partial last batch of each epoch")
	fs.Float64Var(&f.L0Norm, "l0_norm", 0.0, "l0 norm")
	fs.Float64Var(&f.L1Norm, "l1_norm", 0.0, "l1 norm")
	fs.Float64Var(&f.L2Norm, "l2_norm", 0.5, "l2 norm")
	fs.StringVar(&f.Optimizer, "optimizer", "sgd", "optimization algorithm to speed up training")
	fs.Float64Var(&f.LearningRate, "learning_rate", 0.0001, "learning rate parameter of sgd optimizer")
	fs.StringVar(&f.SigmoidMode, "sigmoid_mode", "minimax_1", "sigmoid approximation method")

	fs.StringVar(&f.Protocol, "protocol", "semi2k", "ss protocol suggested")
	fs.StringVar(&f.Field, "field", "64", "field type, 32 for Ring32, 64 for Ring64, 128 for Ring128")
	fs.Int32Var(&f.FxpBits, "fxp_bits", 18, "number of fraction bits of fixed-point number")
	fs.StringVar(&f.TruncMode, "trunc_mode", "probabilistic", "truncation mode")
	fs.StringVar(&f.ShardSerializeFormat, "shard_serialize_format", "raw",
		"serialization format used in communicating secret shares")
	fs.BoolVar(&f.UseTTP, "use_ttp", false, "whether use trusted third party's beaver service")
	fs.StringVar(&f.TtpServerHost, "ttp_server_host", "127.0.0.1:9449",
		"trusted third party beaver server's remote ip:port or load-balance uri")
	fs.StringVar(&f.TtpSessionID, "ttp_session_id", "interconnection-root",
		"trusted third party beaver server's session id")
	fs.Int32Var(&f.TtpAdjustRank, "ttp_adjust_rank", 0, "which rank do adjust rpc call")
}

// PsiConfig is the suggested PSI parameter bundle.
type PsiConfig struct {
	InPath        string
	FieldNames    []string
	OutPath       string
	ShouldSort    bool
	PrecheckInput bool
	ResultToRank  int32

	CurveType               pb.CurveType
	HashType                pb.HashType
	Hash2CurveStrategy      pb.Hash2CurveStrategy
	PointOctetFormat        pb.PointOctetFormat
	BitLengthAfterTruncated int32
}

// TtpConfig is the suggested trusted-third-party bundle.
type TtpConfig struct {
	UseTTP        bool
	ServerHost    string
	ServerVersion int32
	SessionID     string
	AdjustRank    int32
}

// SsConfig is the suggested secret-sharing bundle.
type SsConfig struct {
	Protocol             pb.ProtocolKind
	FieldType            pb.FieldType
	FxpBits              int32
	TruncMode            pb.TruncMode
	ShardSerializeFormat pb.ShardSerializeFormat
	TTP                  TtpConfig
}

// LrConfig is the suggested SS-LR parameter bundle.
type LrConfig struct {
	Dataset         string
	SkipRows        int32
	Output          string
	HasLabel        bool
	BatchSize       int64
	NumEpoch        int64
	LastBatchPolicy pb.LastBatchPolicy
	L0Norm          float64
	L1Norm          float64
	L2Norm          float64
	Optimizer       pb.Optimizer
	LearningRate    float64
	SigmoidMode     pb.SigmoidMode
	SS              SsConfig
}

// AppConfig is the resolved per-party parameter bundle, built once at
// startup and treated as read-only afterwards.
type AppConfig struct {
	Parties          []string
	Rank             int32
	Version          int32
	Algo             pb.AlgoType
	ProtocolFamilies []pb.ProtocolFamily
	DisableHandshake bool
	RecvTimeout      time.Duration

	PSI PsiConfig
	LR  LrConfig
}

// supportedVersions lists the handshake versions this binary can suggest.
// Version 1 is sniffed on the wire but not spoken.
var supportedVersions = []int32{2}

// Load applies the env layer over the parsed flags and resolves enums.
func Load(f *Flags) (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Parties = strings.Split(envString("parties", f.Parties), ",")
	rank, err := envInt32("rank", f.Rank)
	if err != nil {
		return nil, err
	}
	cfg.Rank = rank

	version, err := envInt32("ic_version", f.IcVersion)
	if err != nil {
		return nil, err
	}
	supported := false
	for _, v := range supportedVersions {
		if v == version {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("config: handshake version %d is unsupported", version)
	}
	cfg.Version = version

	algo, err := ResolveEnum(pb.AlgoTypeValues, "ALGO_TYPE_", envString("algo", f.Algo))
	if err != nil {
		return nil, err
	}
	cfg.Algo = pb.AlgoType(algo)

	for _, v := range ResolveEnums(pb.ProtocolFamilyValues, "PROTOCOL_FAMILY_",
		envString("protocol_families", f.ProtocolFamilies)) {
		cfg.ProtocolFamilies = append(cfg.ProtocolFamilies, pb.ProtocolFamily(v))
	}
	if len(cfg.ProtocolFamilies) == 0 {
		return nil, fmt.Errorf("config: no valid protocol families")
	}

	cfg.DisableHandshake = envBool("disable_handshake", f.DisableHandshake)
	timeoutSec, err := envInt32("recv_timeout", f.RecvTimeoutSec)
	if err != nil {
		return nil, err
	}
	cfg.RecvTimeout = time.Duration(timeoutSec) * time.Second

	if err := loadPsi(f, &cfg.PSI); err != nil {
		return nil, err
	}
	if err := loadLr(f, &cfg.LR); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPsi(f *Flags, out *PsiConfig) error {
	out.InPath = envString("in_path", f.InPath)
	out.FieldNames = strings.Split(envString("field_names", f.FieldNames), ",")
	out.OutPath = envString("out_path", f.OutPath)
	out.ShouldSort = envBool("should_sort", f.ShouldSort)
	out.PrecheckInput = envBool("precheck_input", f.PrecheckInput)

	rank, err := envInt32("result_to_rank", f.ResultToRank)
	if err != nil {
		return err
	}
	out.ResultToRank = rank

	curve, err := ResolveEnum(pb.CurveTypeValues, "CURVE_TYPE_", envString("curve_type", f.CurveType))
	if err != nil {
		return err
	}
	out.CurveType = pb.CurveType(curve)

	hash, err := ResolveEnum(pb.HashTypeValues, "HASH_TYPE_", envString("hash_type", f.HashType))
	if err != nil {
		return err
	}
	out.HashType = pb.HashType(hash)

	strategy, err := ResolveEnum(pb.Hash2CurveStrategyValues, "HASH_TO_CURVE_STRATEGY_",
		envString("hash2curve_strategy", f.Hash2CurveStrategy))
	if err != nil {
		return err
	}
	out.Hash2CurveStrategy = pb.Hash2CurveStrategy(strategy)

	format, err := ResolveEnum(pb.PointOctetFormatValues, "POINT_OCTET_FORMAT_",
		envString("point_octet_format", f.PointOctetFormat))
	if err != nil {
		return err
	}
	out.PointOctetFormat = pb.PointOctetFormat(format)

	// Point truncation is off until a negotiation turns it on.
	out.BitLengthAfterTruncated = -1
	return nil
}

func loadLr(f *Flags, out *LrConfig) error {
	out.Dataset = envString("dataset", f.Dataset)
	skipRows, err := envInt32("skip_rows", f.SkipRows)
	if err != nil {
		return err
	}
	out.SkipRows = skipRows
	out.Output = envString("lr_output", f.LrOutput)
	out.HasLabel = envBool("has_label", f.HasLabel)

	if out.BatchSize, err = envInt64("batch_size", f.BatchSize); err != nil {
		return err
	}
	if out.NumEpoch, err = envInt64("num_epoch", f.NumEpoch); err != nil {
		return err
	}

	policy, err := ResolveEnum(pb.LastBatchPolicyValues, "LAST_BATCH_POLICY_",
		envString("last_batch_policy", f.LastBatchPolicy))
	if err != nil {
		return err
	}
	out.LastBatchPolicy = pb.LastBatchPolicy(policy)

	if out.L0Norm, err = envFloat("l0_norm", f.L0Norm); err != nil {
		return err
	}
	if out.L1Norm, err = envFloat("l1_norm", f.L1Norm); err != nil {
		return err
	}
	if out.L2Norm, err = envFloat("l2_norm", f.L2Norm); err != nil {
		return err
	}

	optimizer, err := ResolveEnum(pb.OptimizerValues, "OPTIMIZER_", envString("optimizer", f.Optimizer))
	if err != nil {
		return err
	}
	out.Optimizer = pb.Optimizer(optimizer)

	if out.LearningRate, err = envFloat("learning_rate", f.LearningRate); err != nil {
		return err
	}

	sigmoid, err := ResolveEnum(pb.SigmoidModeValues, "SIGMOID_MODE_",
		envString("sigmoid_mode", f.SigmoidMode))
	if err != nil {
		return err
	}
	out.SigmoidMode = pb.SigmoidMode(sigmoid)

	return loadSs(f, &out.SS)
}

func loadSs(f *Flags, out *SsConfig) error {
	protocol, err := ResolveEnum(pb.ProtocolKindValues, "PROTOCOL_KIND_", envString("protocol", f.Protocol))
	if err != nil {
		return err
	}
	out.Protocol = pb.ProtocolKind(protocol)

	field, err := ResolveEnum(pb.FieldTypeValues, "FIELD_TYPE_", envString("field", f.Field))
	if err != nil {
		return err
	}
	out.FieldType = pb.FieldType(field)

	if out.FxpBits, err = envInt32("fxp_bits", f.FxpBits); err != nil {
		return err
	}

	trunc, err := ResolveEnum(pb.TruncModeValues, "TRUNC_MODE_", envString("trunc_mode", f.TruncMode))
	if err != nil {
		return err
	}
	out.TruncMode = pb.TruncMode(trunc)

	format, err := ResolveEnum(pb.ShardSerializeFormatValues, "SHARD_SERIALIZE_FORMAT_",
		envString("shard_serialize_format", f.ShardSerializeFormat))
	if err != nil {
		return err
	}
	out.ShardSerializeFormat = pb.ShardSerializeFormat(format)

	out.TTP.UseTTP = envBool("use_ttp", f.UseTTP)
	out.TTP.ServerHost = envString("ttp_server_host", f.TtpServerHost)
	out.TTP.ServerVersion = 2
	out.TTP.SessionID = envString("ttp_session_id", f.TtpSessionID)
	if out.TTP.AdjustRank, err = envInt32("ttp_adjust_rank", f.TtpAdjustRank); err != nil {
		return err
	}
	return nil
}
