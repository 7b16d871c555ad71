// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
)

func loadFromArgs(t *testing.T, args ...string) (*AppConfig, error) {
	t.Helper()
	var flags Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bind(fs)
	require.NoError(t, fs.Parse(args))
	return Load(&flags)
}

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := loadFromArgs(t)
	require.NoError(err)

	require.Equal([]string{"127.0.0.1:9530", "127.0.0.1:9531"}, cfg.Parties)
	require.Equal(int32(0), cfg.Rank)
	require.Equal(int32(2), cfg.Version)
	require.Equal(pb.AlgoType_ALGO_TYPE_ECDH_PSI, cfg.Algo)
	require.Equal([]pb.ProtocolFamily{pb.ProtocolFamily_PROTOCOL_FAMILY_ECC}, cfg.ProtocolFamilies)
	require.False(cfg.DisableHandshake)
	require.Zero(cfg.RecvTimeout)

	require.Equal(pb.CurveType_CURVE_TYPE_CURVE25519, cfg.PSI.CurveType)
	require.Equal(pb.HashType_HASH_TYPE_SHA_256, cfg.PSI.HashType)
	require.Equal(pb.Hash2CurveStrategy_HASH_TO_CURVE_STRATEGY_DIRECT_HASH_AS_POINT_X,
		cfg.PSI.Hash2CurveStrategy)
	require.Equal(pb.PointOctetFormat_POINT_OCTET_FORMAT_UNCOMPRESSED, cfg.PSI.PointOctetFormat)
	require.Equal(int32(-1), cfg.PSI.ResultToRank)
	require.Equal(int32(-1), cfg.PSI.BitLengthAfterTruncated)

	require.Equal(int64(21), cfg.LR.BatchSize)
	require.Equal(int64(1), cfg.LR.NumEpoch)
	require.Equal(pb.LastBatchPolicy_LAST_BATCH_POLICY_DISCARD, cfg.LR.LastBatchPolicy)
	require.Equal(0.5, cfg.LR.L2Norm)
	require.Equal(pb.Optimizer_OPTIMIZER_SGD, cfg.LR.Optimizer)
	require.Equal(0.0001, cfg.LR.LearningRate)
	require.Equal(pb.SigmoidMode_SIGMOID_MODE_MINIMAX_1, cfg.LR.SigmoidMode)

	require.Equal(pb.ProtocolKind_PROTOCOL_KIND_SEMI2K, cfg.LR.SS.Protocol)
	require.Equal(pb.FieldType_FIELD_TYPE_64, cfg.LR.SS.FieldType)
	require.Equal(int32(18), cfg.LR.SS.FxpBits)
	require.Equal(pb.TruncMode_TRUNC_MODE_PROBABILISTIC, cfg.LR.SS.TruncMode)
	require.Equal(pb.ShardSerializeFormat_SHARD_SERIALIZE_FORMAT_RAW, cfg.LR.SS.ShardSerializeFormat)
	require.False(cfg.LR.SS.TTP.UseTTP)
	require.Equal(int32(2), cfg.LR.SS.TTP.ServerVersion)
}

func TestLoadFlags(t *testing.T) {
	require := require.New(t)

	cfg, err := loadFromArgs(t,
		"--algo", "SS_LR",
		"--protocol_families", "ss",
		"--rank", "1",
		"--batch_size", "20",
		"--num_epoch", "3",
		"--has_label",
		"--field", "32",
		"--recv_timeout", "30",
	)
	require.NoError(err)
	require.Equal(pb.AlgoType_ALGO_TYPE_SS_LR, cfg.Algo)
	require.Equal([]pb.ProtocolFamily{pb.ProtocolFamily_PROTOCOL_FAMILY_SS}, cfg.ProtocolFamilies)
	require.Equal(int32(1), cfg.Rank)
	require.Equal(int64(20), cfg.LR.BatchSize)
	require.Equal(int64(3), cfg.LR.NumEpoch)
	require.True(cfg.LR.HasLabel)
	require.Equal(pb.FieldType_FIELD_TYPE_32, cfg.LR.SS.FieldType)
	require.Equal(30*time.Second, cfg.RecvTimeout)
}

func TestEnvOverridesFlags(t *testing.T) {
	require := require.New(t)

	t.Setenv("runtime.component.parameter.algo", "ss_lr")
	t.Setenv("runtime.component.parameter.protocol_families", "ss")
	t.Setenv("runtime.component.parameter.batch_size", "42")
	t.Setenv("runtime.component.parameter.l2_norm", "0")
	t.Setenv("runtime.component.parameter.disable_handshake", "true")

	cfg, err := loadFromArgs(t, "--batch_size", "7")
	require.NoError(err)
	require.Equal(pb.AlgoType_ALGO_TYPE_SS_LR, cfg.Algo)
	require.Equal(int64(42), cfg.LR.BatchSize)
	require.Zero(cfg.LR.L2Norm)
	require.True(cfg.DisableHandshake)
}

func TestLoadRejectsBadEnums(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown algo", args: []string{"--algo", "nope"}},
		{name: "unspecified optimizer", args: []string{"--optimizer", "unspecified"}},
		{name: "unknown curve", args: []string{"--curve_type", "p999"}},
		{name: "unsupported version", args: []string{"--ic_version", "1"}},
		{name: "empty families", args: []string{"--protocol_families", "bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFromArgs(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestResolveEnum(t *testing.T) {
	require := require.New(t)

	v, err := ResolveEnum(pb.OptimizerValues, "OPTIMIZER_", "sgd")
	require.NoError(err)
	require.Equal(int32(pb.Optimizer_OPTIMIZER_SGD), v)

	v, err = ResolveEnum(pb.OptimizerValues, "OPTIMIZER_", "Adam")
	require.NoError(err)
	require.Equal(int32(pb.Optimizer_OPTIMIZER_ADAM), v)

	_, err = ResolveEnum(pb.OptimizerValues, "OPTIMIZER_", "unknown")
	require.Error(err)

	_, err = ResolveEnum(pb.OptimizerValues, "OPTIMIZER_", "unspecified")
	require.Error(err)
}

func TestStorageEnvOverride(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	t.Setenv("system.storage", "file://"+dir)
	t.Setenv("runtime.component.input.train_data", `{"namespace": "ns", "name": "train.csv"}`)
	t.Setenv("runtime.component.output.train_data", `{"namespace": "out", "name": "w.txt"}`)

	in, ok, err := InputFileFromEnv()
	require.NoError(err)
	require.True(ok)
	require.Equal(filepath.Join(dir, "ns", "train.csv"), in)

	out, ok, err := OutputFileFromEnv()
	require.NoError(err)
	require.True(ok)
	require.Equal(filepath.Join(dir, "out", "w.txt"), out)
	require.DirExists(filepath.Join(dir, "out"))
}

func TestStorageEnvRequiresFileScheme(t *testing.T) {
	require := require.New(t)

	t.Setenv("system.storage", "s3://bucket")
	t.Setenv("runtime.component.input.train_data", `{"namespace": "ns", "name": "a"}`)

	_, ok, err := InputFileFromEnv()
	require.NoError(err)
	require.False(ok)
}

func TestFeatureNumsFromEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv("runtime.component.parameter.feature_nums", `{"party0": 5, "party1": 7}`)
	m, err := FeatureNumsFromEnv()
	require.NoError(err)
	require.Equal(map[string]int32{"party0": 5, "party1": 7}, m)
}
