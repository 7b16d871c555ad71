// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// paramEnvPrefix is prepended to every flag name when looking for an
// environment override.
const paramEnvPrefix = "runtime.component.parameter."

// ParamEnv returns the environment override for a flag, if any.
func ParamEnv(name string) (string, bool) {
	return os.LookupEnv(paramEnvPrefix + name)
}

func envString(name, flagValue string) string {
	if v, ok := ParamEnv(name); ok {
		return v
	}
	return flagValue
}

func envBool(name string, flagValue bool) bool {
	if v, ok := ParamEnv(name); ok {
		return strings.EqualFold(v, "true")
	}
	return flagValue
}

func envInt32(name string, flagValue int32) (int32, error) {
	if v, ok := ParamEnv(name); ok {
		i, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("config: env %s%s: %w", paramEnvPrefix, name, err)
		}
		return int32(i), nil
	}
	return flagValue, nil
}

func envInt64(name string, flagValue int64) (int64, error) {
	if v, ok := ParamEnv(name); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("config: env %s%s: %w", paramEnvPrefix, name, err)
		}
		return i, nil
	}
	return flagValue, nil
}

func envFloat(name string, flagValue float64) (float64, error) {
	if v, ok := ParamEnv(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("config: env %s%s: %w", paramEnvPrefix, name, err)
		}
		return f, nil
	}
	return flagValue, nil
}

// ResolveEnum resolves a textual flag value against an enum name table: the
// value is upcased and looked up under the given prefix. The zero enum value
// is rejected as unspecified.
func ResolveEnum(values map[string]int32, prefix, name string) (int32, error) {
	v, ok := values[prefix+strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("config: flag value %q is unsupported", name)
	}
	if v == 0 {
		return 0, fmt.Errorf("config: flag value %q is unspecified", name)
	}
	return v, nil
}

// ResolveEnums resolves a comma-separated list, dropping names that do not
// resolve.
func ResolveEnums(values map[string]int32, prefix, names string) []int32 {
	var out []int32
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if v, err := ResolveEnum(values, prefix, name); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// storage descriptor env variables; the storage root must be file://-schemed.
const (
	storageEnv        = "system.storage"
	storageHostURLEnv = "system.storage.host.url"
	inputDataEnv      = "runtime.component.input.train_data"
	outputDataEnv     = "runtime.component.output.train_data"

	fileScheme = "file://"
)

type storageDescriptor struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func storageRoot() (string, bool) {
	for _, env := range []string{storageEnv, storageHostURLEnv} {
		if v, ok := os.LookupEnv(env); ok && strings.HasPrefix(v, fileScheme) {
			return strings.TrimPrefix(v, fileScheme), true
		}
	}
	return "", false
}

func ioFileFromEnv(descriptorEnv string, mkdir bool) (string, bool, error) {
	root, ok := storageRoot()
	if !ok {
		return "", false, nil
	}
	raw, ok := os.LookupEnv(descriptorEnv)
	if !ok {
		return "", false, nil
	}
	var desc storageDescriptor
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return "", false, fmt.Errorf("config: parse %s: %w", descriptorEnv, err)
	}
	dir := filepath.Join(root, desc.Namespace)
	if mkdir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return filepath.Join(dir, desc.Name), true, nil
}

// InputFileFromEnv resolves the training input override, if configured.
func InputFileFromEnv() (string, bool, error) {
	return ioFileFromEnv(inputDataEnv, false)
}

// OutputFileFromEnv resolves the training output override, creating the
// namespace directory.
func OutputFileFromEnv() (string, bool, error) {
	return ioFileFromEnv(outputDataEnv, true)
}

// LabelOwnerFromEnv returns the label-owning party id; consulted only when
// the handshake is disabled.
func LabelOwnerFromEnv() (string, bool) {
	return ParamEnv("label_owner")
}

// FeatureNumsFromEnv returns the party-id to feature-count map; consulted
// only when the handshake is disabled.
func FeatureNumsFromEnv() (map[string]int32, error) {
	raw, ok := ParamEnv("feature_nums")
	if !ok {
		return nil, fmt.Errorf("config: feature_nums not in env")
	}
	var m map[string]int32
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("config: parse feature_nums: %w", err)
	}
	return m, nil
}
