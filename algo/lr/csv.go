// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lr

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/luxfi/interconnect/config"
)

// inputFileName applies the storage env override over the --dataset flag.
func inputFileName(flagPath string) (string, error) {
	if path, ok, err := config.InputFileFromEnv(); err != nil {
		return "", err
	} else if ok {
		return path, nil
	}
	return flagPath, nil
}

// outputFileName applies the storage env override over <lr_output>.<rank>.
func outputFileName(flagPath string, rank int32) (string, error) {
	if path, ok, err := config.OutputFileFromEnv(); err != nil {
		return "", err
	} else if ok {
		return path, nil
	}
	return fmt.Sprintf("%s.%d", flagPath, rank), nil
}

// readDataset loads a rectangular float CSV, skipping the first skipRows rows.
func readDataset(path string, skipRows int32) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lr: open file=%s failed: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("lr: read file=%s failed: %w", path, err)
	}
	if int32(len(records)) < skipRows {
		return nil, fmt.Errorf("lr: dataset %s has fewer rows than skip_rows=%d", path, skipRows)
	}
	records = records[skipRows:]

	rows := make([][]float64, len(records))
	for i, record := range records {
		rows[i] = make([]float64, len(record))
		for j, cell := range record {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("lr: parse %s row %d col %d: %w", path, i, j, err)
			}
			rows[i][j] = v
		}
	}
	return rows, nil
}

// writeWeights writes one reconstructed weight value per line.
func writeWeights(path string, weights []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lr: open file=%s failed: %w", path, err)
	}
	defer f.Close()
	for _, w := range weights {
		if _, err := fmt.Fprintf(f, "%v\n", w); err != nil {
			return err
		}
	}
	return nil
}
