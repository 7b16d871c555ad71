// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package psi

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// readItems loads the selected key fields from a headered CSV, one item per
// row. Multi-field keys join the selected values with a comma, in the order
// the fields were requested.
func readItems(path string, fieldNames []string, precheck bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("psi: open file=%s failed: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("psi: read file=%s failed: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("psi: file=%s has no header row", path)
	}

	header := records[0]
	indices := make([]int, 0, len(fieldNames))
	for _, name := range fieldNames {
		idx := -1
		for i, col := range header {
			if strings.TrimSpace(col) == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("psi: field %q not in file=%s", name, path)
		}
		indices = append(indices, idx)
	}

	items := make([]string, 0, len(records)-1)
	seen := make(map[string]struct{}, len(records)-1)
	for rowNum, record := range records[1:] {
		parts := make([]string, len(indices))
		for i, idx := range indices {
			if idx >= len(record) {
				return nil, fmt.Errorf("psi: file=%s row %d is short", path, rowNum+1)
			}
			parts[i] = record[idx]
		}
		item := strings.Join(parts, ",")
		if precheck {
			if _, dup := seen[item]; dup {
				return nil, fmt.Errorf("psi: file=%s has duplicate item at row %d", path, rowNum+1)
			}
			seen[item] = struct{}{}
		}
		items = append(items, item)
	}
	return items, nil
}

// writeItems writes the matched records with the selected fields as header.
func writeItems(path string, fieldNames []string, items []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("psi: open file=%s failed: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(fieldNames); err != nil {
		return err
	}
	for _, item := range items {
		if err := writer.Write(strings.Split(item, ",")); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
