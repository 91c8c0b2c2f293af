package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"ETFQuant/internal/model"
)

// LocalCache is the on-disk copy of the dataset. It is never authoritative
// while the remote is reachable.
type LocalCache struct {
	Path string
}

func NewLocalCache(path string) *LocalCache {
	return &LocalCache{Path: path}
}

// Load reads the cached dataset. A missing file is an empty dataset.
func (c *LocalCache) Load() ([]model.IndicatorRow, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local cache: %w", err)
	}
	return DecodeRows(bytes.NewReader(data))
}

// Save replaces the cached dataset atomically.
func (c *LocalCache) Save(rows []model.IndicatorRow) error {
	data, err := MarshalRows(rows, true)
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.Path)
}

// MergeSnapshot applies the same full-day replace to the cached dataset and saves it.
func (c *LocalCache) MergeSnapshot(snap *model.Snapshot, order Ordering) ([]model.IndicatorRow, error) {
	existing, err := c.Load()
	if err != nil {
		return nil, err
	}
	merged := MergeRows(existing, snap.Rows, order)
	if err := c.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}
