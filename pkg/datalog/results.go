package datalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Results maps each test name to the telemetry records of its run.
type Results map[string][][]float64

// FileName is the name results are saved under for a given time.
func FileName(now time.Time) string {
	return now.Format("20060102-1504-05") + "-data.json"
}

// Save writes the results as indented JSON into dir and returns the path.
func (r Results) Save(dir string, now time.Time) (string, error) {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

// Load reads results saved by Save.
func Load(path string) (Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}
