package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/kcibridge/internal/node"
)

// timeLayout is used for created/updated columns. UTC with nanoseconds keeps
// values lexically sortable and round-trips time.Time exactly.
const timeLayout = time.RFC3339Nano

// marshalColumn converts a nested value to JSON TEXT for storage. Strings are
// stored as given; only the lineage key is normalized.
func marshalColumn(name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return string(data), nil
}

// unmarshalColumn parses a JSON TEXT column into v.
func unmarshalColumn(name, data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(name, s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return t.UTC(), nil
}

// regressionRow holds the serialized column values of a regression.
type regressionRow struct {
	lineage        string
	path           string
	revision       string
	artifacts      string
	regressionData string
}

func encodeRow(r *node.Regression) (regressionRow, error) {
	var row regressionRow
	var err error

	if row.lineage, err = r.Lineage().Key(); err != nil {
		return row, err
	}

	path := r.Path
	if path == nil {
		path = []string{}
	}
	if row.path, err = marshalColumn("path", path); err != nil {
		return row, err
	}
	if row.revision, err = marshalColumn("revision", r.Revision); err != nil {
		return row, err
	}

	artifacts := r.Artifacts
	if artifacts == nil {
		artifacts = map[string]string{}
	}
	if row.artifacts, err = marshalColumn("artifacts", artifacts); err != nil {
		return row, err
	}

	data := r.RegressionData
	if data == nil {
		data = []node.Node{}
	}
	if row.regressionData, err = marshalColumn("regression_data", data); err != nil {
		return row, err
	}

	return row, nil
}
