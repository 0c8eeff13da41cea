package kcidb

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/kcibridge/internal/node"
)

// Transformer maps checkout nodes to revisions. It holds no state beyond
// its configuration and is safe for concurrent use.
type Transformer struct {
	// Origin identifies this CI system and prefixes every checkout id.
	Origin string

	// Submitter is recorded in misc.submitted_by. Empty means
	// DefaultSubmitter.
	Submitter string
}

// Transform builds the revision for n. It fails only when n.Created is not
// a parsable timestamp.
func (t Transformer) Transform(n node.Node) (Revision, error) {
	start, err := NormalizeTimestamp(n.Created)
	if err != nil {
		return Revision{}, fmt.Errorf("node %s: created: %w", n.ID, err)
	}

	submitter := t.Submitter
	if submitter == "" {
		submitter = DefaultSubmitter
	}

	return Revision{
		Builds: []map[string]any{},
		Checkouts: []Checkout{{
			ID:                  t.Origin + ":" + n.ID,
			Origin:              t.Origin,
			TreeName:            n.Revision.Tree,
			GitRepositoryURL:    n.Revision.URL,
			GitCommitHash:       n.Revision.Commit,
			GitRepositoryBranch: n.Revision.Branch,
			StartTime:           start,
			PatchsetHash:        "",
			Misc:                Misc{SubmittedBy: submitter},
		}},
		Tests:   []map[string]any{},
		Version: Version{Major: SchemaMajor, Minor: SchemaMinor},
	}, nil
}

// Accepted input layouts. Fractional seconds are accepted after the seconds
// field even though the layouts omit them.
var (
	offsetLayouts = []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

const (
	outputLayout      = "2006-01-02T15:04:05-07:00"
	outputLayoutMicro = "2006-01-02T15:04:05.000000-07:00"
)

// NormalizeTimestamp renders an ISO-8601 timestamp with an explicit UTC
// offset. A value without an offset is read as a UTC wall clock and gets
// +00:00 without shifting; a value with an offset keeps it. Precision is
// microseconds and the fraction is omitted when zero.
//
// NormalizeTimestamp(NormalizeTimestamp(s)) == NormalizeTimestamp(s).
func NormalizeTimestamp(s string) (string, error) {
	value := strings.TrimSpace(s)
	if len(value) > 10 && value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}

	t, err := parseTimestamp(value)
	if err != nil {
		return "", err
	}

	t = t.Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(outputLayout), nil
	}
	return t.Format(outputLayoutMicro), nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", value)
}
