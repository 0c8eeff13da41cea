package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/kcibridge/internal/node"
)

// backends lists every RegressionStore implementation under test.
var backends = []struct {
	name string
	open func(t *testing.T) RegressionStore
}{
	{"sqlite", func(t *testing.T) RegressionStore { return createTestStore(t) }},
	{"badger", func(t *testing.T) RegressionStore { return createTestBadgerStore(t) }},
}

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBadgerStore creates a new Badger store in a temp directory.
func createTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("OpenBadger() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestNode creates a done node for the testA lineage.
func createTestNode(id string, result node.Result) node.Node {
	return node.Node{
		ID:    id,
		Name:  "testA",
		Path:  []string{"checkout", "testA"},
		Group: "g",
		Revision: node.RevisionDescriptor{
			Tree:   "mainline",
			URL:    "https://git.kernel.org/linux.git",
			Commit: "0123456789abcdef0123456789abcdef01234567",
			Branch: "master",
		},
		State:     node.StateDone,
		Result:    result,
		Artifacts: map[string]string{"log": "https://storage/" + id},
		Created:   "2023-01-01T00:00:00",
	}
}
