package node

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string, result Result) Node {
	return Node{
		ID:    id,
		Name:  "testA",
		Path:  []string{"checkout", "kbuild", "testA"},
		Group: "g",
		Revision: RevisionDescriptor{
			Tree:   "mainline",
			URL:    "https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git",
			Commit: "0123456789abcdef0123456789abcdef01234567",
			Branch: "master",
		},
		State:     StateDone,
		Result:    result,
		Artifacts: map[string]string{"log": "https://storage/" + id + ".log"},
		Timeout:   "2023-01-02T00:00:00",
		Holdoff:   "2023-01-01T00:10:00",
		Created:   "2023-01-01T00:00:00",
	}
}

func TestDecode_Valid(t *testing.T) {
	data := []byte(`{
		"_id": "n1", "name": "checkout", "path": ["checkout"], "group": "",
		"revision": {"tree": "mainline", "url": "https://example.org/linux.git",
		             "commit": "abc", "branch": "master"},
		"state": "done", "result": "pass", "created": "2023-01-01T00:00:00"
	}`)

	n, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, StateDone, n.State)
	assert.Equal(t, ResultPass, n.Result)
	assert.Equal(t, "mainline", n.Revision.Tree)
	assert.Equal(t, []string{"checkout"}, n.Path)
}

func TestDecode_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"missing id", `{"name": "x", "state": "done"}`, "_id"},
		{"missing name", `{"_id": "n1", "state": "done"}`, "name"},
		{"missing state", `{"_id": "n1", "name": "x"}`, "state"},
		{"unknown state", `{"_id": "n1", "name": "x", "state": "exploded"}`, "state"},
		{"unknown result", `{"_id": "n1", "name": "x", "state": "done", "result": "meh"}`, "result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %T", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode node")
}

func TestNode_Field(t *testing.T) {
	n := testNode("n1", ResultPass)

	v, ok := n.Field("state")
	require.True(t, ok)
	assert.Equal(t, "done", v)

	v, ok = n.Field("name")
	require.True(t, ok)
	assert.Equal(t, "testA", v)

	_, ok = n.Field("no_such_field")
	assert.False(t, ok)
}

func TestNewRegression(t *testing.T) {
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	n := testNode("n1", ResultPass)

	r := NewRegression("r1", n, now, 1)

	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, "n1", r.Parent)
	assert.Equal(t, now, r.Created)
	assert.Equal(t, now, r.Updated)
	assert.Equal(t, int64(1), r.UpdatedSeq)
	assert.Equal(t, n.Name, r.Name)
	assert.Equal(t, n.Path, r.Path)
	assert.Equal(t, n.Group, r.Group)
	assert.Equal(t, n.Revision, r.Revision)
	assert.Equal(t, n.Result, r.Result)
	require.Len(t, r.RegressionData, 1)
	assert.Equal(t, n, r.RegressionData[0])
}

func TestRegression_ApplyPreservesCreated(t *testing.T) {
	created := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	n1 := testNode("n1", ResultPass)
	n2 := testNode("n2", ResultFail)
	n2.Revision.Commit = "fedcba9876543210fedcba9876543210fedcba98"

	r := NewRegression("r1", n1, created, 1)
	r.Apply(n2, later, 2)

	assert.Equal(t, created, r.Created)
	assert.Equal(t, later, r.Updated)
	assert.Equal(t, "n2", r.Parent)
	assert.Equal(t, ResultFail, r.Result)
	assert.Equal(t, n2.Revision, r.Revision)
	require.Len(t, r.RegressionData, 2)
	assert.Equal(t, "n1", r.RegressionData[0].ID)
	assert.Equal(t, "n2", r.RegressionData[1].ID)
}

func TestRegression_ApplyDoesNotAliasNode(t *testing.T) {
	n := testNode("n1", ResultPass)
	r := NewRegression("r1", n, time.Now(), 1)

	n.Path[0] = "mutated"
	n.Artifacts["log"] = "mutated"

	assert.Equal(t, "checkout", r.Path[0])
	assert.Equal(t, "checkout", r.RegressionData[0].Path[0])
	assert.NotEqual(t, "mutated", r.Artifacts["log"])
}

func TestRegression_CloneIsIndependent(t *testing.T) {
	r := NewRegression("r1", testNode("n1", ResultPass), time.Now(), 1)
	c := r.Clone()
	assert.Equal(t, r, c)

	c.Apply(testNode("n2", ResultFail), time.Now(), 2)
	c.Path[0] = "mutated"
	c.Artifacts["log"] = "mutated"
	c.RegressionData[0].Name = "mutated"

	assert.Equal(t, "n1", r.Parent)
	assert.Equal(t, ResultPass, r.Result)
	assert.Len(t, r.RegressionData, 1)
	assert.Equal(t, "checkout", r.Path[0])
	assert.NotEqual(t, "mutated", r.Artifacts["log"])
	assert.NotEqual(t, "mutated", r.RegressionData[0].Name)
}

func TestRegression_Contains(t *testing.T) {
	r := NewRegression("r1", testNode("n1", ResultPass), time.Now(), 1)

	assert.True(t, r.Contains("n1"))
	assert.False(t, r.Contains("n2"))
}
