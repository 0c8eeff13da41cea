package testutil

import "github.com/roach88/kcibridge/internal/node"

// TestCommit is a well-formed 40 hex digit commit hash.
const TestCommit = "0123456789abcdef0123456789abcdef01234567"

// Node builds a done node with the given identity and result. Path is
// [name] and group is "g" unless changed by the caller.
func Node(id, name string, result node.Result) node.Node {
	return node.Node{
		ID:    id,
		Name:  name,
		Path:  []string{name},
		Group: "g",
		Revision: node.RevisionDescriptor{
			Tree:   "mainline",
			URL:    "https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git",
			Commit: TestCommit,
			Branch: "master",
		},
		State:   node.StateDone,
		Result:  result,
		Created: "2023-01-01T00:00:00",
	}
}

// Checkout builds a done checkout node as emitted for a new revision.
func Checkout(id, created string) node.Node {
	n := Node(id, "checkout", node.ResultPass)
	n.Group = ""
	n.Created = created
	return n
}
