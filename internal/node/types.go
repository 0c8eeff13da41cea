package node

// State is the lifecycle state of a node in the upstream store.
type State string

const (
	StateRunning   State = "running"
	StateAvailable State = "available"
	StateClosing   State = "closing"
	StateDone      State = "done"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateRunning, StateAvailable, StateClosing, StateDone:
		return true
	}
	return false
}

// Result is the outcome recorded on a node. The empty Result means the node
// has not produced one yet.
type Result string

const (
	ResultPass       Result = "pass"
	ResultFail       Result = "fail"
	ResultSkip       Result = "skip"
	ResultIncomplete Result = "incomplete"
)

// Valid reports whether r is empty or a known result.
func (r Result) Valid() bool {
	switch r {
	case "", ResultPass, ResultFail, ResultSkip, ResultIncomplete:
		return true
	}
	return false
}

// RevisionDescriptor identifies the source revision a node was built from.
type RevisionDescriptor struct {
	Tree     string `json:"tree"`
	URL      string `json:"url"`
	Commit   string `json:"commit"`
	Branch   string `json:"branch"`
	Describe string `json:"describe,omitempty"`
}

// Node is one state-change notification for a unit of build/test work.
//
// ID is assigned by the upstream store and is globally unique. Created is kept
// as the raw ISO-8601 string because the offset is optional on input.
type Node struct {
	ID        string             `json:"_id"`
	Name      string             `json:"name"`
	Path      []string           `json:"path"`
	Group     string             `json:"group,omitempty"`
	Revision  RevisionDescriptor `json:"revision"`
	State     State              `json:"state"`
	Result    Result             `json:"result,omitempty"`
	Artifacts map[string]string  `json:"artifacts,omitempty"`
	Timeout   string             `json:"timeout,omitempty"`
	Holdoff   string             `json:"holdoff,omitempty"`
	Created   string             `json:"created"`
}

// Lineage returns the key identifying "the same test" across runs.
func (n Node) Lineage() Lineage {
	return Lineage{Name: n.Name, Path: n.Path, Group: n.Group}
}

// Field returns the string form of a top-level field, as used by exact-match
// subscription filters. Unknown fields return ok=false.
func (n Node) Field(name string) (value string, ok bool) {
	switch name {
	case "_id", "id":
		return n.ID, true
	case "name":
		return n.Name, true
	case "group":
		return n.Group, true
	case "state":
		return string(n.State), true
	case "result":
		return string(n.Result), true
	case "revision.tree":
		return n.Revision.Tree, true
	case "revision.branch":
		return n.Revision.Branch, true
	}
	return "", false
}

// clone returns a deep copy so that stored history never aliases caller data.
func (n Node) clone() Node {
	out := n
	if n.Path != nil {
		out.Path = append([]string(nil), n.Path...)
	}
	if n.Artifacts != nil {
		out.Artifacts = make(map[string]string, len(n.Artifacts))
		for k, v := range n.Artifacts {
			out.Artifacts[k] = v
		}
	}
	return out
}
