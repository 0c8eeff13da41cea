package node

import "time"

// Regression groups a pass result and the fail results that followed it for
// one lineage.
//
// The mirrored fields (Name through Holdoff) always reflect the last node
// applied. Created is set once by NewRegression and never rewritten.
// RegressionData is append-only, in processing order.
type Regression struct {
	ID string `json:"id"`

	Name      string             `json:"name"`
	Path      []string           `json:"path"`
	Group     string             `json:"group,omitempty"`
	Revision  RevisionDescriptor `json:"revision"`
	State     State              `json:"state"`
	Result    Result             `json:"result,omitempty"`
	Artifacts map[string]string  `json:"artifacts,omitempty"`
	Timeout   string             `json:"timeout,omitempty"`
	Holdoff   string             `json:"holdoff,omitempty"`

	Parent         string    `json:"parent"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
	UpdatedSeq     int64     `json:"updated_seq"`
	RegressionData []Node    `json:"regression_data"`
}

// NewRegression starts a regression from its first contributing node.
func NewRegression(id string, n Node, now time.Time, seq int64) *Regression {
	r := &Regression{
		ID:      id,
		Created: now.UTC(),
	}
	r.Apply(n, now, seq)
	return r
}

// Apply mirrors n onto r, makes n the parent and appends it to the history.
// Created is left untouched.
func (r *Regression) Apply(n Node, now time.Time, seq int64) {
	c := n.clone()
	r.Name = c.Name
	r.Path = c.Path
	r.Group = c.Group
	r.Revision = c.Revision
	r.State = c.State
	r.Result = c.Result
	r.Artifacts = c.Artifacts
	r.Timeout = c.Timeout
	r.Holdoff = c.Holdoff
	r.Parent = c.ID
	r.Updated = now.UTC()
	r.UpdatedSeq = seq
	r.RegressionData = append(r.RegressionData, n.clone())
}

// Clone returns a deep copy of r.
func (r *Regression) Clone() *Regression {
	out := *r
	if r.Path != nil {
		out.Path = append([]string(nil), r.Path...)
	}
	if r.Artifacts != nil {
		out.Artifacts = make(map[string]string, len(r.Artifacts))
		for k, v := range r.Artifacts {
			out.Artifacts[k] = v
		}
	}
	if r.RegressionData != nil {
		out.RegressionData = make([]Node, len(r.RegressionData))
		for i, n := range r.RegressionData {
			out.RegressionData[i] = n.clone()
		}
	}
	return &out
}

// Contains reports whether a node with the given ID is already in the history.
func (r *Regression) Contains(nodeID string) bool {
	for _, n := range r.RegressionData {
		if n.ID == nodeID {
			return true
		}
	}
	return false
}

// Lineage returns the lineage of the regression's most recent node.
func (r *Regression) Lineage() Lineage {
	return Lineage{Name: r.Name, Path: r.Path, Group: r.Group}
}
