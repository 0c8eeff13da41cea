package node

import (
	"encoding/json"
	"fmt"
)

// ValidationError describes a node that was rejected at the decode boundary.
type ValidationError struct {
	NodeID  string // Empty when the record had no usable identifier
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %s: %s: %s", e.NodeID, e.Field, e.Message)
	}
	return fmt.Sprintf("node: %s: %s", e.Field, e.Message)
}

// Validate checks required fields and enumerations.
// Returns the first violation found, or nil.
func (n Node) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "_id", Message: "is required"}
	}
	if n.Name == "" {
		return &ValidationError{NodeID: n.ID, Field: "name", Message: "is required"}
	}
	if n.State == "" {
		return &ValidationError{NodeID: n.ID, Field: "state", Message: "is required"}
	}
	if !n.State.Valid() {
		return &ValidationError{NodeID: n.ID, Field: "state", Message: fmt.Sprintf("unknown state %q", n.State)}
	}
	if !n.Result.Valid() {
		return &ValidationError{NodeID: n.ID, Field: "result", Message: fmt.Sprintf("unknown result %q", n.Result)}
	}
	return nil
}

// Decode parses a JSON node record and validates it.
func Decode(data []byte) (Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return Node{}, fmt.Errorf("decode node: %w", err)
	}
	if err := n.Validate(); err != nil {
		return Node{}, err
	}
	return n, nil
}
