package kcidb

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed kcidb.cue
var schemaSource []byte

// Validator checks revisions against the embedded KCIDB schema.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Validate
// serializes callers.
type Validator struct {
	mu       sync.Mutex
	ctx      *cue.Context
	revision cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("kcidb.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile kcidb schema: %w", err)
	}

	revision := schema.LookupPath(cue.ParsePath("#Revision"))
	if !revision.Exists() {
		return nil, fmt.Errorf("compile kcidb schema: #Revision not defined")
	}

	return &Validator{ctx: ctx, revision: revision}, nil
}

// IsValid reports whether rev conforms to the schema.
func (v *Validator) IsValid(rev Revision) bool {
	return v.Validate(rev) == nil
}

// Validate returns nil if rev conforms to the schema, or an error listing
// every violation.
func (v *Validator) Validate(rev Revision) error {
	data, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("encode revision: %w", err)
	}
	return v.ValidateJSON(data)
}

// ValidateJSON validates a raw revision document.
func (v *Validator) ValidateJSON(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.ctx.CompileBytes(data, cue.Filename("revision.json"))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("parse revision: %w", err)
	}

	unified := v.revision.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: cueerrors.Details(err, nil), err: err}
	}
	return nil
}

// SchemaError reports a revision that does not conform to the schema.
type SchemaError struct {
	Details string
	err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("revision does not match kcidb schema: %v", e.err)
}

func (e *SchemaError) Unwrap() error {
	return e.err
}
