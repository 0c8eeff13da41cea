package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kcibridge/internal/node"
)

// FileChannel replays a finite list of node records read from a YAML or
// JSON file. Each subscription sees the whole list in order and then
// returns ErrClosed.
type FileChannel struct {
	records [][]byte
}

// LoadFile reads path, which must hold a YAML or JSON sequence of node
// objects. Records are decoded lazily so a bad entry surfaces as
// *MalformedError from Receive rather than failing the load.
func LoadFile(path string) (*FileChannel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := ParseRecords(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// ParseRecords builds a FileChannel from YAML or JSON bytes.
func ParseRecords(data []byte) (*FileChannel, error) {
	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	records := make([][]byte, 0, len(raw))
	for i, item := range raw {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, b)
	}
	return &FileChannel{records: records}, nil
}

// Len returns the number of records.
func (c *FileChannel) Len() int {
	return len(c.records)
}

func (c *FileChannel) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fileSubscription{records: c.records, filter: filter}, nil
}

type fileSubscription struct {
	mu      sync.Mutex
	records [][]byte
	pos     int
	filter  Filter
	closed  bool
}

func (s *fileSubscription) ID() string {
	return "file"
}

func (s *fileSubscription) Receive(ctx context.Context) (node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return node.Node{}, err
		}
		if s.closed || s.pos >= len(s.records) {
			return node.Node{}, ErrClosed
		}

		data := s.records[s.pos]
		s.pos++

		n, err := node.Decode(data)
		if err != nil {
			return node.Node{}, &MalformedError{Data: data, Err: err}
		}
		if s.filter.Matches(n) {
			return n, nil
		}
	}
}

func (s *fileSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
