package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/roach88/kcibridge/internal/node"
)

// Key layout:
//
//	regression/<id>                      -> CBOR badgerRecord
//	lineage/<lineage key>/<seq>/<id>     -> empty (seq is 8-byte big endian)
//	meta/last_seq                        -> 8-byte big endian
var (
	regressionPrefix = []byte("regression/")
	lineagePrefix    = []byte("lineage/")
	lastSeqKey       = []byte("meta/last_seq")
)

// badgerRecord is the stored value. Lineage is kept alongside the regression
// so updates can remove the previous index entry.
type badgerRecord struct {
	Lineage    string          `cbor:"lineage"`
	Regression node.Regression `cbor:"regression"`
}

// BadgerStore implements RegressionStore with Badger.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database directory at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // badger logs bypass slog
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func regressionKey(id string) []byte {
	return append(append([]byte{}, regressionPrefix...), id...)
}

func lineageKeyPrefix(lineage string) []byte {
	k := append([]byte{}, lineagePrefix...)
	k = append(k, lineage...)
	return append(k, '/')
}

func lineageIndexKey(lineage string, seq int64, id string) []byte {
	k := lineageKeyPrefix(lineage)
	k = binary.BigEndian.AppendUint64(k, uint64(seq))
	k = append(k, '/')
	return append(k, id...)
}

// CreateRegression inserts a new regression record.
func (s *BadgerStore) CreateRegression(ctx context.Context, r *node.Regression) error {
	lineage, err := r.Lineage().Key()
	if err != nil {
		return fmt.Errorf("create regression: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(regressionKey(r.ID))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putRecord(txn, badgerRecord{Lineage: lineage, Regression: *r})
	})
	if err != nil {
		return fmt.Errorf("create regression %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRegression rewrites an existing regression, keeping the stored
// Created value.
func (s *BadgerStore) UpdateRegression(ctx context.Context, r *node.Regression) error {
	lineage, err := r.Lineage().Key()
	if err != nil {
		return fmt.Errorf("update regression: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		prev, err := getRecord(txn, r.ID)
		if err != nil {
			return err
		}
		if err := txn.Delete(lineageIndexKey(prev.Lineage, prev.Regression.UpdatedSeq, r.ID)); err != nil {
			return err
		}
		next := *r
		next.Created = prev.Regression.Created
		return putRecord(txn, badgerRecord{Lineage: lineage, Regression: next})
	})
	if err != nil {
		return fmt.Errorf("update regression %s: %w", r.ID, err)
	}
	return nil
}

// LookupByLineage returns the most recently updated regression for lineage.
func (s *BadgerStore) LookupByLineage(ctx context.Context, lineage node.Lineage) (*node.Regression, error) {
	key, err := lineage.Key()
	if err != nil {
		return nil, fmt.Errorf("lookup regression: %w", err)
	}
	prefix := lineageKeyPrefix(key)

	var out *node.Regression
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration yields the highest seq first; among equal seqs the
		// lowest id wins, so keep walking while the seq is unchanged.
		var bestID string
		var bestSeq []byte
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			rest := it.Item().KeyCopy(nil)[len(prefix):]
			if len(rest) < 9 {
				continue
			}
			seq, id := rest[:8], string(rest[9:])
			if bestSeq != nil && !bytes.Equal(seq, bestSeq) {
				break
			}
			bestSeq = seq
			bestID = id
		}
		if bestSeq == nil {
			return nil
		}

		rec, err := getRecord(txn, bestID)
		if err != nil {
			return err
		}
		out = &rec.Regression
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup regression %s: %w", lineage, err)
	}
	return out, nil
}

// GetRegression retrieves a single regression by ID.
func (s *BadgerStore) GetRegression(ctx context.Context, id string) (*node.Regression, error) {
	var out *node.Regression
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		out = &rec.Regression
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get regression %s: %w", id, err)
	}
	return out, nil
}

// ListRegressions returns all regressions ordered by updated_seq ASC, id ASC.
func (s *BadgerStore) ListRegressions(ctx context.Context) ([]*node.Regression, error) {
	regressions := []*node.Regression{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = regressionPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(regressionPrefix); it.Next() {
			var rec badgerRecord
			err := it.Item().Value(func(v []byte) error {
				return unmarshalCBOR(v, &rec)
			})
			if err != nil {
				return err
			}
			r := rec.Regression
			regressions = append(regressions, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list regressions: %w", err)
	}

	sort.Slice(regressions, func(i, j int) bool {
		if regressions[i].UpdatedSeq != regressions[j].UpdatedSeq {
			return regressions[i].UpdatedSeq < regressions[j].UpdatedSeq
		}
		return regressions[i].ID < regressions[j].ID
	})
	return regressions, nil
}

// LastSeq returns the highest updated_seq written, or 0.
func (s *BadgerStore) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		seq, err = readLastSeq(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

func getRecord(txn *badger.Txn, id string) (badgerRecord, error) {
	var rec badgerRecord
	item, err := txn.Get(regressionKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	err = item.Value(func(v []byte) error {
		return unmarshalCBOR(v, &rec)
	})
	return rec, err
}

func putRecord(txn *badger.Txn, rec badgerRecord) error {
	data, err := marshalCBOR(rec)
	if err != nil {
		return fmt.Errorf("encode regression: %w", err)
	}
	r := rec.Regression
	if err := txn.Set(regressionKey(r.ID), data); err != nil {
		return err
	}
	if err := txn.Set(lineageIndexKey(rec.Lineage, r.UpdatedSeq, r.ID), nil); err != nil {
		return err
	}

	last, err := readLastSeq(txn)
	if err != nil {
		return err
	}
	if r.UpdatedSeq > last {
		return txn.Set(lastSeqKey, binary.BigEndian.AppendUint64(nil, uint64(r.UpdatedSeq)))
	}
	return nil
}

func readLastSeq(txn *badger.Txn) (int64, error) {
	item, err := txn.Get(lastSeqKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq int64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("corrupt last_seq value")
		}
		seq = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return seq, err
}
