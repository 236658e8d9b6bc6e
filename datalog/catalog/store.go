// Package catalog persists compiled topology descriptors in BadgerDB so a
// deployment can be recreated without recompiling its query.
package catalog

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// ErrNotFound is returned when no descriptor has the requested ID.
var ErrNotFound = errors.New("topology not found")

const keyPrefix = "topology/"

// Summary describes a stored descriptor
type Summary struct {
	ID        string
	Query     string
	Filters   int
	Joins     int
	Terminal  bool
	SizeBytes int
}

// Store keeps descriptors as YAML documents keyed by descriptor ID.
type Store struct {
	db *badger.DB
}

// Open opens the catalog at path. An empty path opens an in-memory catalog.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Badger logs to stderr by default

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return &Store{db: db}, nil
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Put stores d, replacing any descriptor with the same ID.
func (s *Store) Put(d *topology.Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("cannot store topology without ID")
	}
	data, err := d.EncodeYAML()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(d.ID), data)
	})
}

// Get loads and validates the descriptor with the given ID.
func (s *Store) Get(id string) (*topology.Descriptor, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return topology.DecodeYAML(data)
}

// List returns a summary of every stored descriptor, ordered by ID.
func (s *Store) List() ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				d, err := topology.DecodeYAML(val)
				if err != nil {
					return fmt.Errorf("corrupt entry %s: %w", item.Key(), err)
				}
				out = append(out, Summary{
					ID:        d.ID,
					Query:     d.Query,
					Filters:   d.Count(topology.KindFilter),
					Joins:     d.Count(topology.KindJoin),
					Terminal:  d.Terminal != nil,
					SizeBytes: len(val),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Delete removes a descriptor
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(key(id))
	})
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}
