// Package journal persists which (original, scale) pairs a generation run has
// already uploaded, so an interrupted run can resume without re-checking storage.
package journal

import (
	"bytes"
	"encoding/gob"
	"errors"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Version is incremented when the entry encoding changes.
const Version = 1

// KeySeparator separates the parts of a journal key.
const KeySeparator = '\x00'

// ErrNotFound is returned when no entry exists for a pair.
var ErrNotFound = errors.New("journal entry not found")

// Entry records one completed thumbnail upload.
type Entry struct {
	Version     int
	ThumbKey    string
	Size        int64
	ContentType string
	Generated   int64 // UnixNano
}

// GeneratedAt returns the upload time.
func (e *Entry) GeneratedAt() time.Time {
	return time.Unix(0, e.Generated).UTC()
}

// Encode serializes the entry using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the entry.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey builds the key for an original at scale within namespace ns.
// Format: <ns>\x00<original_key>\x00<scale>
func MakeKey(ns, originalKey string, scale int) []byte {
	return []byte(ns + string(KeySeparator) + originalKey + string(KeySeparator) + strconv.Itoa(scale))
}

// MakeKeyPrefix returns the prefix shared by every key in ns.
func MakeKeyPrefix(ns string) []byte {
	return []byte(ns + string(KeySeparator))
}

// Store wraps Badger for journal operations.
type Store struct {
	db *badger.DB
}

// Open opens or creates a journal at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for an original at scale.
func (s *Store) Get(ns, originalKey string, scale int) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(ns, originalKey, scale))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores an entry for an original at scale.
func (s *Store) Put(ns, originalKey string, scale int, entry *Entry) error {
	entry.Version = Version
	value, err := entry.Encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(ns, originalKey, scale), value)
	})
}

// Count returns the number of entries in ns.
func (s *Store) Count(ns string) (int, error) {
	prefix := MakeKeyPrefix(ns)
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// DeletePrefix removes every entry in ns.
func (s *Store) DeletePrefix(ns string) error {
	prefix := MakeKeyPrefix(ns)
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scope returns a view of the store bound to one namespace, typically the
// storage location a manifest was scanned from.
func (s *Store) Scope(ns string) *Scope {
	return &Scope{store: s, ns: ns}
}

// Scope is a Store restricted to one namespace.
type Scope struct {
	store *Store
	ns    string
}

// Done reports whether a thumbnail for originalKey at scale was recorded.
func (s *Scope) Done(originalKey string, scale int) (bool, error) {
	_, err := s.store.Get(s.ns, originalKey, scale)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Record marks originalKey at scale as generated.
func (s *Scope) Record(originalKey string, scale int, thumbKey string, size int64, contentType string) error {
	return s.store.Put(s.ns, originalKey, scale, &Entry{
		ThumbKey:    thumbKey,
		Size:        size,
		ContentType: contentType,
		Generated:   time.Now().UnixNano(),
	})
}

// Count returns the number of recorded pairs.
func (s *Scope) Count() (int, error) {
	return s.store.Count(s.ns)
}

// Reset forgets every recorded pair.
func (s *Scope) Reset() error {
	return s.store.DeletePrefix(s.ns)
}
