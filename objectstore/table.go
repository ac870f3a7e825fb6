package objectstore

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Table is a typed, RLP-encoded collection of objects keyed by a primary id
// under a dedicated key prefix, the create/find/get/modify/remove contract
// of spec.md section 4.1 generalized with Go generics.
type Table[T any] struct {
	prefix []byte
}

// NewTable declares a table under the given unique prefix.
func NewTable[T any](prefix string) *Table[T] {
	return &Table[T]{prefix: []byte(prefix)}
}

func (t *Table[T]) key(id []byte) []byte {
	return append(append([]byte(nil), t.prefix...), id...)
}

// Get loads the object stored under id, reporting whether it exists.
func (t *Table[T]) Get(rw RW, id []byte) (T, bool, error) {
	var zero T
	raw, ok, err := rw.Get(t.key(id))
	if err != nil || !ok {
		return zero, ok, err
	}
	var obj T
	if err := rlp.DecodeBytes(raw, &obj); err != nil {
		return zero, false, fmt.Errorf("objectstore: decode %s: %w", t.prefix, err)
	}
	return obj, true, nil
}

// MustGet loads the object stored under id or returns an error if absent,
// matching spec.md's get<T,Index>(key) "reference or fatal" contract.
func (t *Table[T]) MustGet(rw RW, id []byte) (T, error) {
	obj, ok, err := t.Get(rw, id)
	if err != nil {
		return obj, err
	}
	if !ok {
		return obj, fmt.Errorf("objectstore: %s: object %x not found", t.prefix, id)
	}
	return obj, nil
}

// Put creates or overwrites the object stored under id.
func (t *Table[T]) Put(rw RW, id []byte, obj T) error {
	raw, err := rlp.EncodeToBytes(obj)
	if err != nil {
		return fmt.Errorf("objectstore: encode %s: %w", t.prefix, err)
	}
	return rw.Put(t.key(id), raw)
}

// Modify is a read-modify-write convenience wrapping Get+Put, matching
// spec.md's modify<T>(object, mutator) primitive.
func (t *Table[T]) Modify(rw RW, id []byte, mutate func(*T)) error {
	obj, err := t.MustGet(rw, id)
	if err != nil {
		return err
	}
	mutate(&obj)
	return t.Put(rw, id, obj)
}

// Remove deletes the object stored under id.
func (t *Table[T]) Remove(rw RW, id []byte) error {
	return rw.Delete(t.key(id))
}

// Iterate scans every object in primary-key order, stopping early when fn
// returns false.
func (t *Table[T]) Iterate(rw RW, fn func(id []byte, obj T) (bool, error)) error {
	return rw.Iterate(t.prefix, func(key, value []byte) (bool, error) {
		id := bytes.TrimPrefix(key, t.prefix)
		var obj T
		if err := rlp.DecodeBytes(value, &obj); err != nil {
			return false, fmt.Errorf("objectstore: decode %s: %w", t.prefix, err)
		}
		return fn(id, obj)
	})
}

// Index is a secondary, possibly non-unique index mapping an encoded
// secondary key to a primary id, stored as
// indexPrefix ‖ secondaryKey ‖ primaryID → primaryID so that range scans
// over the index are ordinary prefix iteration, matching spec.md section
// 4.1's "declared secondary indices" and section 4.3's by-number index.
type Index struct {
	prefix []byte
}

// NewIndex declares a secondary index under the given unique prefix.
func NewIndex(prefix string) *Index {
	return &Index{prefix: []byte(prefix)}
}

func (ix *Index) entryKey(secKey, id []byte) []byte {
	k := append(append([]byte(nil), ix.prefix...), secKey...)
	return append(k, id...)
}

// Put registers id under secKey.
func (ix *Index) Put(rw RW, secKey, id []byte) error {
	return rw.Put(ix.entryKey(secKey, id), id)
}

// Delete removes the (secKey, id) index entry.
func (ix *Index) Delete(rw RW, secKey, id []byte) error {
	return rw.Delete(ix.entryKey(secKey, id))
}

// Scan iterates every id indexed under keys sharing secPrefix, in ascending
// secondary-key order, stopping early when fn returns false.
func (ix *Index) Scan(rw RW, secPrefix []byte, fn func(id []byte) (bool, error)) error {
	prefix := append(append([]byte(nil), ix.prefix...), secPrefix...)
	return rw.Iterate(prefix, func(key, value []byte) (bool, error) {
		return fn(value)
	})
}
