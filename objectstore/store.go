// Package objectstore implements the typed, multi-indexed, session-based
// object store described in spec.md section 4.1. It generalizes the
// teacher's trie-backed core/state.Manager (a flat, prefixed-key store over
// a single mutable trie) into a store with explicit nested undo sessions: a
// stack of copy-on-write overlays sits above a durable storage.Database, so
// committing, squashing, and discarding a session never touches the
// underlying database until the store is told a block is irreversible.
//
// Unlike the teacher, this store does not use a Merkle trie: the teacher's
// own storage/trie.Trie depends on a TrieDB() method its storage.Database
// interface never declares (a latent gap in the teacher itself — see
// DESIGN.md), and spec.md's object-store contract never asks for Merkle
// proofs, only "typed objects addressable by primary id and by declared
// secondary indices, with nested undo sessions". A flat key-value overlay
// stack satisfies that contract directly.
package objectstore

import (
	"bytes"
	"fmt"
	"sync"

	"gamebankcore/storage"
)

// RW is the minimal read/write/iterate contract shared by the durable Store
// and every open Session, so table and index helpers work against either.
type RW interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error
}

// Store owns the durable database and the stack of open sessions layered on
// top of it. It is owned by a single writer, matching spec.md section 5's
// single-writer-thread model; callers are responsible for serializing access
// (the controller holds a write lock around every mutating call).
type Store struct {
	mu       sync.Mutex
	db       storage.Database
	sessions []*Session
	revision uint64
}

// NewStore wraps db as a durable object store with no open sessions.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Revision returns the store's monotonically increasing revision counter:
// the highest block number Commit has flushed to the durable database, or 0
// before the first Commit. It does not follow the head block (blocks still
// held in open sessions are not counted), and it is kept in memory only, so
// a newly constructed Store starts at 0.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Get resolves key by walking open sessions from newest to oldest before
// falling through to the durable database.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key, len(s.sessions))
}

func (s *Store) getLocked(key []byte, upTo int) ([]byte, bool, error) {
	for i := upTo - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if _, deleted := sess.deleted[string(key)]; deleted {
			return nil, false, nil
		}
		if v, ok := sess.overlay[string(key)]; ok {
			return v, true, nil
		}
	}
	v, err := s.db.Get(key)
	if err == storage.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put writes directly to the durable database. It must only be used before
// any session is open (e.g. genesis bootstrap); mutations during normal
// operation always go through a Session.
func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) != 0 {
		return fmt.Errorf("objectstore: direct Put with open sessions; use a Session")
	}
	return s.db.Put(key, value)
}

// Delete mirrors Put's direct-write restriction.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) != 0 {
		return fmt.Errorf("objectstore: direct Delete with open sessions; use a Session")
	}
	return s.db.Delete(key)
}

// Iterate scans keys sharing prefix, merging any open-session overlays over
// the durable database. fn returning false stops the scan early.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterateLocked(prefix, len(s.sessions), fn)
}

func (s *Store) iterateLocked(prefix []byte, upTo int, fn func(key, value []byte) (bool, error)) error {
	merged := map[string][]byte{}
	tombstone := map[string]struct{}{}

	it := s.db.NewIterator(prefix)
	for it.Next() {
		merged[string(it.Key())] = append([]byte(nil), it.Value()...)
	}
	it.Release()

	for i := 0; i < upTo; i++ {
		sess := s.sessions[i]
		for k := range sess.deleted {
			if bytes.HasPrefix([]byte(k), prefix) {
				tombstone[k] = struct{}{}
				delete(merged, k)
			}
		}
		for k, v := range sess.overlay {
			if !bytes.HasPrefix([]byte(k), prefix) {
				continue
			}
			delete(tombstone, k)
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		cont, err := fn([]byte(k), merged[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func sortStrings(s []string) {
	// Insertion sort is fine: table scans in this chain are bounded by
	// per-block working sets, never the whole keyspace.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Session is a nested, copy-on-write undo scope over the store, matching
// spec.md section 4.1: dropping it (Discard) rolls back, Squash merges into
// the parent, and a block-tagged root session becomes durable via Commit.
type Session struct {
	store    *Store
	index    int
	overlay  map[string][]byte
	deleted  map[string]struct{}
	blockNum uint64 // 0 unless this is a block-boundary session
	closed   bool
}

// Begin opens a new nested session on top of the store (or on top of
// whatever sessions are already open).
func (s *Store) Begin() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushLocked(0)
}

// BeginBlock opens a root session tagged with a block number. Only a
// root-level session (no sessions currently open) may be tagged, mirroring
// the controller opening one nested session per block in push-block.
func (s *Store) BeginBlock(blockNum uint64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) != 0 {
		return nil, fmt.Errorf("objectstore: BeginBlock requires no open sessions, found %d", len(s.sessions))
	}
	return s.pushLocked(blockNum), nil
}

func (s *Store) pushLocked(blockNum uint64) *Session {
	sess := &Session{
		store:    s,
		index:    len(s.sessions),
		overlay:  make(map[string][]byte),
		deleted:  make(map[string]struct{}),
		blockNum: blockNum,
	}
	s.sessions = append(s.sessions, sess)
	return sess
}

// Begin opens a child session nested inside this one.
func (sess *Session) Begin() (*Session, error) {
	sess.store.mu.Lock()
	defer sess.store.mu.Unlock()
	if sess.closed {
		return nil, fmt.Errorf("objectstore: session already closed")
	}
	if sess.store.sessions[len(sess.store.sessions)-1] != sess {
		return nil, fmt.Errorf("objectstore: only the topmost session may open a child")
	}
	return sess.store.pushLocked(0), nil
}

// BeginBlockChild opens a block-tagged session nested directly on top of
// this one, without requiring the stack to be empty. Each reversible block
// the controller applies gets its own such session stacked above the
// previous block's, so the stack as a whole is the reversible suffix of the
// chain: Commit(lib) later flushes the stack's oldest entries up to lib,
// and popping a block during a fork switch is exactly Discard on whichever
// session is currently topmost (section 4.1/4.3).
func (sess *Session) BeginBlockChild(blockNum uint64) (*Session, error) {
	sess.store.mu.Lock()
	defer sess.store.mu.Unlock()
	if sess.closed {
		return nil, fmt.Errorf("objectstore: session already closed")
	}
	if sess.store.sessions[len(sess.store.sessions)-1] != sess {
		return nil, fmt.Errorf("objectstore: only the topmost session may open a child")
	}
	return sess.store.pushLocked(blockNum), nil
}

func (sess *Session) requireTop() error {
	if sess.closed {
		return fmt.Errorf("objectstore: session already closed")
	}
	st := sess.store
	if len(st.sessions) == 0 || st.sessions[len(st.sessions)-1] != sess {
		return fmt.Errorf("objectstore: session is not the topmost open session")
	}
	return nil
}

// Get resolves key as of this session: its own overlay, then parents, then
// the durable database.
func (sess *Session) Get(key []byte) ([]byte, bool, error) {
	st := sess.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess.closed {
		return nil, false, fmt.Errorf("objectstore: session already closed")
	}
	return st.getLocked(key, sess.index+1)
}

// Put stages a write in this session's overlay.
func (sess *Session) Put(key, value []byte) error {
	if err := sess.requireTop(); err != nil {
		return err
	}
	cp := append([]byte(nil), value...)
	sess.overlay[string(key)] = cp
	delete(sess.deleted, string(key))
	return nil
}

// Delete stages a tombstone in this session's overlay.
func (sess *Session) Delete(key []byte) error {
	if err := sess.requireTop(); err != nil {
		return err
	}
	sess.deleted[string(key)] = struct{}{}
	delete(sess.overlay, string(key))
	return nil
}

// Iterate scans prefix as of this session.
func (sess *Session) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	st := sess.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess.closed {
		return fmt.Errorf("objectstore: session already closed")
	}
	return st.iterateLocked(prefix, sess.index+1, fn)
}

// Squash merges this session's overlay into its parent and closes it. The
// parent must exist (index > 0); block-root sessions are never squashed,
// only committed or discarded.
func (sess *Session) Squash() error {
	st := sess.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess.closed {
		return fmt.Errorf("objectstore: session already closed")
	}
	if len(st.sessions) == 0 || st.sessions[len(st.sessions)-1] != sess {
		return fmt.Errorf("objectstore: only the topmost session may be squashed")
	}
	if sess.index == 0 {
		return fmt.Errorf("objectstore: root session has no parent to squash into")
	}
	parent := st.sessions[sess.index-1]
	for k := range sess.deleted {
		parent.deleted[k] = struct{}{}
		delete(parent.overlay, k)
	}
	for k, v := range sess.overlay {
		delete(parent.deleted, k)
		parent.overlay[k] = v
	}
	st.sessions = st.sessions[:sess.index]
	sess.closed = true
	return nil
}

// Discard drops this session's overlay without merging it anywhere, the
// rollback half of spec.md section 4.1's undo-session contract.
func (sess *Session) Discard() error {
	st := sess.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess.closed {
		return nil
	}
	if len(st.sessions) == 0 || st.sessions[len(st.sessions)-1] != sess {
		return fmt.Errorf("objectstore: only the topmost session may be discarded")
	}
	st.sessions = st.sessions[:sess.index]
	sess.closed = true
	return nil
}

// BlockNum reports the block number this session was opened for via
// BeginBlock, or 0 for a plain nested session.
func (sess *Session) BlockNum() uint64 { return sess.blockNum }

// Commit flushes every root block-session whose block number is <= blockNum,
// in increasing order, into the durable database one Put/Delete call at a
// time (not as one atomic batch), and
// advances the store's revision. This is the commit(block_num) primitive of
// spec.md section 4.1: "flushes all sessions up to the given block's
// revision to durable storage and discards older undo records."
func (s *Store) Commit(blockNum uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushed := 0
	for _, sess := range s.sessions {
		if sess.blockNum == 0 || sess.blockNum > blockNum {
			break
		}
		for k := range sess.deleted {
			if err := s.db.Delete([]byte(k)); err != nil {
				return err
			}
		}
		for k, v := range sess.overlay {
			if err := s.db.Put([]byte(k), v); err != nil {
				return err
			}
		}
		sess.closed = true
		flushed++
		if sess.blockNum > s.revision {
			s.revision = sess.blockNum
		}
	}
	if flushed == 0 {
		return nil
	}
	remaining := s.sessions[flushed:]
	s.sessions = make([]*Session, 0, len(remaining))
	for i, sess := range remaining {
		sess.index = i
		s.sessions = append(s.sessions, sess)
	}
	return nil
}

// UndoAll discards every open session, rewinding the store to its last
// commit, per spec.md section 4.1.
func (s *Store) UndoAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.closed = true
	}
	s.sessions = nil
}

// OpenSessionCount reports how many sessions are currently stacked, for
// tests and diagnostics.
func (s *Store) OpenSessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
