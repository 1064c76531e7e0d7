package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"quadlend/storage"
)

var (
	pausePrefix = []byte("pause/")
	paramPrefix = []byte("params/")
)

// Store is the ledger's view over a storage.Database. Writes are staged in an
// overlay until Commit so a failed operation leaves no observable change.
type Store struct {
	db storage.Database

	mu      sync.RWMutex
	pending map[string][]byte
	deleted map[string]struct{}
	undo    []func()

	txMu sync.Mutex
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return append([]byte("kv:"), ethcrypto.Keccak256(key)...)
}

func (s *Store) read(key []byte) ([]byte, error) {
	s.mu.RLock()
	if value, ok := s.pending[string(key)]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	if _, ok := s.deleted[string(key)]; ok {
		s.mu.RUnlock()
		return nil, nil
	}
	s.mu.RUnlock()
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (s *Store) write(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, string(key))
	s.pending[string(key)] = append([]byte(nil), value...)
}

func (s *Store) remove(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, string(key))
	s.deleted[string(key)] = struct{}{}
}

// KVPut RLP-encodes the value and stages it under the supplied key.
func (s *Store) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.write(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed.
func (s *Store) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := s.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete stages removal of the key.
func (s *Store) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	s.remove(kvKey(key))
	return nil
}

// IsPaused reports whether the named module is halted.
func (s *Store) IsPaused(module string) bool {
	if s == nil || module == "" {
		return false
	}
	data, err := s.read(append(append([]byte(nil), pausePrefix...), module...))
	if err != nil || len(data) == 0 {
		return false
	}
	return data[0] == 1
}

// SetModulePaused records the pause flag for the named module.
func (s *Store) SetModulePaused(module string, paused bool) error {
	if module == "" {
		return fmt.Errorf("state: module name required")
	}
	key := append(append([]byte(nil), pausePrefix...), module...)
	if paused {
		s.write(key, []byte{1})
		return nil
	}
	s.remove(key)
	return nil
}

// ParamStoreSet stores a raw parameter document.
func (s *Store) ParamStoreSet(name string, value []byte) error {
	if name == "" {
		return fmt.Errorf("state: parameter name required")
	}
	s.write(append(append([]byte(nil), paramPrefix...), name...), value)
	return nil
}

// ParamStoreGet returns the raw parameter document, if any.
func (s *Store) ParamStoreGet(name string) ([]byte, bool, error) {
	data, err := s.read(append(append([]byte(nil), paramPrefix...), name...))
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	return data, true, nil
}

// Dirty reports the number of staged writes.
func (s *Store) Dirty() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) + len(s.deleted)
}

// Commit flushes the overlay to the database in a single batch.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(storage.Batch)
	for key, value := range s.pending {
		batch.Put([]byte(key), value)
	}
	for key := range s.deleted {
		batch.Delete([]byte(key))
	}
	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	s.pending = make(map[string][]byte)
	s.deleted = make(map[string]struct{})
	s.undo = nil
	return nil
}

// OnDiscard registers fn to run if the current overlay is discarded. Modules
// that cache state in memory use it to roll back alongside the overlay.
// Hooks run newest first and are dropped on Commit.
func (s *Store) OnDiscard(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, fn)
}

// Discard drops every staged write.
func (s *Store) Discard() {
	s.mu.Lock()
	undo := s.undo
	s.pending = make(map[string][]byte)
	s.deleted = make(map[string]struct{})
	s.undo = nil
	s.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Apply serialises fn against other Apply calls and commits its writes when it
// succeeds. Any error discards the overlay.
func (s *Store) Apply(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := fn(); err != nil {
		s.Discard()
		return err
	}
	return s.Commit()
}
