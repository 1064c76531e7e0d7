package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by GetJSON when nothing is stored under the name.
var ErrNotFound = errors.New("params: parameter not found")

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store persists governance-controlled parameter documents. Values are
// marshalled as JSON so they read the same in state dumps and in the API.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// PutJSON encodes value and stores it under name.
func (s *Store) PutJSON(name string, value interface{}) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", name, err)
	}
	return state.ParamStoreSet(name, encoded)
}

// GetJSON decodes the document stored under name into out. It returns
// ErrNotFound when the name has never been written.
func (s *Store) GetJSON(name string, out interface{}) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	raw, ok, err := state.ParamStoreGet(name)
	if err != nil {
		return err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("params: decode %s: %w", name, err)
	}
	return nil
}

// Raw returns the stored document verbatim.
func (s *Store) Raw(name string) ([]byte, bool, error) {
	state, err := s.withState()
	if err != nil {
		return nil, false, err
	}
	return state.ParamStoreGet(name)
}
