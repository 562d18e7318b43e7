// Package credstore persists the console's bearer credential and cached
// profile under a single, stable pair of keys.
package credstore

import (
	"context"
	"errors"
	"sync"
)

// The only key names ever written. Anything else found in a backend is not
// a session.
const (
	KeyCredential = "workflowhub.credential"
	KeyProfile    = "workflowhub.profile"
)

// LegacyKeys are names used by earlier dashboard builds. They are removed by
// PurgeLegacy and never read as a session.
var LegacyKeys = []string{"token", "user", "workflowpro_user"}

var ErrNotFound = errors.New("credential entry not found")

// Entry is the raw persisted pair. Profile is the serialized profile; parsing
// and validation belong to the session manager.
type Entry struct {
	Credential string
	Profile    string
}

// Complete reports whether both halves are present.
func (e Entry) Complete() bool {
	return e.Credential != "" && e.Profile != ""
}

// Store is durable key/value persistence for one session.
//
// Put writes both keys as one logical write. Get returns ErrNotFound when
// neither key exists; when only one exists the partial entry is returned so
// the caller can treat it as malformed. Clear removes both keys and is not an
// error when they are already gone.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context) (Entry, error)
	Clear(ctx context.Context) error
	PurgeLegacy(ctx context.Context) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[KeyCredential] = e.Credential
	s.values[KeyProfile] = e.Profile
	return nil
}

func (s *MemoryStore) Get(_ context.Context) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entryFrom(s.values)
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, KeyCredential)
	delete(s.values, KeyProfile)
	return nil
}

func (s *MemoryStore) PurgeLegacy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range LegacyKeys {
		delete(s.values, k)
	}
	return nil
}

// SetRaw writes an arbitrary key. Used to seed legacy or corrupt state.
func (s *MemoryStore) SetRaw(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Raw returns a copy of every stored key.
func (s *MemoryStore) Raw() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func entryFrom(values map[string]string) (Entry, error) {
	cred, hasCred := values[KeyCredential]
	profile, hasProfile := values[KeyProfile]
	if !hasCred && !hasProfile {
		return Entry{}, ErrNotFound
	}
	return Entry{Credential: cred, Profile: profile}, nil
}
