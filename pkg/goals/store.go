package goals

import (
	"fmt"

	"github.com/l3aro/go-cegar/pkg/cache"
	"github.com/l3aro/go-cegar/pkg/cegar"
)

// ResultStore persists unit outcomes between invocations. Only decided
// outcomes (safe or unsafe) are kept, so a lookup hit can stand in for a
// run.
type ResultStore struct {
	path    string
	entries *cache.LRU[Outcome]
}

// OpenResultStore loads the store at path. A missing file yields an empty
// store; an empty path yields a store that is never written.
func OpenResultStore(path string) (*ResultStore, error) {
	s := &ResultStore{path: path, entries: cache.New(cache.Options[Outcome]{})}
	if path == "" {
		return s, nil
	}
	if err := cache.LoadFromFile(s.entries, path); err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	return s, nil
}

// StoreKey identifies a unit of a program; program is usually the program
// fingerprint so that edited programs are analyzed again.
func StoreKey(program string, u Unit) string {
	return program + "/" + u.String()
}

// Lookup returns the stored outcome for key.
func (s *ResultStore) Lookup(key string) (Outcome, error) {
	o, ok := s.entries.Get(key)
	if !ok {
		return Outcome{}, fmt.Errorf("%s: %w", key, cache.ErrKeyNotFound)
	}
	return o, nil
}

// Record stores o under key if it is decided.
func (s *ResultStore) Record(key string, o Outcome) bool {
	if o.Status != StatusDone || o.Verdict == cegar.Unknown {
		return false
	}
	s.entries.Set(key, o)
	return true
}

// Len returns the number of stored outcomes.
func (s *ResultStore) Len() int { return s.entries.Len() }

// Save writes the store back to its file.
func (s *ResultStore) Save() error {
	if s.path == "" {
		return nil
	}
	if err := cache.PersistToFile(s.entries, s.path); err != nil {
		return fmt.Errorf("save result store: %w", err)
	}
	return nil
}
