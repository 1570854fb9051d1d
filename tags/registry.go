package tags

import (
	"sort"
	"sync"

	"github.com/dotside-studios/nfc-juke/logging"
)

type resolved struct {
	entry  Entry
	action Action
}

// Registry maps tag identifiers to entries and their pre-resolved actions.
// It is safe for concurrent use; lookups take a read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]resolved
}

// NewRegistry builds a registry from entries. A later entry with the same
// tag id replaces an earlier one.
func NewRegistry(entries []Entry) *Registry {
	r := &Registry{}
	r.entries = buildIndex(entries)
	return r
}

func buildIndex(entries []Entry) map[string]resolved {
	logger := logging.WithComponent("tags")
	index := make(map[string]resolved, len(entries))
	for _, e := range entries {
		if prev, exists := index[e.ID]; exists {
			logger.Warn().
				Str("tag", e.ID).
				Str("previous", prev.entry.String()).
				Str("replacement", e.String()).
				Msg("duplicate tag id, later record wins")
		}
		index[e.ID] = resolved{entry: e, action: Resolve(e)}
	}
	return index
}

// Lookup returns the entry and resolved action for a tag id.
func (r *Registry) Lookup(id string) (Entry, Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.entries[id]
	if !ok {
		return Entry{}, nil, false
	}
	return res.entry, res.action, true
}

// Len returns the number of tags in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a snapshot of all entries sorted by tag id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, res := range r.entries {
		out = append(out, res.entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps the whole table atomically.
func (r *Registry) Replace(entries []Entry) {
	index := buildIndex(entries)

	r.mu.Lock()
	r.entries = index
	r.mu.Unlock()
}

// Put adds or replaces a single entry.
func (r *Registry) Put(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = resolved{entry: e, action: Resolve(e)}
	return nil
}

// Delete removes a tag. It reports whether the tag existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// ReloadFrom re-reads the table at path. On any error the current table is
// kept unchanged and the error is returned.
func (r *Registry) ReloadFrom(path string) error {
	entries, err := ReadFile(path)
	if err != nil {
		return err
	}
	r.Replace(entries)
	return nil
}
