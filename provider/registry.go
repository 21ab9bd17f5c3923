package provider

import (
	"golang.org/x/exp/slices"
)

// Entry registers a provider together with transfer routing flags that are a
// property of the vendor, not of a single upload.
type Entry struct {
	Provider Provider
	// Relay routes the byte transfer through the same-origin relay because
	// the vendor disallows direct cross-origin upload.
	Relay bool
}

// Registry holds providers in a fixed order. Benchmarks iterate this order so
// runs stay comparable across sessions.
type Registry struct {
	entries []Entry
}

func NewRegistry(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

// Enabled returns the registered entries whose slug is in the enabled set,
// preserving registration order.
func (r *Registry) Enabled(slugs []string) []Entry {
	enabled := make([]Entry, 0, len(r.entries))

	for _, entry := range r.entries {
		if slices.Contains(slugs, entry.Provider.Slug()) {
			enabled = append(enabled, entry)
		}
	}

	return enabled
}

func (r *Registry) Lookup(slug string) (Entry, bool) {
	for _, entry := range r.entries {
		if entry.Provider.Slug() == slug {
			return entry, true
		}
	}

	return Entry{}, false
}

func (r *Registry) Slugs() []string {
	slugs := make([]string, len(r.entries))
	for i, entry := range r.entries {
		slugs[i] = entry.Provider.Slug()
	}

	return slugs
}
