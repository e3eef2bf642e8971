// Package mapping holds curated code-to-ontology and label-to-ontology tables.
package mapping

import (
	"fmt"

	"github.com/rmax-ai/ontoma/pkg/lookup"
)

// Row is one source row: a key and the targets it maps to.
type Row struct {
	Key     string
	Targets []string
}

// Table maps a code or label to an ordered list of ontology identifiers.
// It is immutable once built and safe for concurrent readers.
type Table struct {
	name    string
	entries map[string][]string
}

// NewTable builds a table from rows. Rows sharing a key are merged in
// order of appearance; repeated targets for a key are kept once.
func NewTable(name string, rows []Row) *Table {
	t := &Table{name: name, entries: make(map[string][]string)}
	seen := make(map[string]map[string]struct{})
	for _, r := range rows {
		if r.Key == "" {
			continue
		}
		set, ok := seen[r.Key]
		if !ok {
			set = make(map[string]struct{})
			seen[r.Key] = set
		}
		for _, target := range r.Targets {
			if target == "" {
				continue
			}
			if _, dup := set[target]; dup {
				continue
			}
			set[target] = struct{}{}
			t.entries[r.Key] = append(t.entries[r.Key], target)
		}
	}
	return t
}

// Name returns the table name used in errors and logs.
func (t *Table) Name() string { return t.name }

// Lookup returns the targets recorded for key, in load order.
func (t *Table) Lookup(key string) ([]string, error) {
	targets, ok := t.entries[key]
	if !ok {
		return nil, fmt.Errorf("%s key %q: %w", t.name, key, lookup.ErrNotFound)
	}
	out := make([]string, len(targets))
	copy(out, targets)
	return out, nil
}

// Len returns the number of keys.
func (t *Table) Len() int { return len(t.entries) }
