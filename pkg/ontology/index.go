package ontology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rmax-ai/ontoma/pkg/lookup"
)

// DuplicatePolicy decides which node keeps a canonical name shared by several nodes.
type DuplicatePolicy int

const (
	KeepFirst DuplicatePolicy = iota
	KeepLast
	Reject
)

func (p DuplicatePolicy) String() string {
	switch p {
	case KeepFirst:
		return "first"
	case KeepLast:
		return "last"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy accepts "first", "last" or "reject".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "keep-first":
		return KeepFirst, nil
	case "last", "keep-last":
		return KeepLast, nil
	case "reject", "error":
		return Reject, nil
	default:
		return KeepFirst, fmt.Errorf("unknown duplicate policy: %s", s)
	}
}

// Collision records a key claimed by more than one node.
type Collision struct {
	Key     string   `json:"key"`
	IDs     []string `json:"ids"` // in graph order
	Synonym bool     `json:"synonym"`
	Kept    string   `json:"kept,omitempty"`
}

// Index maps labels of one ontology to node identifiers. It is immutable
// once built and safe for concurrent readers.
type Index struct {
	ontology   lookup.Ontology
	names      map[string]string
	synonyms   map[string]string
	collisions []Collision
}

// BuildIndex inverts g into a name index. Only EXACT synonyms are indexed;
// a synonym shared by several nodes is left out of the synonym map.
func BuildIndex(ont lookup.Ontology, g *Graph, policy DuplicatePolicy) (*Index, error) {
	ix := &Index{
		ontology: ont,
		names:    make(map[string]string, g.Len()),
		synonyms: make(map[string]string),
	}

	nameOwners := make(map[string][]string)
	synOwners := make(map[string][]string)

	g.Each(func(n Node) bool {
		if n.Name != "" {
			nameOwners[n.Name] = append(nameOwners[n.Name], n.ID)
		}
		for _, s := range n.Synonyms {
			if s.Scope != ScopeExact || s.Text == "" {
				continue
			}
			owners := synOwners[s.Text]
			if len(owners) > 0 && owners[len(owners)-1] == n.ID {
				continue
			}
			synOwners[s.Text] = append(owners, n.ID)
		}
		return true
	})

	for name, ids := range nameOwners {
		if len(ids) == 1 {
			ix.names[name] = ids[0]
			continue
		}
		c := Collision{Key: name, IDs: ids}
		switch policy {
		case Reject:
			return nil, fmt.Errorf("%s: name %q claimed by %s: %w", ont, name, strings.Join(ids, ", "), lookup.ErrAmbiguous)
		case KeepLast:
			c.Kept = ids[len(ids)-1]
		default:
			c.Kept = ids[0]
		}
		ix.names[name] = c.Kept
		ix.collisions = append(ix.collisions, c)
	}

	for text, ids := range synOwners {
		if len(ids) == 1 {
			ix.synonyms[text] = ids[0]
			continue
		}
		ix.collisions = append(ix.collisions, Collision{Key: text, IDs: ids, Synonym: true})
	}

	sort.Slice(ix.collisions, func(i, j int) bool {
		if ix.collisions[i].Synonym != ix.collisions[j].Synonym {
			return !ix.collisions[i].Synonym
		}
		return ix.collisions[i].Key < ix.collisions[j].Key
	})

	return ix, nil
}

// Ontology returns the ontology this index was built from.
func (ix *Index) Ontology() lookup.Ontology { return ix.ontology }

// Lookup returns the id whose canonical name equals name exactly.
func (ix *Index) Lookup(name string) (string, error) {
	if id, ok := ix.names[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%s name %q: %w", ix.ontology, name, lookup.ErrNotFound)
}

// LookupSynonym returns the id of the single node carrying name as an EXACT synonym.
func (ix *Index) LookupSynonym(name string) (string, error) {
	if id, ok := ix.synonyms[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%s synonym %q: %w", ix.ontology, name, lookup.ErrNotFound)
}

// Len returns the number of indexed canonical names.
func (ix *Index) Len() int { return len(ix.names) }

// SynonymLen returns the number of indexed synonyms.
func (ix *Index) SynonymLen() int { return len(ix.synonyms) }

// Collisions returns a copy of the collisions found while building.
func (ix *Index) Collisions() []Collision {
	out := make([]Collision, len(ix.collisions))
	copy(out, ix.collisions)
	return out
}
