// Package ontology parses OBO ontology graphs and builds the exact-match
// indices the resolver consults before any remote service.
package ontology

// Synonym scopes as used by the OBO format.
const (
	ScopeExact   = "EXACT"
	ScopeRelated = "RELATED"
	ScopeBroad   = "BROAD"
	ScopeNarrow  = "NARROW"
)

// Synonym is an alternative label of a term.
type Synonym struct {
	Text  string `json:"text"`
	Scope string `json:"scope"`
}

// Node is a single ontology term.
type Node struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Synonyms []Synonym `json:"synonyms,omitempty"`
	Parents  []string  `json:"parents,omitempty"` // is_a targets
}

// Graph is a parsed ontology. It is built once and read-only afterwards.
type Graph struct {
	nodes []*Node
	byID  map[string]*Node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byID: make(map[string]*Node)}
}

// add appends n, merging into an earlier node with the same id.
func (g *Graph) add(n *Node) {
	if prev, ok := g.byID[n.ID]; ok {
		if prev.Name == "" {
			prev.Name = n.Name
		}
		prev.Synonyms = append(prev.Synonyms, n.Synonyms...)
		prev.Parents = append(prev.Parents, n.Parents...)
		return
	}
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Each calls fn for every node in file order. Iteration stops when fn returns false.
func (g *Graph) Each(fn func(Node) bool) {
	for _, n := range g.nodes {
		if !fn(*n) {
			return
		}
	}
}

// EdgeCount returns the number of is_a edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, n := range g.nodes {
		total += len(n.Parents)
	}
	return total
}
