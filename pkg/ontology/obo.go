package ontology

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rmax-ai/ontoma/pkg/fetch"
)

const maxOBOLine = 1 << 20

// Load fetches an OBO file from a URL or path and parses it.
func Load(ctx context.Context, client *http.Client, source string) (*Graph, error) {
	rc, err := fetch.Open(ctx, client, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	g, err := ParseOBO(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	return g, nil
}

// ParseOBO reads [Term] stanzas from r. Obsolete terms and terms without an
// id are skipped; other stanza types are ignored.
func ParseOBO(r io.Reader) (*Graph, error) {
	g := NewGraph()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxOBOLine)

	var (
		cur      *Node
		inTerm   bool
		obsolete bool
		lineNo   int
	)

	flush := func() {
		if inTerm && cur != nil && cur.ID != "" && !obsolete {
			g.add(cur)
		}
		cur, inTerm, obsolete = nil, false, false
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			if line == "[Term]" {
				inTerm = true
				cur = &Node{}
			}
			continue
		}
		if !inTerm {
			continue
		}

		tag, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: malformed tag-value pair", lineNo)
		}
		value = strings.TrimSpace(value)

		switch tag {
		case "id":
			cur.ID = stripComment(value)
		case "name":
			cur.Name = unescape(value)
		case "synonym":
			syn, err := parseSynonym(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cur.Synonyms = append(cur.Synonyms, syn)
		case "is_a":
			if parent := stripComment(value); parent != "" {
				cur.Parents = append(cur.Parents, parent)
			}
		case "is_obsolete":
			obsolete = stripComment(value) == "true"
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read failed after line %d: %w", lineNo, err)
	}
	flush()

	return g, nil
}

// parseSynonym reads `"text" SCOPE [xrefs]`.
func parseSynonym(value string) (Synonym, error) {
	if !strings.HasPrefix(value, `"`) {
		return Synonym{}, fmt.Errorf("synonym is not quoted: %q", value)
	}
	var sb strings.Builder
	i := 1
	for ; i < len(value); i++ {
		c := value[i]
		if c == '\\' && i+1 < len(value) {
			i++
			sb.WriteByte(value[i])
			continue
		}
		if c == '"' {
			break
		}
		sb.WriteByte(c)
	}
	if i >= len(value) {
		return Synonym{}, fmt.Errorf("unterminated synonym: %q", value)
	}

	scope := ScopeRelated
	if fields := strings.Fields(value[i+1:]); len(fields) > 0 {
		switch fields[0] {
		case ScopeExact, ScopeRelated, ScopeBroad, ScopeNarrow:
			scope = fields[0]
		}
	}
	return Synonym{Text: sb.String(), Scope: scope}, nil
}

// stripComment drops trailing "! comment" and "{modifier}" parts.
func stripComment(value string) string {
	if i := strings.Index(value, " !"); i >= 0 {
		value = value[:i]
	}
	if i := strings.Index(value, " {"); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

func unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var sb strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+1 < len(value) {
			i++
		}
		sb.WriteByte(value[i])
	}
	return sb.String()
}
