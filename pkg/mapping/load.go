package mapping

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rmax-ai/ontoma/pkg/fetch"
)

// Format describes the layout of a delimited mapping file.
type Format struct {
	Comma rune

	// Header means the first record names the columns; KeyColumn and
	// TargetColumn are then resolved by name.
	Header bool

	KeyColumn    string
	TargetColumn string

	// KeyIndex and TargetIndex are used when Header is false.
	KeyIndex    int
	TargetIndex int

	// TargetSeparator splits one target cell into several targets.
	TargetSeparator string
}

// OMIMFormat reads the OMIM-to-EFO table: tab separated, no header,
// OMIM code in the first column and the ontology URI in the second.
var OMIMFormat = Format{
	Comma:       '\t',
	KeyIndex:    0,
	TargetIndex: 1,
}

// ZoomaFormat reads a curated Zooma annotation export.
var ZoomaFormat = Format{
	Comma:           '\t',
	Header:          true,
	KeyColumn:       "PROPERTY_VALUE",
	TargetColumn:    "SEMANTIC_TAG",
	TargetSeparator: "|",
}

// Load fetches source and builds a table from it.
func Load(ctx context.Context, client *http.Client, name, source string, format Format) (*Table, error) {
	rc, err := fetch.Open(ctx, client, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := ReadRows(rc, format)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return NewTable(name, rows), nil
}

// ReadRows parses r according to format.
func ReadRows(r io.Reader, format Format) ([]Row, error) {
	cr := csv.NewReader(r)
	if format.Comma != 0 {
		cr.Comma = format.Comma
	}
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	keyIdx, targetIdx := format.KeyIndex, format.TargetIndex
	if format.Header {
		header, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		keyIdx, targetIdx = -1, -1
		for i, col := range header {
			switch strings.TrimSpace(col) {
			case format.KeyColumn:
				keyIdx = i
			case format.TargetColumn:
				targetIdx = i
			}
		}
		if keyIdx < 0 || targetIdx < 0 {
			return nil, fmt.Errorf("header lacks %q or %q", format.KeyColumn, format.TargetColumn)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if keyIdx >= len(rec) || targetIdx >= len(rec) {
			continue
		}
		key := strings.TrimSpace(rec[keyIdx])
		cell := strings.TrimSpace(rec[targetIdx])
		if key == "" || cell == "" {
			continue
		}

		var targets []string
		if format.TargetSeparator != "" {
			for _, part := range strings.Split(cell, format.TargetSeparator) {
				if part = strings.TrimSpace(part); part != "" {
					targets = append(targets, part)
				}
			}
		} else {
			targets = []string{cell}
		}
		rows = append(rows, Row{Key: key, Targets: targets})
	}
	return rows, nil
}
