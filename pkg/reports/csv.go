package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// csvTable buffers a CSV document with a fixed header row.
type csvTable struct {
	buf    *bytes.Buffer
	writer *csv.Writer
}

func newCSVTable(headers []string) (*csvTable, error) {
	buf := &bytes.Buffer{}
	t := &csvTable{buf: buf, writer: csv.NewWriter(buf)}
	if err := t.writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return t, nil
}

func (t *csvTable) row(fields ...string) error {
	if err := t.writer.Write(fields); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (t *csvTable) reader() (io.Reader, error) {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return t.buf, nil
}
