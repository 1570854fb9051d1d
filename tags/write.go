package tags

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/google/renameio/v2"
)

// WriteFile atomically replaces the tag table at path with entries, one
// record per line in tag id order. Comment lines of the previous file are
// not preserved.
func WriteFile(path string, entries []Entry) error {
	data, err := Marshal(entries)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write tag table: %w", err)
	}
	return nil
}

// Marshal encodes entries in the tag table format. An empty table is refused
// since it could not be loaded again.
func Marshal(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("encode tag table: %w", ErrNoEntries)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if err := w.Write(formatRecord(e)); err != nil {
			return nil, fmt.Errorf("encode tag %q: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode tag table: %w", err)
	}
	return buf.Bytes(), nil
}
