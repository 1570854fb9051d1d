package tags

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/dotside-studios/nfc-juke/logging"
)

const byteOrderMark = "\ufeff"

// Load reads the tag table at path and returns a populated Registry.
// It fails with a *ConfigError when the file cannot be read or parsed, or
// when it yields zero entries.
func Load(path string) (*Registry, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(entries), nil
}

// ReadFile parses the tag table at path without building a registry.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	entries, err := Parse(f, path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &ConfigError{Path: path, Err: ErrNoEntries}
	}
	return entries, nil
}

// Parse reads delimited records of the form
//
//	tag_id,action_kind[,parameters[,comment]]
//
// Fields follow RFC 4180 quoting, so a parameter holding a comma must be
// quoted. Lines starting with '#' are ignored. A record with more than four
// fields keeps its last field as the comment and re-joins the middle fields
// as the parameters. Records without a tag id or action kind are skipped.
func Parse(r io.Reader, name string) ([]Entry, error) {
	logger := logging.WithComponent("tags")

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	var entries []Entry
	first := true
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ConfigError{Path: name, Line: pe.Line, Err: pe.Err}
			}
			return nil, &ConfigError{Path: name, Err: err}
		}
		line, _ := cr.FieldPos(0)

		if first {
			record[0] = strings.TrimPrefix(record[0], byteOrderMark)
			first = false
		}

		entry, ok := entryFromRecord(record)
		if !ok {
			logger.Warn().
				Str("file", name).
				Int("line", line).
				Strs("record", record).
				Msg("skipping malformed tag record")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func entryFromRecord(record []string) (Entry, bool) {
	if len(record) < 2 {
		return Entry{}, false
	}

	entry := Entry{ID: strings.TrimSpace(record[0]), Kind: strings.TrimSpace(record[1])}
	switch trailing := record[2:]; len(trailing) {
	case 0:
	case 1:
		entry.Parameters = strings.TrimSpace(trailing[0])
	default:
		// Unquoted commas inside the parameters split them; rejoin the raw
		// fields so inner spacing survives.
		entry.Parameters = strings.TrimSpace(strings.Join(trailing[:len(trailing)-1], ","))
		entry.Comment = strings.TrimSpace(trailing[len(trailing)-1])
	}

	if entry.Validate() != nil {
		return Entry{}, false
	}
	return entry, true
}

// formatRecord is the inverse of entryFromRecord.
func formatRecord(e Entry) []string {
	switch {
	case e.Comment != "":
		return []string{e.ID, e.Kind, e.Parameters, e.Comment}
	case e.Parameters != "":
		return []string{e.ID, e.Kind, e.Parameters}
	default:
		return []string{e.ID, e.Kind}
	}
}
