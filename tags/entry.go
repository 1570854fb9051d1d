// Package tags holds the tag table: the mapping from a tag identifier to the
// action it triggers on the player.
package tags

import (
	"fmt"
	"strings"
)

// Entry is one record of the tag table.
type Entry struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Parameters string `json:"parameters"`
	Comment    string `json:"comment,omitempty"`
}

// String renders the entry the way it is logged on lookup.
func (e Entry) String() string {
	if e.Comment == "" {
		return fmt.Sprintf("%s: %s(%s)", e.ID, e.Kind, e.Parameters)
	}
	return fmt.Sprintf("%s: %s(%s) # %s", e.ID, e.Kind, e.Parameters, e.Comment)
}

// Validate reports whether the entry can be stored in a registry.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("tag id cannot be empty")
	}
	if strings.HasPrefix(e.ID, "#") {
		return fmt.Errorf("tag id %q cannot start with '#'", e.ID)
	}
	if e.Kind == "" {
		return fmt.Errorf("action kind cannot be empty for tag %q", e.ID)
	}
	return nil
}
