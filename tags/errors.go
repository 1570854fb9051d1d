package tags

import (
	"errors"
	"fmt"
)

// ErrNoEntries is wrapped by ConfigError when a source yields zero entries.
var ErrNoEntries = errors.New("no tag entries")

// ConfigError reports a tag table that cannot be opened, read or parsed, or
// that holds no entries. It is fatal at startup.
type ConfigError struct {
	Path string
	Line int // 0 when the error is not tied to a line
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("tag config %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("tag config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError checks if an error is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
