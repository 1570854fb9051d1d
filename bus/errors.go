package bus

import "fmt"

// ConnectionError reports a failure to reach or subscribe on the broker.
// It is fatal at startup.
type ConnectionError struct {
	Broker string
	Op     string // "connect", "subscribe" or "publish"
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mqtt %s %s: %v", e.Op, e.Broker, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
