// Package protocol holds the JSON types of the status server's HTTP and
// WebSocket API. It has no server dependencies so tools can import it.
package protocol

import "time"

// TagInputRequest is the body of POST /api/v1/tag. Exactly one of Tag and
// UID is set. Tag is used verbatim; UID is normalized to the reader format.
type TagInputRequest struct {
	Tag string `json:"tag,omitempty"`
	UID string `json:"uid,omitempty"`

	// Button injects a button press instead of a tag read.
	Button bool `json:"button,omitempty"`

	// Source identifies the sender, defaults to "http-api".
	Source string `json:"source,omitempty"`
}

// TagInputResponse is the response of POST /api/v1/tag.
type TagInputResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// Error codes for API responses.
const (
	ErrCodeInvalidUID     = "INVALID_UID"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidEntry   = "INVALID_ENTRY"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeLastEntry      = "LAST_ENTRY"
	ErrCodeQueueFull      = "QUEUE_FULL"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// TagEntry is one row of the tag table.
type TagEntry struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Parameters string `json:"parameters"`
	Comment    string `json:"comment,omitempty"`
	Action     string `json:"action,omitempty"` // resolved form, read only
}

// TagListResponse is the response of GET /api/v1/tags.
type TagListResponse struct {
	Count int        `json:"count"`
	Tags  []TagEntry `json:"tags"`
}

// HealthResponse is the response of GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Player    string    `json:"player"`
	Tags      int       `json:"tags"`
	Clients   int       `json:"clients"`
	Timestamp time.Time `json:"timestamp"`
}
