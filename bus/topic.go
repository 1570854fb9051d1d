package bus

import "strings"

// Sub-topics below the reader prefix.
const (
	TagTopic    = "tag"
	ButtonTopic = "button1"
)

// Filter is the subscription filter covering everything below prefix.
func Filter(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/#"
}

// Join appends a sub-topic to prefix.
func Join(prefix, sub string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + sub
}

// Match reports whether topic matches an MQTT topic filter with '+' and '#'
// wildcards.
func Match(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			// '#' also matches the parent level itself.
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

// HasWildcard reports whether s contains an MQTT wildcard character.
func HasWildcard(s string) bool {
	return strings.ContainsAny(s, "+#")
}
