package validation

import (
	"fmt"
	"strings"
)

// A cursor is the serialized natural-key tuple of the last row processed,
// used both as the pagination watermark and as the durable
// last_processed_key. Components are joined with a private delimiter;
// delimiter characters occurring inside a component are escaped so that any
// key value round-trips without corrupting field boundaries.
const cursorDelimiter = "~|~"

var cursorEscaper = strings.NewReplacer("%", "%25", "~", "%7E")

var cursorUnescaper = strings.NewReplacer("%7E", "~", "%25", "%")

// EncodeCursor serializes a natural-key tuple.
func EncodeCursor(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = cursorEscaper.Replace(v)
	}
	return strings.Join(escaped, cursorDelimiter)
}

// DecodeCursor parses a cursor back into exactly k components. Anything else
// is corrupt: silently restarting from the beginning would double-count and
// skipping ahead would lose rows, so the failure surfaces to the caller.
func DecodeCursor(cursor string, k int) ([]string, error) {
	parts := strings.Split(cursor, cursorDelimiter)
	if len(parts) != k {
		return nil, fmt.Errorf("%w: got %d components, want %d", ErrCursorDecode, len(parts), k)
	}
	values := make([]string, len(parts))
	for i, p := range parts {
		values[i] = cursorUnescaper.Replace(p)
	}
	return values, nil
}
