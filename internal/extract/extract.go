// Package extract evaluates dot-separated path expressions against parsed
// JSON values to locate generated content inside provider responses.
package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// NotFoundError reports that a path expression could not be resolved.
// It carries the full path and the segment that failed, so callers can
// surface a precise response-shape diagnostic.
type NotFoundError struct {
	Path    string
	Segment string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path %q: segment %q not found", e.Path, e.Segment)
}

// Extract resolves a dot-separated path against a parsed JSON value.
// A purely numeric segment indexes into an array; any other segment keys
// into an object. Missing keys, out-of-range indices, and type mismatches
// all fail uniformly with *NotFoundError.
func Extract(value any, path string) (any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &NotFoundError{Path: path, Segment: ""}
	}

	current := value
	for _, segment := range strings.Split(path, ".") {
		if idx, ok := numericSegment(segment); ok {
			arr, ok := current.([]any)
			if !ok || idx >= len(arr) {
				return nil, &NotFoundError{Path: path, Segment: segment}
			}
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return nil, &NotFoundError{Path: path, Segment: segment}
		}
		next, exists := obj[segment]
		if !exists {
			return nil, &NotFoundError{Path: path, Segment: segment}
		}
		current = next
	}
	return current, nil
}

// numericSegment returns the array index for a purely numeric segment.
func numericSegment(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
