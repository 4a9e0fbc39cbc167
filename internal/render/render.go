// Package render substitutes {placeholder} tokens in JSON-like template
// trees with runtime parameter values. It is the single engine that turns a
// provider's request body template plus user parameters into a concrete
// request payload.
package render

import (
	"fmt"

	"github.com/genway/genway/model"
)

// Render walks a JSON-like tree (maps, slices, scalars) and substitutes
// {placeholder} tokens in string leaves from params.
//
// Substitution policy:
//   - A placeholder with no matching parameter is left verbatim; rendering
//     never fails, so templates degrade gracefully when optional parameters
//     are omitted.
//   - A leaf that is exactly one placeholder token takes the parameter's
//     native type (a number stays a number in the rendered JSON).
//   - A placeholder embedded in a longer string always yields a string.
func Render(node any, params map[string]any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = Render(child, params)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Render(child, params)
		}
		return out
	case string:
		return renderLeaf(v, params)
	default:
		return v
	}
}

// RenderString substitutes placeholders in a single string and coerces the
// result to a string. Used for header values and URLs, which are always text.
func RenderString(s string, params map[string]any) string {
	rendered := renderLeaf(s, params)
	if str, ok := rendered.(string); ok {
		return str
	}
	return fmt.Sprint(rendered)
}

// RenderHeaders renders every header value against params. Header values are
// always coerced to strings.
func RenderHeaders(headers []model.Header, params map[string]any) []model.Header {
	out := make([]model.Header, len(headers))
	for i, h := range headers {
		out[i] = model.Header{Name: h.Name, Value: RenderString(h.Value, params)}
	}
	return out
}

// renderLeaf applies the substitution policy to one string leaf.
func renderLeaf(s string, params map[string]any) any {
	// Whole-leaf single token: typed substitution.
	if name, ok := soleToken(s); ok {
		if val, exists := params[name]; exists {
			return val
		}
		return s
	}

	// Partial interpolation: scan and replace, always producing a string.
	var out []byte
	for i := 0; i < len(s); {
		if s[i] != '{' {
			out = append(out, s[i])
			i++
			continue
		}
		name, end := scanToken(s, i)
		if name == "" {
			out = append(out, s[i])
			i++
			continue
		}
		if val, exists := params[name]; exists {
			out = append(out, fmt.Sprint(val)...)
		} else {
			// Unknown placeholder stays verbatim.
			out = append(out, s[i:end]...)
		}
		i = end
	}
	return string(out)
}

// soleToken reports whether s is exactly one {identifier} token and returns
// the identifier.
func soleToken(s string) (string, bool) {
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return "", false
	}
	name := s[1 : len(s)-1]
	if !validIdentifier(name) {
		return "", false
	}
	return name, true
}

// scanToken scans a {identifier} token starting at position i (which must
// point at '{'). It returns the identifier and the index just past '}', or
// an empty identifier if no well-formed token starts at i.
func scanToken(s string, i int) (string, int) {
	end := i + 1
	for end < len(s) && s[end] != '}' {
		end++
	}
	if end >= len(s) {
		return "", i
	}
	name := s[i+1 : end]
	if !validIdentifier(name) {
		return "", i
	}
	return name, end + 1
}

// validIdentifier reports whether the string is a placeholder identifier:
// letters, digits, and underscores, not starting with a digit.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
