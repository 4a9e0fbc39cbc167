// Package curl turns a pasted curl command into a provider descriptor
// skeleton. It is deliberately not a full shell parser: it tokenizes quoted
// strings, honors backslash continuations, and ignores flags it does not
// recognize so that pasted commands keep working as curl grows options.
package curl

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/genway/genway/model"
)

// Flags that never take a value. Anything else starting with '-' that is not
// recognized below is skipped together with its value when one follows.
var booleanFlags = map[string]bool{
	"-s": true, "--silent": true,
	"-S": true, "--show-error": true,
	"-L": true, "--location": true,
	"-k": true, "--insecure": true,
	"-v": true, "--verbose": true,
	"-i": true, "--include": true,
	"-f": true, "--fail": true,
	"-G": true, "--get": true,
	"--compressed": true,
	"--http1.1":    true,
	"--http2":      true,
}

const maxBodySnippet = 120

// Parse converts a single curl command (possibly spanning multiple lines via
// backslash continuations) into a descriptor skeleton: URL, method, headers,
// and request body template. Name, kind, models, and the response parser are
// filled in by the operator afterwards.
func Parse(command string) (model.ProviderDescriptor, error) {
	tokens := tokenize(command)

	var desc model.ProviderDescriptor
	var rawBody string
	var hasBody bool
	var explicitMethod string

	i := 0
	// Skip the leading "curl" token if present.
	if i < len(tokens) && tokens[i] == "curl" {
		i++
	}

	for ; i < len(tokens); i++ {
		tok := tokens[i]

		switch tok {
		case "-X", "--request":
			if i+1 < len(tokens) {
				explicitMethod = strings.ToUpper(tokens[i+1])
				i++
			}
			continue
		case "-H", "--header":
			if i+1 < len(tokens) {
				name, value := splitHeader(tokens[i+1])
				if name != "" {
					desc.SetHeader(name, value)
				}
				i++
			}
			continue
		case "-d", "--data", "--data-raw", "--data-binary":
			if i+1 < len(tokens) {
				rawBody = tokens[i+1]
				hasBody = true
				i++
			}
			continue
		}

		if strings.HasPrefix(tok, "-") {
			// Unknown flag: never fail. Boolean flags stand alone; other
			// unrecognized flags consume a following value token.
			if booleanFlags[tok] {
				continue
			}
			if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
				i++
			}
			continue
		}

		// First non-flag token that looks like a URL becomes the base URL.
		if desc.BaseURL == "" && isURL(tok) {
			desc.BaseURL = tok
		}
	}

	if hasBody {
		var tree any
		if err := json.Unmarshal([]byte(rawBody), &tree); err != nil {
			return model.ProviderDescriptor{}, model.NewMalformedBodyError(snippet(rawBody), err)
		}
		obj, ok := tree.(map[string]any)
		if !ok {
			obj = map[string]any{"data": tree}
		}
		desc.RequestBodyTemplate = obj
	}

	switch {
	case explicitMethod != "":
		desc.Method = explicitMethod
	case hasBody:
		desc.Method = http.MethodPost
	default:
		desc.Method = http.MethodGet
	}

	if desc.BaseURL == "" {
		return model.ProviderDescriptor{}, model.NewBadRequestError("curl command contains no URL")
	}

	return desc, nil
}

// tokenize splits a curl command into shell-like tokens. It supports single
// and double quotes with backslash-escaped embedded quotes, and treats a
// backslash followed by a newline as a continuation.
func tokenize(command string) []string {
	var tokens []string
	var cur []byte
	var inToken bool
	var quote byte

	flush := func() {
		if inToken {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
			inToken = false
		}
	}

	for i := 0; i < len(command); i++ {
		c := command[i]

		if quote != 0 {
			if c == '\\' && i+1 < len(command) && (command[i+1] == quote || command[i+1] == '\\') {
				cur = append(cur, command[i+1])
				i++
				continue
			}
			if c == quote {
				quote = 0
				continue
			}
			cur = append(cur, c)
			continue
		}

		switch {
		case c == '\\' && i+1 < len(command) && (command[i+1] == '\n' || command[i+1] == '\r'):
			// Line continuation: swallow the backslash and newline.
			for i+1 < len(command) && (command[i+1] == '\n' || command[i+1] == '\r') {
				i++
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		case c == '\\' && i+1 < len(command):
			cur = append(cur, command[i+1])
			inToken = true
			i++
		default:
			cur = append(cur, c)
			inToken = true
		}
	}
	flush()

	return tokens
}

// splitHeader splits a "Name: Value" header token.
func splitHeader(raw string) (string, string) {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+1:])
}

// isURL reports whether the token looks like an absolute http(s) URL.
func isURL(tok string) bool {
	return strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://")
}

// snippet truncates the offending body text for error messages.
func snippet(s string) string {
	if len(s) <= maxBodySnippet {
		return s
	}
	return s[:maxBodySnippet] + "..."
}
