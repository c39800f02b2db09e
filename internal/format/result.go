// Package format renders CRUD service responses as conversational text and
// flattens HTML bodies into plain text.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// StatsMarker opens every statistics rendering.
const StatsMarker = "📊 Statistics:"

var statsEndpoint = regexp.MustCompile(`^/(clients/[^/]+/)?stats/?$`)

// Result renders body, the 2xx response of method on endpoint.
//
//   - empty body: "✅ <description>"
//   - JSON array: "Found N items" and the compact array
//   - object from a stats endpoint: StatsMarker and one "key: value" line per field
//   - anything else: the description and the pretty-printed body
func Result(method, endpoint, description string, body []byte) string {
	if description == "" {
		description = defaultDescription(method, endpoint)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "✅ " + description
	}

	if !json.Valid(trimmed) {
		return description + "\n\n" + string(trimmed)
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			var compact bytes.Buffer
			if err := json.Compact(&compact, trimmed); err != nil {
				compact.Write(trimmed)
			}
			return fmt.Sprintf("Found %d items\n%s", len(items), compact.String())
		}
	case '{':
		if IsStatsEndpoint(endpoint) {
			if text, ok := stats(trimmed); ok {
				return text
			}
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, trimmed, "", "  "); err != nil {
		return description + "\n\n" + string(trimmed)
	}
	return description + "\n\n" + pretty.String()
}

// IsStatsEndpoint matches /stats and /clients/:id/stats, ignoring any query.
func IsStatsEndpoint(endpoint string) bool {
	path, _, _ := strings.Cut(endpoint, "?")
	return statsEndpoint.MatchString(path)
}

// stats renders the top-level fields of an object in document order.
func stats(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString(StatsMarker)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, ok := tok.(string)
		if !ok {
			return "", false
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return "", false
		}
		fmt.Fprintf(&sb, "\n%s: %s", key, statValue(value))
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return "", false
	}
	return sb.String(), true
}

func statValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, v); err != nil {
		return string(v)
	}
	return compact.String()
}

func defaultDescription(method, endpoint string) string {
	switch strings.ToUpper(method) {
	case http.MethodDelete:
		return "Deleted " + endpoint
	case http.MethodPost:
		return "Created " + endpoint
	case http.MethodPut:
		return "Updated " + endpoint
	default:
		return "Result of " + endpoint
	}
}
