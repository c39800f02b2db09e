package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")

// ExtractJSON pulls one JSON value out of a model reply. A reply that is
// exactly one JSON value is returned as is, as is a first fenced code block
// holding exactly one value. Otherwise the first complete value starting at
// a '{' or '[' in the reply is decoded; text after that value is ignored.
func ExtractJSON(reply string) (json.RawMessage, bool) {
	text := strings.TrimSpace(reply)
	if isSingleValue(text) {
		return json.RawMessage(text), true
	}

	if m := fence.FindStringSubmatch(text); m != nil {
		if inner := strings.TrimSpace(m[1]); isSingleValue(inner) {
			return json.RawMessage(inner), true
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		var v json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&v); err == nil {
			return v, true
		}
	}
	return nil, false
}

func isSingleValue(text string) bool {
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return false
	}
	return json.Valid([]byte(text))
}
