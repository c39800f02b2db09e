package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoMessage means a call carried no usable natural-language request.
var ErrNoMessage = errors.New("no message found in request, message or messages")

type callParams struct {
	Arguments struct {
		Request json.RawMessage `json:"request"`
		Message json.RawMessage `json:"message"`
	} `json:"arguments"`
	Messages []json.RawMessage `json:"messages"`
}

// ExtractMessage finds the user's request in a tools/call params object. It
// tries arguments.request, then arguments.message, then the last entry of
// messages.
func ExtractMessage(params json.RawMessage) (string, error) {
	var p callParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return "", ErrNoMessage
		}
	}

	for _, raw := range []json.RawMessage{p.Arguments.Request, p.Arguments.Message} {
		if s := stringValue(raw); s != "" {
			return s, nil
		}
	}

	if n := len(p.Messages); n > 0 {
		if s := messageText(p.Messages[n-1]); s != "" {
			return s, nil
		}
	}
	return "", ErrNoMessage
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// messageText accepts "text", {"content":"text"} and
// {"content":[{"type":"text","text":"..."}]}.
func messageText(raw json.RawMessage) string {
	if s := stringValue(raw); s != "" {
		return s
	}

	var msg struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ""
	}
	if s := stringValue(msg.Content); s != "" {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, strings.TrimSpace(b.Text))
		}
	}
	return strings.Join(parts, "\n")
}
