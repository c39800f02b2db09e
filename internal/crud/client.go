// Package crud is the HTTP client for the Leedz CRUD service.
package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/scottgrossworks/invoicer-sub001/internal/format"
)

const maxErrorText = 200

// ErrTimeout marks a call that ran past its deadline.
var ErrTimeout = errors.New("crud service did not respond in time")

// StatusError is a non-2xx reply. Its Error text is the one shown to the
// user: "HTTP <status>: <message>".
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Response is a 2xx reply.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the service rooted at baseURL. A nil
// httpClient means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Do issues method against endpoint. data is sent as a JSON body for every
// method but GET. Deadlines come from ctx and are reported as ErrTimeout.
func (c *Client) Do(ctx context.Context, method, endpoint string, data any) (*Response, error) {
	var body io.Reader
	if method != http.MethodGet && data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrTimeout)
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrTimeout)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(contentType, respBody, resp.Status),
		}
	}

	return &Response{StatusCode: resp.StatusCode, ContentType: contentType, Body: respBody}, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Errors  []any  `json:"errors"`
}

// errorMessage picks the most useful text out of an error reply.
func errorMessage(contentType string, body []byte, status string) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.Error != "" || eb.Message != "") {
		msg := eb.Error
		if eb.Message != "" && eb.Message != eb.Error {
			msg = strings.TrimPrefix(msg+": "+eb.Message, ": ")
		}
		if len(eb.Errors) > 0 {
			details := make([]string, 0, len(eb.Errors))
			for _, e := range eb.Errors {
				details = append(details, detailText(e))
			}
			msg += " (" + strings.Join(details, "; ") + ")"
		}
		return msg
	}

	text := strings.TrimSpace(string(body))
	if format.IsHTML(contentType, body) {
		text = strings.Join(strings.Fields(format.HTMLText(body)), " ")
	}
	if text == "" {
		return status
	}
	return truncate(text, maxErrorText)
}

func detailText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		for _, k := range []string{"message", "msg", "error"} {
			if s, ok := x[k].(string); ok && s != "" {
				if field, ok := x["field"].(string); ok && field != "" {
					return field + ": " + s
				}
				return s
			}
		}
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
