package crud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/prod/clients", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"name": "Alice"}, body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","name":"Alice"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/prod/", nil)
	resp, err := c.Do(context.Background(), http.MethodPost, "/clients", map[string]string{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"c1","name":"Alice"}`, string(resp.Body))
}

func TestDoGetHasNoBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.Empty(t, raw)
		assert.Empty(t, r.Header.Get("Content-Type"))
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Do(context.Background(), http.MethodGet, "/clients", map[string]any{"ignored": true})
	require.NoError(t, err)
}

func TestDoStatusErrors(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		body        string
		expected    string
	}{
		{
			name:        "json error",
			status:      http.StatusNotFound,
			contentType: "application/json",
			body:        `{"error":"Client not found"}`,
			expected:    "HTTP 404: Client not found",
		},
		{
			name:        "json error with details",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":"Validation failed","message":"bad input","errors":[{"field":"email","message":"is invalid"},"name is required"]}`,
			expected:    "HTTP 400: Validation failed: bad input (email: is invalid; name is required)",
		},
		{
			name:        "html error",
			status:      http.StatusNotFound,
			contentType: "text/html; charset=utf-8",
			body:        "<!DOCTYPE html><html><head><title>Error</title></head><body><pre>Cannot GET /clientz</pre></body></html>",
			expected:    "HTTP 404: Cannot GET /clientz",
		},
		{
			name:     "long text",
			status:   http.StatusInternalServerError,
			body:     strings.Repeat("x", 300),
			expected: "HTTP 500: " + strings.Repeat("x", 200) + "...",
		},
		{
			name:     "empty body",
			status:   http.StatusBadGateway,
			expected: "HTTP 502: 502 Bad Gateway",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, nil).Do(context.Background(), http.MethodGet, "/clientz", nil)
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tc.status, statusErr.StatusCode)
			assert.Equal(t, tc.expected, statusErr.Error())
		})
	}
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, nil).Do(ctx, http.MethodGet, "/stats", nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDoTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, nil).Do(context.Background(), http.MethodGet, "/clients", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		expected string
		wantErr  bool
	}{
		{name: "camel case", body: `{"llmApiKey":"sk-1"}`, expected: "sk-1"},
		{name: "nested", body: `{"llm":{"apiKey":" sk-2 "}}`, expected: "sk-2"},
		{name: "snake case", body: `{"llm_api_key":"sk-3"}`, expected: "sk-3"},
		{name: "wrapped in list", body: `[{"llmApiKey":"sk-4"}]`, expected: "sk-4"},
		{name: "missing", body: `{"companyName":"Leedz"}`, wantErr: true},
		{name: "not json", body: `<html></html>`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/config", r.URL.Path)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			key, err := NewClient(server.URL, nil).FetchAPIKey(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, key)
		})
	}
}
