package agent

import (
	"context"
	"sync"

	"github.com/scottgrossworks/invoicer-sub001/internal/crud"
)

type translatorMock struct {
	CompleteFunc func(ctx context.Context, system, user string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (m *translatorMock) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, user)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, system, user)
}

func reply(text string) *translatorMock {
	return &translatorMock{
		CompleteFunc: func(context.Context, string, string) (string, error) { return text, nil },
	}
}

type executorMock struct {
	DoFunc func(ctx context.Context, method, endpoint string, data any) (*crud.Response, error)

	mu    sync.Mutex
	calls int
}

func (m *executorMock) Do(ctx context.Context, method, endpoint string, data any) (*crud.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.DoFunc(ctx, method, endpoint, data)
}

type keyFetcherMock struct {
	FetchAPIKeyFunc func(ctx context.Context) (string, error)
}

func (m *keyFetcherMock) FetchAPIKey(ctx context.Context) (string, error) {
	return m.FetchAPIKeyFunc(ctx)
}
