package tool_test

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
)

type leedzBrokerMock struct {
	HandleFunc  func(ctx context.Context, message string) (string, error)
	HandleCalls []string
}

func (m *leedzBrokerMock) Handle(ctx context.Context, message string) (string, error) {
	m.HandleCalls = append(m.HandleCalls, message)
	return m.HandleFunc(ctx, message)
}

type gmailSendSvcMock struct {
	SendMessageFunc  func(ctx context.Context, raw string) (*gmail.Message, error)
	SendMessageCalls []string
}

func (m *gmailSendSvcMock) SendMessage(ctx context.Context, raw string) (*gmail.Message, error) {
	m.SendMessageCalls = append(m.SendMessageCalls, raw)
	return m.SendMessageFunc(ctx, raw)
}

type tokenMock struct {
	tok *oauth2.Token
	err error
}

func (m tokenMock) OAuthToken() (*oauth2.Token, error) { return m.tok, m.err }
