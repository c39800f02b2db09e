package gservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailUserID = "me"

// TokenSource yields the current bearer token, or an error when none is
// authorized.
type TokenSource interface {
	OAuthToken() (*oauth2.Token, error)
}

// NewGmail returns a sender against endpoint. An empty endpoint keeps the
// library default; a nil base client uses http.DefaultClient.
func NewGmail(tok TokenSource, endpoint string, base *http.Client) *GMail {
	return &GMail{
		tok:      tok,
		endpoint: endpoint,
		base:     base,
	}
}

type GMail struct {
	tok      TokenSource
	endpoint string
	base     *http.Client
}

// SendMessage submits an already encoded RFC 5322 message.
func (m *GMail) SendMessage(ctx context.Context, raw string) (*gmail.Message, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("newSvc failed: %w", err)
	}

	msg, err := svc.Users.Messages.Send(gmailUserID, &gmail.Message{Raw: raw}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("messages.Send failed: %w", err)
	}

	return msg, nil
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	t, err := m.tok.OAuthToken()
	if err != nil {
		return nil, fmt.Errorf("tok.OAuthToken failed: %w", err)
	}

	if m.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.base)
	}
	clt := oauth2.NewClient(ctx, oauth2.StaticTokenSource(t))

	opts := []option.ClientOption{option.WithHTTPClient(clt)}
	if m.endpoint != "" {
		opts = append(opts, option.WithEndpoint(m.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}

// APIStatus extracts the upstream HTTP status and message from a send
// error. ok is false for transport failures.
func APIStatus(err error) (code int, message string, ok bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0, "", false
	}
	message = gerr.Message
	if message == "" {
		message = http.StatusText(gerr.Code)
	}
	return gerr.Code, message, true
}
