package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"

	"github.com/scottgrossworks/invoicer-sub001/internal/auth"
	"github.com/scottgrossworks/invoicer-sub001/internal/gservice"
	"github.com/scottgrossworks/invoicer-sub001/internal/mime"
	"github.com/scottgrossworks/invoicer-sub001/internal/rpc"
)

const (
	GmailSendToolName        = "gmail_send"
	gmailSendToolDescription = "Send an email through the user's Gmail account, optionally with attachments"

	msgNoToken = "No valid OAuth token; authorize from client first"
)

type GmailSendRequest struct {
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Cc          string            `json:"cc,omitempty"`
	Bcc         string            `json:"bcc,omitempty"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

type AttachmentInput struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

type GmailSendResponse struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
	To        string `json:"to"`
}

type gmailToken interface {
	OAuthToken() (*oauth2.Token, error)
}

type gmailSendSvc interface {
	SendMessage(ctx context.Context, raw string) (*gmail.Message, error)
}

func NewGmailSend(tok gmailToken, svc gmailSendSvc) *GmailSend {
	return &GmailSend{
		tok: tok,
		svc: svc,
	}
}

type GmailSend struct {
	tok gmailToken
	svc gmailSendSvc
}

func (t *GmailSend) Tool() *rpc.Tool {
	nonEmpty := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", MinLength: jsonschema.Ptr(1), Description: desc}
	}

	return &rpc.Tool{
		Name:        GmailSendToolName,
		Description: gmailSendToolDescription,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"to":      nonEmpty("recipient address, or a comma separated list"),
				"subject": nonEmpty("email subject"),
				"body":    nonEmpty("plain text body"),
				"cc":      {Type: "string", Description: "CC recipients, comma separated"},
				"bcc":     {Type: "string", Description: "BCC recipients, comma separated"},
				"attachments": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"filename":    nonEmpty("attachment file name"),
							"content":     nonEmpty("base64 encoded file content"),
							"contentType": {Type: "string", Description: "MIME type, defaults to application/octet-stream"},
						},
						Required: []string{"filename", "content"},
					},
				},
			},
			Required: []string{"to", "subject", "body"},
		},
		Handler: t.GmailSend,
	}
}

func (t *GmailSend) GmailSend(ctx context.Context, req *rpc.CallRequest) (*mcp.CallToolResult, error) {
	if _, err := t.tok.OAuthToken(); err != nil {
		return nil, rpc.NewError(rpc.CodeUnauthorized, msgNoToken)
	}

	var input GmailSendRequest
	if err := req.Bind(&input); err != nil {
		return nil, err
	}

	env, err := buildEnvelope(&input)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}

	raw, err := mime.Build(env)
	if err != nil {
		if errors.Is(err, mime.ErrInvalidAttachment) {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "invalid attachment %v", err)
		}
		return nil, fmt.Errorf("mime.Build failed: %w", err)
	}

	msg, err := t.svc.SendMessage(ctx, mime.EncodeRaw(raw))
	if err != nil {
		return nil, sendError(err)
	}

	out := GmailSendResponse{MessageID: msg.Id, ThreadID: msg.ThreadId, To: input.To}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Email sent successfully to %s. Message ID: %s", input.To, msg.Id),
		}},
		StructuredContent: out,
	}, nil
}

func buildEnvelope(in *GmailSendRequest) (*mime.Envelope, error) {
	to, err := ParseAddressList(in.To)
	if err != nil {
		return nil, fmt.Errorf("invalid to: %w", err)
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("invalid to: no recipients")
	}
	cc, err := ParseAddressList(in.Cc)
	if err != nil {
		return nil, fmt.Errorf("invalid cc: %w", err)
	}
	bcc, err := ParseAddressList(in.Bcc)
	if err != nil {
		return nil, fmt.Errorf("invalid bcc: %w", err)
	}

	attachments := make([]mime.Attachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		attachments = append(attachments, mime.Attachment{
			Filename:    a.Filename,
			ContentType: strings.TrimSpace(a.ContentType),
			Content:     a.Content,
		})
	}

	return &mime.Envelope{
		To:          formatEmails(to),
		Cc:          formatEmails(cc),
		Bcc:         formatEmails(bcc),
		Subject:     in.Subject,
		Body:        in.Body,
		Attachments: attachments,
	}, nil
}

func sendError(err error) error {
	if errors.Is(err, auth.ErrTokenNotSet) || errors.Is(err, auth.ErrTokenExpired) {
		return rpc.NewError(rpc.CodeUnauthorized, msgNoToken)
	}
	if code, message, ok := gservice.APIStatus(err); ok {
		return rpc.NewError(rpc.CodeInternalError, "Gmail API error (status %d): %s", code, message)
	}
	return rpc.NewError(rpc.CodeInternalError, "Gmail API request failed: %v", err)
}
