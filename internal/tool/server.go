package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scottgrossworks/invoicer-sub001/internal/rpc"
)

// NewLeedzServer creates the Agent Broker server. Responses are written in
// request order.
func NewLeedzServer(impl *mcp.Implementation, b leedzBroker, opts ...rpc.Option) *rpc.Server {
	server := rpc.NewServer(impl, append([]rpc.Option{rpc.WithOrderedResponses()}, opts...)...)
	server.AddTool(NewLeedz(b).Tool())
	return server
}

// NewGmailServer creates the Mail Broker server.
func NewGmailServer(impl *mcp.Implementation, tok gmailToken, svc gmailSendSvc, opts ...rpc.Option) *rpc.Server {
	server := rpc.NewServer(impl, opts...)
	server.AddTool(NewGmailSend(tok, svc).Tool())
	return server
}
