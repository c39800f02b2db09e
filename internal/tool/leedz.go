package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scottgrossworks/invoicer-sub001/internal/agent"
	"github.com/scottgrossworks/invoicer-sub001/internal/crud"
	"github.com/scottgrossworks/invoicer-sub001/internal/rpc"
)

const (
	LeedzToolName        = "the_leedz"
	leedzToolDescription = "Interact with the Leedz CRM: create clients, manage bookings, get statistics"
)

type leedzBroker interface {
	Handle(ctx context.Context, message string) (string, error)
}

func NewLeedz(b leedzBroker) *Leedz {
	return &Leedz{
		b: b,
	}
}

type Leedz struct {
	b leedzBroker
}

// Tool describes the_leedz. The schema advertises message; the handler
// also accepts request and a messages history.
func (t *Leedz) Tool() *rpc.Tool {
	return &rpc.Tool{
		Name:        LeedzToolName,
		Description: leedzToolDescription,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"message": {Type: "string", Description: "natural-language request, e.g. \"how many bookings did Ann have in May?\""},
			},
			Required: []string{"message"},
		},
		Handler: t.TheLeedz,
	}
}

func (t *Leedz) TheLeedz(ctx context.Context, req *rpc.CallRequest) (*mcp.CallToolResult, error) {
	message, err := agent.ExtractMessage(req.Params)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}

	text, err := t.b.Handle(ctx, message)
	if err != nil {
		if errors.Is(err, crud.ErrTimeout) {
			return nil, rpc.NewError(rpc.CodeInternalError, "Leedz service timed out")
		}
		return nil, fmt.Errorf("b.Handle failed: %w", err)
	}

	return rpc.TextResult(text), nil
}
