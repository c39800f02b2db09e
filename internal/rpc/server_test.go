package rpc_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgrossworks/invoicer-sub001/internal/rpc"
)

const initLine = `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test","version":"1"}}}`

type echoArgs struct {
	Text string `json:"text"`
}

func newTestServer(opts ...rpc.Option) *rpc.Server {
	srv := rpc.NewServer(&mcp.Implementation{Name: "test-broker", Version: "1.2.3"}, opts...)
	srv.AddTool(&rpc.Tool{
		Name:        "echo",
		Description: "echoes text",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"text": {Type: "string"}},
			Required:   []string{"text"},
		},
		Handler: func(_ context.Context, req *rpc.CallRequest) (*mcp.CallToolResult, error) {
			var args echoArgs
			if err := req.Bind(&args); err != nil {
				return nil, err
			}
			return rpc.TextResult(args.Text), nil
		},
	})
	srv.AddTool(&rpc.Tool{
		Name: "fail",
		Handler: func(_ context.Context, _ *rpc.CallRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("boom")
		},
	})
	srv.AddTool(&rpc.Tool{
		Name: "deny",
		Handler: func(_ context.Context, _ *rpc.CallRequest) (*mcp.CallToolResult, error) {
			return nil, rpc.NewError(rpc.CodeUnauthorized, "no token")
		},
	})
	return srv
}

type response struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func run(t *testing.T, srv *rpc.Server, lines ...string) []response {
	t.Helper()

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, srv.Run(context.Background(), in, &out))

	var res []response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), scanner.Text())
		res = append(res, r)
	}
	return res
}

func TestLifecycleGate(t *testing.T) {
	res := run(t, newTestServer(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"x"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"sampling/createMessage"}`,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`,
	)
	require.Len(t, res, 4)

	assert.EqualValues(t, rpc.CodeNotInitialized, res[0].Error.Code)
	assert.EqualValues(t, rpc.CodeNotInitialized, res[1].Error.Code)
	assert.EqualValues(t, rpc.CodeMethodNotFound, res[2].Error.Code)
	assert.Nil(t, res[3].Error)
	assert.JSONEq(t, `{}`, string(res[3].Result))
}

func TestOversizeFrameKeepsSessionAlive(t *testing.T) {
	huge := strings.Repeat("A", rpc.MaxFrameSize+1024)
	res := run(t, newTestServer(),
		initLine,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{"text":"`+huge+`"}}}`,
		huge,
		`{"jsonrpc":"2.0","id":6,"method":"ping"}`,
	)
	require.Len(t, res, 3)

	require.NotNil(t, res[1].Error)
	assert.EqualValues(t, 5, res[1].ID)
	assert.EqualValues(t, rpc.CodeInvalidRequest, res[1].Error.Code)

	assert.EqualValues(t, 6, res[2].ID)
	assert.Nil(t, res[2].Error)
	assert.JSONEq(t, `{}`, string(res[2].Result))
}

func TestInitializeIsIdempotent(t *testing.T) {
	res := run(t, newTestServer(rpc.WithProtocolVersion("2025-03-26")),
		initLine,
		`{"jsonrpc":"2.0","id":"again","method":"initialize","params":{}}`,
	)
	require.Len(t, res, 2)
	assert.Equal(t, res[0].Result, res[1].Result)
	assert.Equal(t, "again", res[1].ID)

	var init mcp.InitializeResult
	require.NoError(t, json.Unmarshal(res[0].Result, &init))
	assert.Equal(t, "2025-03-26", init.ProtocolVersion)
	assert.Equal(t, "test-broker", init.ServerInfo.Name)
	assert.Equal(t, "1.2.3", init.ServerInfo.Version)
	assert.NotNil(t, init.Capabilities.Tools)
}

func TestReadyMethods(t *testing.T) {
	res := run(t, newTestServer(),
		initLine,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"prompts/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"unknown/method"}`,
	)
	require.Len(t, res, 5)

	var tools mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(res[1].Result, &tools))
	require.Len(t, tools.Tools, 3)
	assert.Equal(t, "echo", tools.Tools[0].Name)

	assert.JSONEq(t, `{"prompts":[]}`, string(res[2].Result))
	assert.JSONEq(t, `{"resources":[]}`, string(res[3].Result))
	assert.EqualValues(t, rpc.CodeMethodNotFound, res[4].Error.Code)
}

func TestMalformedFrames(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		expected []int64
		id       any
	}{
		{name: "debug output", line: `starting up...`},
		{name: "broken json without rpc markers", line: `{not json`},
		{name: "broken json-rpc", line: `{"jsonrpc":"2.0","method":`, expected: []int64{rpc.CodeParseError}},
		{name: "unrelated object", line: `{"hello":"world"}`},
		{name: "wrong version", line: `{"jsonrpc":"1.0","id":7,"method":"ping"}`, expected: []int64{rpc.CodeInvalidRequest}, id: float64(7)},
		{name: "empty batch", line: `[]`, expected: []int64{rpc.CodeInvalidRequest}},
		{name: "inbound response", line: `{"jsonrpc":"2.0","id":9,"result":{}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := run(t, newTestServer(), tc.line)
			require.Len(t, res, len(tc.expected))
			for i, code := range tc.expected {
				require.NotNil(t, res[i].Error)
				assert.Equal(t, code, res[i].Error.Code)
				assert.Equal(t, tc.id, res[i].ID)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	res := run(t, newTestServer(),
		initLine,
		`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"},{"jsonrpc":"2.0","id":2,"method":"tools/list"},42]`,
	)
	require.Len(t, res, 4)
	assert.Equal(t, float64(1), res[1].ID)
	assert.Equal(t, float64(2), res[2].ID)
	assert.Nil(t, res[3].ID)
	assert.EqualValues(t, rpc.CodeInvalidRequest, res[3].Error.Code)
}

func TestCallTool(t *testing.T) {
	cases := []struct {
		name    string
		params  string
		code    int64
		content string
	}{
		{name: "success", params: `{"name":"echo","arguments":{"text":"hello"}}`, content: "hello"},
		{name: "unknown tool", params: `{"name":"nope","arguments":{}}`, code: rpc.CodeInvalidParams},
		{name: "schema violation", params: `{"name":"echo","arguments":{"text":5}}`, code: rpc.CodeInvalidParams},
		{name: "missing argument", params: `{"name":"echo"}`, code: rpc.CodeInvalidParams},
		{name: "uncoded error", params: `{"name":"fail","arguments":{}}`, code: rpc.CodeInternalError},
		{name: "coded error", params: `{"name":"deny","arguments":{}}`, code: rpc.CodeUnauthorized},
		{name: "missing params", params: `null`, code: rpc.CodeInvalidParams},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := run(t, newTestServer(),
				initLine,
				`{"jsonrpc":"2.0","id":"c1","method":"tools/call","params":`+tc.params+`}`,
			)
			require.Len(t, res, 2)
			got := res[1]
			assert.Equal(t, "c1", got.ID)

			if tc.code != 0 {
				require.NotNil(t, got.Error)
				assert.Equal(t, tc.code, got.Error.Code)
				return
			}

			require.Nil(t, got.Error)
			var result struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			}
			require.NoError(t, json.Unmarshal(got.Result, &result))
			require.Len(t, result.Content, 1)
			assert.Equal(t, "text", result.Content[0].Type)
			assert.Equal(t, tc.content, result.Content[0].Text)
		})
	}
}

// slowFirst registers a tool whose first invocation finishes only after the
// second one has completed.
func slowFirst(srv *rpc.Server) {
	secondDone := make(chan struct{})
	srv.AddTool(&rpc.Tool{
		Name: "race",
		Handler: func(_ context.Context, req *rpc.CallRequest) (*mcp.CallToolResult, error) {
			var args echoArgs
			if err := req.Bind(&args); err != nil {
				return nil, err
			}
			if args.Text == "first" {
				<-secondDone
			} else {
				defer close(secondDone)
			}
			return rpc.TextResult(args.Text), nil
		},
	})
}

func TestResponseOrdering(t *testing.T) {
	lines := []string{
		initLine,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"race","arguments":{"text":"first"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"race","arguments":{"text":"second"}}}`,
	}

	t.Run("ordered", func(t *testing.T) {
		srv := newTestServer(rpc.WithOrderedResponses())
		slowFirst(srv)
		res := run(t, srv, lines...)
		require.Len(t, res, 3)
		assert.Equal(t, float64(1), res[1].ID)
		assert.Equal(t, float64(2), res[2].ID)
	})

	t.Run("completion order", func(t *testing.T) {
		srv := newTestServer()
		slowFirst(srv)
		res := run(t, srv, lines...)
		require.Len(t, res, 3)
		assert.Equal(t, float64(2), res[1].ID)
		assert.Equal(t, float64(1), res[2].ID)
	})
}

func TestShutdownDrainsInflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	srv := newTestServer()
	srv.AddTool(&rpc.Tool{
		Name: "block",
		Handler: func(_ context.Context, _ *rpc.CallRequest) (*mcp.CallToolResult, error) {
			close(started)
			<-release
			return rpc.TextResult("done"), nil
		},
	})

	inR, inW := io.Pipe()
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx, inR, &out) }()

	_, err := io.WriteString(inW, initLine+"\n"+
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"block","arguments":{}}}`+"\n")
	require.NoError(t, err)
	<-started

	cancel()
	select {
	case <-errc:
		t.Fatal("Run returned before the in-flight call finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-errc)
	assert.Contains(t, out.String(), `"done"`)
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestSDKClientCompatibility(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newTestServer()
	errc := make(chan error, 1)
	go func() {
		err := srv.Run(ctx, c2sR, s2cW)
		s2cW.Close()
		errc <- err
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.IOTransport{Reader: s2cR, Writer: c2sW}, nil)
	require.NoError(t, err)

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 3)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "over the wire"},
	})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "over the wire", text.Text)

	_, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "deny", Arguments: map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")

	require.NoError(t, session.Close())
	require.NoError(t, <-errc)
}
