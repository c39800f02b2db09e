package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxFrameSize bounds a single inbound line. Attachments travel inline as
// base64, so the limit is generous. Longer lines are discarded and the
// session continues.
const MaxFrameSize = 8 << 20

const (
	queuedLines    = 64
	readBufferSize = 64 * 1024
	// oversizePrefix is how much of a discarded line is kept for logging
	// and id recovery.
	oversizePrefix = 4 * 1024
)

// frame is one inbound line. A truncated frame exceeded MaxFrameSize and
// holds only its first oversizePrefix bytes.
type frame struct {
	line      []byte
	truncated bool
}

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateReady
	stateShuttingDown
)

// Server is a single-session JSON-RPC server for one broker process.
type Server struct {
	impl            *mcp.Implementation
	protocolVersion string
	instructions    string
	ordered         bool
	logger          *slog.Logger

	tools       []*mcp.Tool
	toolsByName map[string]*Tool

	mu    sync.Mutex
	state sessionState
}

type Option func(*Server)

// WithOrderedResponses makes the server emit responses in request arrival
// order instead of completion order.
func WithOrderedResponses() Option {
	return func(s *Server) { s.ordered = true }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithProtocolVersion overrides DefaultProtocolVersion. Blank values are ignored.
func WithProtocolVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.protocolVersion = v
		}
	}
}

func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// NewServer returns a server advertising impl as its identity.
func NewServer(impl *mcp.Implementation, opts ...Option) *Server {
	s := &Server{
		impl:            impl,
		protocolVersion: DefaultProtocolVersion,
		logger:          slog.New(slog.DiscardHandler),
		tools:           []*mcp.Tool{},
		toolsByName:     make(map[string]*Tool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTool registers t. It panics on a duplicate name or an unresolvable
// schema, both of which are programming errors.
func (s *Server) AddTool(t *Tool) {
	if err := t.prepare(); err != nil {
		panic(fmt.Sprintf("rpc.AddTool: %v", err))
	}
	if _, ok := s.toolsByName[t.Name]; ok {
		panic(fmt.Sprintf("rpc.AddTool: duplicate tool %q", t.Name))
	}
	s.toolsByName[t.Name] = t
	s.tools = append(s.tools, t.descriptor)
}

// Run serves frames read from in and writes responses to out until in
// reaches EOF or ctx is cancelled. In-flight tool calls are allowed to
// finish before Run returns.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w := newFrameWriter(out, s.ordered)
	lines := make(chan frame, queuedLines)
	stop := make(chan struct{})
	defer close(stop)

	var readErr error
	go func() {
		defer close(lines)

		r := bufio.NewReaderSize(in, readBufferSize)
		for {
			line, truncated, err := readFrame(r, MaxFrameSize)
			if len(line) > 0 {
				select {
				case lines <- frame{line: line, truncated: truncated}:
				case <-stop:
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = fmt.Errorf("r.ReadSlice failed: %w", err)
				}
				return
			}
		}
	}()

	// Handlers outlive ctx so that shutdown can drain them.
	callCtx := context.WithoutCancel(ctx)
	var inflight sync.WaitGroup

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case f, ok := <-lines:
			if !ok {
				break loop
			}
			s.handleFrame(callCtx, f, w, &inflight)
		}
	}

	s.setState(stateShuttingDown)
	s.logger.Info("shutting down", "reason", shutdownReason(ctx))

drain:
	for {
		select {
		case f, ok := <-lines:
			if !ok {
				break drain
			}
			s.handleFrame(callCtx, f, w, &inflight)
		default:
			break drain
		}
	}

	inflight.Wait()

	if ctx.Err() == nil && readErr != nil {
		return readErr
	}
	return w.Err()
}

func shutdownReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "context cancelled"
	}
	return "input closed"
}

// readFrame reads one newline-terminated line. A line longer than limit is
// consumed to its end but only its first oversizePrefix bytes are returned,
// with truncated set.
func readFrame(r *bufio.Reader, limit int) (line []byte, truncated bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !truncated && len(line)+len(chunk) > limit {
			truncated = true
			line = bytes.Clone(line[:min(len(line), oversizePrefix)])
		}
		switch {
		case !truncated:
			line = append(line, chunk...)
		case len(line) < oversizePrefix:
			line = append(line, chunk[:min(len(chunk), oversizePrefix-len(line))]...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, truncated, err
	}
}

func (s *Server) handleFrame(ctx context.Context, f frame, w *frameWriter, inflight *sync.WaitGroup) {
	if f.truncated {
		s.handleOversize(w, f.line)
		return
	}

	line := bytes.TrimSpace(f.line)
	if len(line) == 0 {
		return
	}

	switch line[0] {
	case '{':
		s.handleMessage(ctx, line, false, w, inflight)
	case '[':
		s.handleBatch(ctx, line, w, inflight)
	default:
		s.logger.Debug("dropping non-JSON line", "line", clip(line))
	}
}

// handleOversize answers a discarded line when it looks like a request.
func (s *Server) handleOversize(w *frameWriter, prefix []byte) {
	s.logger.Warn("dropping oversize frame", "limit", MaxFrameSize, "line", clip(prefix))
	if looksLikeRPC(prefix) {
		s.reply(w, recoverPrefixID(prefix), NewError(CodeInvalidRequest, "invalid request: frame exceeds %d bytes", MaxFrameSize))
	}
}

func (s *Server) handleBatch(ctx context.Context, line []byte, w *frameWriter, inflight *sync.WaitGroup) {
	var elems []json.RawMessage
	if err := json.Unmarshal(line, &elems); err != nil {
		s.logger.Warn("malformed batch", "error", err, "line", clip(line))
		if looksLikeRPC(line) {
			s.reply(w, jsonrpc.ID{}, NewError(CodeParseError, "parse error: %v", err))
		}
		return
	}
	if len(elems) == 0 {
		s.reply(w, jsonrpc.ID{}, NewError(CodeInvalidRequest, "invalid request: empty batch"))
		return
	}
	for _, elem := range elems {
		s.handleMessage(ctx, elem, true, w, inflight)
	}
}

// handleMessage processes a single JSON value. Batch elements are strict:
// they always get an error response when they are not valid requests.
func (s *Server) handleMessage(ctx context.Context, raw []byte, strict bool, w *frameWriter, inflight *sync.WaitGroup) {
	if !json.Valid(raw) {
		s.logger.Warn("malformed frame", "line", clip(raw))
		if strict || looksLikeRPC(raw) {
			s.reply(w, jsonrpc.ID{}, NewError(CodeParseError, "parse error"))
		}
		return
	}

	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		s.logger.Warn("invalid request", "error", err, "line", clip(raw))
		if strict || looksLikeRPC(raw) {
			s.reply(w, recoverID(raw), NewError(CodeInvalidRequest, "invalid request: %v", err))
		}
		return
	}

	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		s.logger.Debug("ignoring inbound response")
		return
	}
	if !req.IsCall() {
		s.handleNotification(req)
		return
	}

	s.logger.Debug("request", "method", req.Method, "id", req.ID.Raw())
	ticket := w.reserve()

	if req.Method == methodCallTool && s.currentState() == stateReady {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			res, err := s.callTool(ctx, req)
			w.complete(ticket, encodeResponse(req.ID, res, err))
		}()
		return
	}

	res, err := s.dispatch(ctx, req)
	w.complete(ticket, encodeResponse(req.ID, res, err))
}

func (s *Server) handleNotification(req *jsonrpc.Request) {
	switch req.Method {
	case notificationInitialized:
		s.logger.Info("client ready")
	case notificationCancelled:
		s.logger.Info("client cancelled request", "params", string(req.Params))
	default:
		s.logger.Debug("notification ignored", "method", req.Method)
	}
}

func (s *Server) reply(w *frameWriter, id jsonrpc.ID, err error) {
	w.complete(w.reserve(), encodeResponse(id, nil, err))
}

func (s *Server) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Server) setState(st sessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st
}

// looksLikeRPC guards error replies to malformed frames: stray output that
// merely starts with a brace must not provoke a response.
func looksLikeRPC(raw []byte) bool {
	return bytes.Contains(raw, []byte(`"jsonrpc"`)) || bytes.Contains(raw, []byte(`"method"`))
}

func clip(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
