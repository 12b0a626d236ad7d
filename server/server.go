package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/journal"
	"github.com/chazu/quill/vm"
)

var log = commonlog.GetLogger("quill.server")

// DefaultStepLimit bounds every run when no limit is configured. All runs
// share one worker, so an unbounded loop would block every session.
const DefaultStepLimit = 1_000_000

// QuillServer serves evaluation over Connect (HTTP/JSON) and a WebSocket
// stream on the same port.
type QuillServer struct {
	worker    *Worker
	sessions  *SessionStore
	evaluator *Evaluator
	tokens    *TokenIssuer
	mux       *http.ServeMux
}

// ServerOption configures a QuillServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	journal      *journal.Journal
	tokenSecret  string
	compilerOpts []compiler.Option
	vmOpts       []vm.Option
	stepLimit    int
}

// WithJournal records every run in j.
func WithJournal(j *journal.Journal) ServerOption {
	return func(c *serverConfig) { c.journal = j }
}

// WithTokenSecret requires a signed session token on every request that
// names a session. An empty secret disables tokens.
func WithTokenSecret(secret string) ServerOption {
	return func(c *serverConfig) { c.tokenSecret = secret }
}

// WithCompilerOptions sets options applied to every compilation.
func WithCompilerOptions(opts ...compiler.Option) ServerOption {
	return func(c *serverConfig) { c.compilerOpts = append(c.compilerOpts, opts...) }
}

// WithVMOptions sets options applied to every run.
func WithVMOptions(opts ...vm.Option) ServerOption {
	return func(c *serverConfig) { c.vmOpts = append(c.vmOpts, opts...) }
}

// WithStepLimit bounds the instructions a single run may execute. It takes
// precedence over any step limit passed through WithVMOptions; n <= 0
// keeps DefaultStepLimit.
func WithStepLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.stepLimit = n
		}
	}
}

// New creates a QuillServer.
func New(opts ...ServerOption) *QuillServer {
	cfg := &serverConfig{stepLimit: DefaultStepLimit}
	for _, opt := range opts {
		opt(cfg)
	}
	vmOpts := append(append([]vm.Option{}, cfg.vmOpts...), vm.WithStepLimit(cfg.stepLimit))

	worker := NewWorker()
	sessions := NewSessionStore()
	evaluator := &Evaluator{
		worker:       worker,
		sessions:     sessions,
		journal:      cfg.journal,
		compilerOpts: cfg.compilerOpts,
		vmOpts:       vmOpts,
	}

	s := &QuillServer{
		worker:    worker,
		sessions:  sessions,
		evaluator: evaluator,
		mux:       http.NewServeMux(),
	}
	if cfg.tokenSecret != "" {
		s.tokens = NewTokenIssuer(cfg.tokenSecret, DefaultTokenTTL)
	}

	evalSvc := NewEvalService(evaluator, s.tokens)
	sessionSvc := NewSessionServiceImpl(evaluator, sessions, s.tokens)
	codec := connect.WithCodec(jsonCodec{})

	s.mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, evalSvc.Evaluate, codec))
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, evalSvc.Compile, codec))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, sessionSvc.CreateSession, codec))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, sessionSvc.DestroySession, codec))
	s.mux.Handle(ListGlobalsProcedure, connect.NewUnaryHandler(ListGlobalsProcedure, sessionSvc.ListGlobals, codec))
	s.mux.Handle(ListSessionsProcedure, connect.NewUnaryHandler(ListSessionsProcedure, sessionSvc.ListSessions, codec))
	s.mux.Handle(StreamPath, NewStreamHandler(evaluator, s.tokens))

	return s
}

// Handler returns the HTTP handler serving every endpoint.
func (s *QuillServer) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *QuillServer) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *QuillServer) ListenAndServe(addr string) error {
	log.Noticef("quill server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, EvaluateProcedure)
	log.Noticef("  WebSocket stream:    ws://%s%s", addr, StreamPath)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server's worker.
func (s *QuillServer) Stop() {
	s.worker.Stop()
}
