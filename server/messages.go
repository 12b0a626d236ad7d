package server

import "encoding/json"

// Procedure paths served over Connect.
const (
	EvaluationServiceName = "quill.v1.EvaluationService"
	SessionServiceName    = "quill.v1.SessionService"

	EvaluateProcedure       = "/" + EvaluationServiceName + "/Evaluate"
	CompileProcedure        = "/" + EvaluationServiceName + "/Compile"
	CreateSessionProcedure  = "/" + SessionServiceName + "/CreateSession"
	DestroySessionProcedure = "/" + SessionServiceName + "/DestroySession"
	ListGlobalsProcedure    = "/" + SessionServiceName + "/ListGlobals"
	ListSessionsProcedure   = "/" + SessionServiceName + "/ListSessions"

	// StreamPath is the WebSocket endpoint for streaming evaluation.
	StreamPath = "/stream"
)

// ProgramSource carries a program tree as JSON or as YAML text.
// Exactly one of the two must be set.
type ProgramSource struct {
	Program json.RawMessage `json:"program,omitempty"`
	YAML    string          `json:"yaml,omitempty"`
}

// EvaluateRequest runs a program. An empty SessionID runs it in a fresh,
// throwaway session.
type EvaluateRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	ProgramSource
}

// ValueView is a printed value rendered for clients.
type ValueView struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// EvaluateResponse reports the outputs of a run or the error that stopped it.
type EvaluateResponse struct {
	Success      bool        `json:"success"`
	Outputs      []ValueView `json:"outputs"`
	ErrorKind    string      `json:"errorKind,omitempty"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Offset       int         `json:"offset,omitempty"`
	Fingerprint  string      `json:"fingerprint,omitempty"`
	RunID        string      `json:"runId,omitempty"`
	Steps        int         `json:"steps"`
}

// CompileRequest compiles a program without running it.
type CompileRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	ProgramSource
}

// CompileResponse describes a compiled program.
type CompileResponse struct {
	Success      bool     `json:"success"`
	ErrorKind    string   `json:"errorKind,omitempty"`
	ErrorCode    string   `json:"errorCode,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	Cells        int      `json:"cells"`
	Constants    int      `json:"constants"`
	Listing      []string `json:"listing,omitempty"`
	// Encoded is the canonical CBOR form of the chunk and its strings.
	Encoded []byte `json:"encoded,omitempty"`
}

type CreateSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name,omitempty"`
	// Token must accompany later requests for this session when the server
	// signs session tokens.
	Token string `json:"token,omitempty"`
}

type DestroySessionRequest struct {
	SessionID string `json:"sessionId"`
}

type DestroySessionResponse struct {
	Destroyed bool `json:"destroyed"`
}

type ListGlobalsRequest struct {
	SessionID string `json:"sessionId"`
}

// Binding is one global variable of a session.
type Binding struct {
	Name  string    `json:"name"`
	Value ValueView `json:"value"`
}

type ListGlobalsResponse struct {
	Globals []Binding `json:"globals"`
}

type ListSessionsRequest struct{}

// SessionInfo summarizes a session.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name,omitempty"`
	Runs      int    `json:"runs"`
	Globals   int    `json:"globals"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// StreamFrame is one WebSocket message sent during streaming evaluation:
// one "output" frame per printed value, then one "result" frame.
type StreamFrame struct {
	Type   string            `json:"type"`
	Output *ValueView        `json:"output,omitempty"`
	Result *EvaluateResponse `json:"result,omitempty"`
}

// Stream frame types
const (
	FrameOutput = "output"
	FrameResult = "result"
	FrameError  = "error"
)
