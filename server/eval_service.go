package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/chazu/quill/journal"
)

// connectError maps service errors to Connect codes.
func connectError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrUnauthorized):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// EvalService implements the EvaluationService Connect handler.
type EvalService struct {
	evaluator *Evaluator
	tokens    *TokenIssuer
}

// NewEvalService creates an EvalService.
func NewEvalService(evaluator *Evaluator, tokens *TokenIssuer) *EvalService {
	return &EvalService{
		evaluator: evaluator,
		tokens:    tokens,
	}
}

func (s *EvalService) authorize(req connect.AnyRequest, sessionID string) error {
	if s.tokens == nil || sessionID == "" {
		return nil
	}
	return s.tokens.Authorize(req.Header(), sessionID)
}

// Evaluate compiles and runs a program tree. Compile and runtime failures
// are reported in the response; only request problems are Connect errors.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[EvaluateRequest],
) (*connect.Response[EvaluateResponse], error) {
	if err := s.authorize(req, req.Msg.SessionID); err != nil {
		return nil, connectError(err)
	}
	program, err := decodeProgram(req.Msg.ProgramSource)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	res, err := s.evaluator.Evaluate(ctx, req.Msg.SessionID, journal.SourceService, program, nil)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(res), nil
}

// Compile compiles a program tree and returns its listing, fingerprint and
// canonical encoding.
func (s *EvalService) Compile(
	ctx context.Context,
	req *connect.Request[CompileRequest],
) (*connect.Response[CompileResponse], error) {
	if err := s.authorize(req, req.Msg.SessionID); err != nil {
		return nil, connectError(err)
	}
	program, err := decodeProgram(req.Msg.ProgramSource)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	res, err := s.evaluator.Compile(ctx, req.Msg.SessionID, program)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(res), nil
}
