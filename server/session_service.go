package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
)

// SessionServiceImpl implements the SessionService Connect handler.
type SessionServiceImpl struct {
	evaluator *Evaluator
	sessions  *SessionStore
	tokens    *TokenIssuer
}

// NewSessionServiceImpl creates a SessionServiceImpl.
func NewSessionServiceImpl(evaluator *Evaluator, sessions *SessionStore, tokens *TokenIssuer) *SessionServiceImpl {
	return &SessionServiceImpl{
		evaluator: evaluator,
		sessions:  sessions,
		tokens:    tokens,
	}
}

func (s *SessionServiceImpl) authorize(req connect.AnyRequest, sessionID string) error {
	if sessionID == "" {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if s.tokens == nil {
		return nil
	}
	if err := s.tokens.Authorize(req.Header(), sessionID); err != nil {
		return connectError(err)
	}
	return nil
}

// CreateSession creates a new session with its own globals.
func (s *SessionServiceImpl) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session := s.sessions.Create(req.Msg.Name)
	res := &CreateSessionResponse{SessionID: session.ID, Name: session.Name}

	if s.tokens != nil {
		token, err := s.tokens.Issue(session.ID)
		if err != nil {
			s.sessions.Destroy(session.ID)
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		res.Token = token
	}

	log.Infof("session %s created", session.ID)
	return connect.NewResponse(res), nil
}

// DestroySession destroys a session and its globals.
func (s *SessionServiceImpl) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if err := s.authorize(req, req.Msg.SessionID); err != nil {
		return nil, err
	}

	destroyed := s.sessions.Destroy(req.Msg.SessionID)
	if destroyed {
		log.Infof("session %s destroyed", req.Msg.SessionID)
	}
	return connect.NewResponse(&DestroySessionResponse{Destroyed: destroyed}), nil
}

// ListGlobals lists the globals defined in a session.
func (s *SessionServiceImpl) ListGlobals(
	ctx context.Context,
	req *connect.Request[ListGlobalsRequest],
) (*connect.Response[ListGlobalsResponse], error) {
	if err := s.authorize(req, req.Msg.SessionID); err != nil {
		return nil, err
	}

	globals, err := s.evaluator.Globals(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ListGlobalsResponse{Globals: globals}), nil
}

// ListSessions summarizes every live session. It is only served when
// session tokens are disabled.
func (s *SessionServiceImpl) ListSessions(
	ctx context.Context,
	req *connect.Request[ListSessionsRequest],
) (*connect.Response[ListSessionsResponse], error) {
	if s.tokens != nil {
		return nil, connect.NewError(connect.CodePermissionDenied, fmt.Errorf("listing sessions is disabled when session tokens are required"))
	}

	infos, err := s.evaluator.Sessions(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ListSessionsResponse{Sessions: infos}), nil
}
