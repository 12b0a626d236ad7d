package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chazu/quill/journal"
)

const maxStreamMessage = 1 << 20

// streamConn serializes writes to one WebSocket connection.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) send(frame StreamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *streamConn) sendError(err error) error {
	kind, code, message, offset := describeError(err)
	return c.send(StreamFrame{
		Type: FrameError,
		Result: &EvaluateResponse{
			Outputs:      []ValueView{},
			ErrorKind:    kind,
			ErrorCode:    code,
			ErrorMessage: message,
			Offset:       offset,
		},
	})
}

// StreamHandler evaluates programs sent over a WebSocket, pushing each
// printed value to the client as it is produced.
type StreamHandler struct {
	evaluator *Evaluator
	tokens    *TokenIssuer
	upgrader  websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(evaluator *Evaluator, tokens *TokenIssuer) *StreamHandler {
	return &StreamHandler{
		evaluator: evaluator,
		tokens:    tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxStreamMessage)

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r.Header)
	}

	c := &streamConn{conn: conn}
	log.Debugf("stream opened from %s", r.RemoteAddr)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warningf("stream read: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.handle(r, c, token, data); err != nil {
			log.Warningf("stream write: %v", err)
			return
		}
	}
}

// handle evaluates one request. It returns an error only when the
// connection can no longer be written to.
func (h *StreamHandler) handle(r *http.Request, c *streamConn, token string, data []byte) error {
	var req EvaluateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return c.sendError(errors.New("malformed request: " + err.Error()))
	}
	if h.tokens != nil && req.SessionID != "" {
		if err := h.tokens.AuthorizeToken(token, req.SessionID); err != nil {
			return c.sendError(err)
		}
	}
	program, err := decodeProgram(req.ProgramSource)
	if err != nil {
		return c.sendError(err)
	}

	var writeErr error
	onPrint := func(v ValueView) {
		if writeErr != nil {
			return
		}
		writeErr = c.send(StreamFrame{Type: FrameOutput, Output: &v})
	}

	res, err := h.evaluator.Evaluate(r.Context(), req.SessionID, journal.SourceStream, program, onPrint)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return c.sendError(err)
	}
	return c.send(StreamFrame{Type: FrameResult, Result: res})
}
