package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/problem"
	"github.com/wonny/allocator/internal/worker"
	"github.com/wonny/allocator/pkg/logger"
)

const (
	// wsIdleTimeout closes a websocket without any message for this long
	wsIdleTimeout = 5 * time.Minute
	wsWriteWait   = 10 * time.Second
)

// SolveHandler handles allocation requests over HTTP and websocket
// ⭐ SSOT: 배분 계산 API 핸들러는 이 구조체에서만
type SolveHandler struct {
	pool     *worker.Pool
	solver   contracts.Solver
	timeout  time.Duration
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewSolveHandler creates a new solve handler.
// HTTP requests share pool; each websocket connection gets its own worker session.
func NewSolveHandler(pool *worker.Pool, solver contracts.Solver, timeout time.Duration, log *logger.Logger) *SolveHandler {
	return &SolveHandler{
		pool:    pool,
		solver:  solver,
		timeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// wsResponse is one websocket reply; exactly one of Solution and Error is set
type wsResponse struct {
	Solution *contracts.Solution `json:"solution,omitempty"`
	Error    string              `json:"error,omitempty"`
	Status   int                 `json:"status"`
}

// Solve computes one allocation
// POST /api/solve
func (h *SolveHandler) Solve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := decodeProblem(body)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	sol, err := h.pool.Solve(r.Context(), p)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sol)
}

// ServeWS answers each text message with one solution message
// GET /ws/solve
func (h *SolveHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	session := worker.NewSession(h.solver, h.logger)
	defer session.Close()

	conn.SetReadLimit(maxBodyBytes)
	log := h.logger.WithField("remote", r.RemoteAddr)
	log.Debug("websocket session opened")

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("websocket read failed")
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp := h.solveMessage(r, session, data)

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			log.WithError(err).Warn("websocket write failed")
			break
		}
	}

	log.Debug("websocket session closed")
}

func (h *SolveHandler) solveMessage(r *http.Request, session *worker.Session, data []byte) wsResponse {
	p, err := decodeProblem(data)
	if err == nil {
		var sol *contracts.Solution
		sol, err = session.Solve(r.Context(), p, h.timeout)
		if err == nil {
			return wsResponse{Solution: sol, Status: http.StatusOK}
		}
	}

	status, message := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		h.logger.WithError(err).Error("websocket solve failed")
	}
	return wsResponse{Error: message, Status: status}
}

func decodeProblem(data []byte) (*contracts.Problem, error) {
	req, err := problem.DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	return req.Problem()
}
