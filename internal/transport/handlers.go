package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ariaworks/aria/internal/errkind"
)

type chatSendRequest struct {
	SessionID       string `json:"session_id"`
	UserContent     string `json:"user_content"`
	EnableTools     bool   `json:"enable_tools"`
	EnableThinking  bool   `json:"enable_thinking"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errkind.New(errkind.Validation, "POST required"))
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.UpstreamUnavailable, "chat engine not configured"))
		return
	}

	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errkind.New(errkind.Validation, "invalid request body"))
		return
	}

	msg, err := s.chat.SendMessage(r.Context(), req.SessionID, req.UserContent, req.EnableTools, req.EnableThinking)
	if err != nil {
		writeError(w, errkind.KindOf(err).HTTPStatus(), err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type discussRequest struct {
	Topic               string `json:"topic"`
	AgentIDs            []string `json:"agent_ids"`
	Rounds              int    `json:"rounds"`
	SynthesizerID       string `json:"synthesizer_id"`
	AgentTimeoutSeconds int    `json:"agent_timeout_seconds"`
	TotalTimeoutSeconds int    `json:"total_timeout_seconds"`
}

func (req discussRequest) timeouts() (time.Duration, time.Duration) {
	var agentTimeout, totalTimeout time.Duration
	if req.AgentTimeoutSeconds > 0 {
		agentTimeout = time.Duration(req.AgentTimeoutSeconds) * time.Second
	}
	if req.TotalTimeoutSeconds > 0 {
		totalTimeout = time.Duration(req.TotalTimeoutSeconds) * time.Second
	}
	return agentTimeout, totalTimeout
}

func (s *Server) handleRoundtableDiscuss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errkind.New(errkind.Validation, "POST required"))
		return
	}
	if s.round == nil {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.UpstreamUnavailable, "roundtable engine not configured"))
		return
	}

	var req discussRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errkind.New(errkind.Validation, "invalid request body"))
		return
	}
	agentTimeout, totalTimeout := req.timeouts()

	record, err := s.round.Discuss(r.Context(), req.Topic, req.AgentIDs, req.Rounds, req.SynthesizerID, agentTimeout, totalTimeout)
	if err != nil {
		writeError(w, errkind.KindOf(err).HTTPStatus(), err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleRoundtableDiscussAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errkind.New(errkind.Validation, "POST required"))
		return
	}
	if s.round == nil {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.UpstreamUnavailable, "roundtable engine not configured"))
		return
	}

	var req discussRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errkind.New(errkind.Validation, "invalid request body"))
		return
	}
	agentTimeout, totalTimeout := req.timeouts()

	key := s.round.DiscussAsync(req.Topic, req.AgentIDs, req.Rounds, req.SynthesizerID, agentTimeout, totalTimeout)
	writeJSON(w, http.StatusAccepted, map[string]string{"tracking_key": key})
}

func (s *Server) handleRoundtableStatus(w http.ResponseWriter, r *http.Request) {
	if s.round == nil {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.UpstreamUnavailable, "roundtable engine not configured"))
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/v1/roundtable/status/")
	if key == "" {
		writeError(w, http.StatusBadRequest, errkind.New(errkind.Validation, "tracking key is required"))
		return
	}
	status, ok := s.round.AsyncStatus(key)
	if !ok {
		writeError(w, http.StatusNotFound, errkind.New(errkind.NotFound, "unknown or expired tracking key"))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
