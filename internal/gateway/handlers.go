package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sidekick/internal/agent"
	"sidekick/internal/bus"
	"sidekick/internal/subagent"
)

type notifyRequest struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Secret)) == 1
}

// handleNotify injects an external event into the agent. The agent sees it
// as a system message and replies to the given (or default) destination.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = s.cfg.DefaultChannel
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		chatID = s.cfg.DefaultChatID
	}
	if channel == "" || chatID == "" {
		writeError(w, http.StatusBadRequest, "no destination: set channel and chat_id or configure defaults")
		return
	}

	s.bus.PublishInbound(bus.InboundMessage{
		Channel:   bus.SystemChannel,
		SenderID:  "webhook",
		ChatID:    bus.JoinOrigin(channel, chatID),
		Content:   message,
		Timestamp: time.Now(),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSubagents(w http.ResponseWriter, r *http.Request) {
	if s.subagents == nil {
		writeError(w, http.StatusNotFound, "subagents unavailable")
		return
	}
	tasks := s.subagents.Running()
	if tasks == nil {
		tasks = []subagent.TaskInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": len(tasks),
		"tasks":   tasks,
	})
}

func (s *Server) handleCancelSubagent(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.subagents == nil || !s.subagents.Cancel(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run log unavailable")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleChat runs one agent turn and streams its progress as server-sent
// events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusNotFound, "chat unavailable")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	sse := NewSSEWriter(w)
	var sentError bool

	reply, err := s.chat.ProcessStream(r.Context(), req.Message, "api", req.SessionID, func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToolCall:
			sse.Send("tool_call", ev.Data)
		case agent.EventToolResult:
			sse.Send("tool_result", ev.Data)
		case agent.EventError:
			sentError = true
			sse.Send("error", map[string]any{"error": ev.Data})
		}
	})

	if err != nil {
		if !sentError {
			sse.Send("error", map[string]string{"error": err.Error()})
		}
		return
	}
	sse.Send("done", map[string]string{"content": reply})
}
