package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lingora/lingora/internal/chat"
)

// maxRequestBytes bounds request bodies to keep decode memory predictable.
const maxRequestBytes = 1 << 20

// Answerer is the orchestrator surface the HTTP layer depends on.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (*chat.Result, error)
	GenerateTitle(ctx context.Context, question string) string
}

// chatHandler serves the chat and title endpoints.
type chatHandler struct {
	agent  Answerer
	logger *slog.Logger
}

// historyMessage is one caller-supplied conversation entry.
type historyMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// chatRequest is the POST /api/v1/chat body. History uses a pointer so an
// explicitly empty list is distinguishable from an absent field: presence
// switches the turn to caller-supplied history and bypasses server memory.
type chatRequest struct {
	Question  string            `json:"question"`
	Type      string            `json:"type"` // "grammar", "vocab", or empty
	SessionID string            `json:"session_id"`
	History   *[]historyMessage `json:"history"`
}

// chatResponse is the POST /api/v1/chat reply.
type chatResponse struct {
	Answer string `json:"answer"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	agentReq := chat.Request{
		Question:       req.Question,
		DomainOverride: req.Type,
		SessionID:      req.SessionID,
	}
	if req.History != nil {
		agentReq.HistoryProvided = true
		agentReq.History = make([]chat.HistoryMessage, 0, len(*req.History))
		for _, m := range *req.History {
			agentReq.History = append(agentReq.History, chat.HistoryMessage{
				Sender:  m.Sender,
				Content: m.Content,
			})
		}
	}

	result, err := h.agent.Answer(r.Context(), agentReq)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, "invalid_question", "question must not be empty")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
			h.logger.Debug("chat request canceled", "request_id", requestIDFromContext(r.Context()))
		default:
			h.logger.Error("answering chat request",
				"error", err,
				"session_id", req.SessionID,
				"request_id", requestIDFromContext(r.Context()),
			)
			writeError(w, http.StatusInternalServerError, "chat_failed", "failed to answer")
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: result.Answer})
}

// titleRequest is the POST /api/v1/title body.
type titleRequest struct {
	Question string `json:"question"`
}

// titleResponse is the POST /api/v1/title reply.
type titleResponse struct {
	Title string `json:"title"`
}

// generateTitle handles POST /api/v1/title.
func (h *chatHandler) generateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_question", "question must not be empty")
		return
	}

	title := h.agent.GenerateTitle(r.Context(), req.Question)
	writeJSON(w, http.StatusOK, titleResponse{Title: title})
}

// decodeBody decodes a bounded JSON request body into dst, writing a 400 and
// returning false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON request body")
		return false
	}
	return true
}
