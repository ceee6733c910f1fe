package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// AgentsHandler exposes the agent lifecycle over HTTP.
type AgentsHandler struct {
	svc    *agent.Service
	logger *logging.Logger
}

func NewAgentsHandler(svc *agent.Service, logger *logging.Logger) *AgentsHandler {
	if svc == nil {
		panic("handlers: agent service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AgentsHandler{svc: svc, logger: logger}
}

// CreateAgent handles POST /agents.
func (h *AgentsHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var draft agent.Contract
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	created, err := h.svc.CreateAgent(r.Context(), &draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetAgent handles GET /agents/{agentID}.
func (h *AgentsHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	contract, err := h.svc.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

type updateAgentRequest struct {
	Patch  agent.Patch `json:"patch"`
	Reason string      `json:"reason"`
}

// UpdateAgent handles PATCH /agents/{agentID}. The previous contract is
// snapshotted before the patch lands, so the version trail stays complete.
func (h *AgentsHandler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	updated, err := h.svc.UpdateAgent(r.Context(), chi.URLParam(r, "agentID"), req.Patch, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ArchiveAgent handles DELETE /agents/{agentID}.
func (h *AgentsHandler) ArchiveAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ArchiveAgent(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVersions handles GET /agents/{agentID}/versions.
func (h *AgentsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ListVersions(r.Context(), chi.URLParam(r, "agentID"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// ListThreads handles GET /agents/{agentID}/threads.
func (h *AgentsHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.svc.ListThreads(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

type createThreadRequest struct {
	Title string `json:"title"`
}

// CreateThread handles POST /agents/{agentID}/threads.
func (h *AgentsHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	thread, err := h.svc.CreateThread(r.Context(), chi.URLParam(r, "agentID"), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

type chatResponse struct {
	ThreadID     string `json:"thread_id"`
	Reply        string `json:"reply"`
	Model        string `json:"model"`
	InputTokens  int32  `json:"input_tokens"`
	OutputTokens int32  `json:"output_tokens"`
}

// Chat handles POST /threads/{threadID}/messages.
func (h *AgentsHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	result, err := h.svc.Chat(r.Context(), chi.URLParam(r, "threadID"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ThreadID:     result.ThreadID,
		Reply:        result.Reply,
		Model:        result.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	})
}

// ChatWithAgent handles POST /agents/{agentID}/chat. The thread id is
// optional; without one the caller's most recent thread is reused or a new
// one is opened.
func (h *AgentsHandler) ChatWithAgent(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	result, err := h.svc.ChatWithAgent(r.Context(), chi.URLParam(r, "agentID"), req.ThreadID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ThreadID:     result.ThreadID,
		Reply:        result.Reply,
		Model:        result.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	})
}
