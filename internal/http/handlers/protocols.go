package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/notify"
	"github.com/innervoice/guide-ai-platform/internal/pipeline"
	"github.com/innervoice/guide-ai-platform/internal/synthesis"
	"github.com/innervoice/guide-ai-platform/internal/tenancy"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// AudioDirectory lists synthesis items for a protocol.
type AudioDirectory interface {
	ListByProtocol(ctx context.Context, tenantID, protocolID string, kinds []string) ([]synthesis.Item, error)
}

// ProtocolsHandler exposes protocol generation and retrieval.
type ProtocolsHandler struct {
	agents    *agent.Service
	protocols *pipeline.Service
	audio     AudioDirectory
	notifier  *notify.Service
	logger    *logging.Logger
}

// NewProtocolsHandler wires the protocol endpoints. The audio directory and
// notifier are optional.
func NewProtocolsHandler(agents *agent.Service, protocols *pipeline.Service, audio AudioDirectory, notifier *notify.Service, logger *logging.Logger) *ProtocolsHandler {
	if agents == nil || protocols == nil {
		panic("handlers: agent and protocol services cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ProtocolsHandler{agents: agents, protocols: protocols, audio: audio, notifier: notifier, logger: logger}
}

type generateRequest struct {
	pipeline.DiscoveryInput
	NotifyEmail string `json:"notify_email,omitempty"`
	NotifyName  string `json:"notify_name,omitempty"`
}

// Generate handles POST /agents/{agentID}/protocols. The run is synchronous;
// on stage failure the response carries the run id so the client can inspect
// the partial state and retry.
func (h *ProtocolsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	contract, err := h.agents.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	protocol, runID, err := h.protocols.Generate(r.Context(), contract, req.DiscoveryInput)
	if err != nil {
		var failure *pipeline.StageFailure
		if errors.As(err, &failure) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":        "generation failed",
				"run_id":       runID,
				"failed_stage": failure.Stage,
			})
			return
		}
		writeError(w, err)
		return
	}

	if h.notifier != nil && req.NotifyEmail != "" {
		go h.sendReadyEmail(notify.Recipient{Email: req.NotifyEmail, Name: req.NotifyName}, contract.Name, protocol)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"run_id": runID, "protocol": protocol})
}

// sendReadyEmail runs outside the request context so a slow provider
// cannot hold the response open.
func (h *ProtocolsHandler) sendReadyEmail(to notify.Recipient, agentName string, protocol *pipeline.Protocol) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.notifier.NotifyProtocolReady(ctx, to, agentName, protocol); err != nil {
		h.logger.Warn("protocol ready email failed", "protocol_id", protocol.ID, "error", err)
	}
}

// GetRun handles GET /runs/{runID}.
func (h *ProtocolsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	caller, err := tenancy.RequireCaller(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := h.protocols.Run(r.Context(), caller.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetProtocol handles GET /protocols/{protocolID}.
func (h *ProtocolsHandler) GetProtocol(w http.ResponseWriter, r *http.Request) {
	caller, err := tenancy.RequireCaller(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	protocol, err := h.protocols.Protocol(r.Context(), caller.TenantID, chi.URLParam(r, "protocolID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol)
}

// LatestProtocol handles GET /agents/{agentID}/protocols/latest.
func (h *ProtocolsHandler) LatestProtocol(w http.ResponseWriter, r *http.Request) {
	caller, err := tenancy.RequireCaller(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	protocol, err := h.protocols.LatestProtocol(r.Context(), caller.TenantID, chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol)
}

// ListAudio handles GET /protocols/{protocolID}/audio. An optional "kinds"
// query parameter filters by comma-separated item kinds.
func (h *ProtocolsHandler) ListAudio(w http.ResponseWriter, r *http.Request) {
	caller, err := tenancy.RequireCaller(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if h.audio == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []synthesis.Item{}})
		return
	}

	var kinds []string
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, kind := range strings.Split(raw, ",") {
			if kind = strings.TrimSpace(kind); kind != "" {
				kinds = append(kinds, kind)
			}
		}
	}

	items, err := h.audio.ListByProtocol(r.Context(), caller.TenantID, chi.URLParam(r, "protocolID"), kinds)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []synthesis.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
