package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/internal/tenancy"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// ContractDirectory is the slice of the contract store the service needs.
type ContractDirectory interface {
	Create(ctx context.Context, contract *Contract) error
	Update(ctx context.Context, tenantID, agentID string, patch Patch, reason string) (*Contract, error)
	Archive(ctx context.Context, tenantID, agentID string) error
	Get(ctx context.Context, tenantID, agentID string) (*Contract, error)
	ListVersions(ctx context.Context, tenantID, agentID string, limit int) ([]ContractVersion, error)
	RecordInteraction(ctx context.Context, tenantID, agentID string, at time.Time) error
}

// ThreadDirectory is the slice of the thread store the service needs.
type ThreadDirectory interface {
	Create(ctx context.Context, tenantID, agentID, userID, title string) (*Thread, error)
	Get(ctx context.Context, tenantID, threadID string) (*Thread, error)
	ListByAgent(ctx context.Context, tenantID, agentID string) ([]Thread, error)
	AppendMessage(ctx context.Context, threadID, role, content string, metadata map[string]string) (*Message, error)
	RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	UpdateContextSummary(ctx context.Context, threadID, summary string) error
}

// MemoryBank is the slice of the memory manager the lifecycle service needs.
// Remember reports degraded=true when the record was stored without an
// embedding and will only surface through recency recall.
type MemoryBank interface {
	Remember(ctx context.Context, tenantID, agentID, contextID, role, content string) (degraded bool, err error)
	Recall(ctx context.Context, tenantID, agentID, contextID, query string, depth int) ([]string, error)
}

// ChatMetricsRecorder records chat outcomes for observability.
type ChatMetricsRecorder interface {
	RecordChat(model string, duration time.Duration, err error)
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	ThreadID string
	Reply    string
	Usage    llm.TokenUsage
	Model    string
}

// Service coordinates the agent lifecycle: contract CRUD, thread management,
// and chat turns that stitch together persona, history, and recalled memory.
type Service struct {
	contracts ContractDirectory
	threads   ThreadDirectory
	memory    MemoryBank
	completer llm.Client
	metrics   ChatMetricsRecorder
	logger    *logging.Logger

	chatLocks *keyedMutex
}

// NewService creates the lifecycle service. The memory bank and metrics
// recorder are optional; everything else is required.
func NewService(contracts ContractDirectory, threads ThreadDirectory, memory MemoryBank, completer llm.Client, metrics ChatMetricsRecorder, logger *logging.Logger) *Service {
	if contracts == nil {
		panic("agent: contract store is required")
	}
	if threads == nil {
		panic("agent: thread store is required")
	}
	if completer == nil {
		panic("agent: completion client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		contracts: contracts,
		threads:   threads,
		memory:    memory,
		completer: completer,
		metrics:   metrics,
		logger:    logger,
		chatLocks: newKeyedMutex(),
	}
}

// CreateAgent validates and persists a new contract, then bootstraps its
// default thread so the first chat does not need a separate setup call.
func (s *Service) CreateAgent(ctx context.Context, draft *Contract) (*Contract, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	draft.TenantID = caller.TenantID
	if draft.OwnerID == "" {
		draft.OwnerID = caller.UserID
	}

	if err := s.contracts.Create(ctx, draft); err != nil {
		return nil, err
	}

	if _, err := s.threads.Create(ctx, caller.TenantID, draft.ID, caller.UserID, "General"); err != nil {
		s.logger.Error("default thread bootstrap failed", "agent_id", draft.ID, "error", err)
	}

	// Seed the agent's memory namespace so the first recall has something
	// to anchor on.
	if s.memory != nil && draft.Configuration.MemoryEnabled {
		seed := fmt.Sprintf("Agent %q created. Mission: %s", draft.Name, draft.Identity.Mission)
		degraded, err := s.memory.Remember(ctx, caller.TenantID, draft.ID, "", "system", seed)
		if err != nil {
			s.logger.Warn("memory seed failed", "agent_id", draft.ID, "error", err)
		} else if degraded {
			s.logger.Warn("memory seed stored degraded", "agent_id", draft.ID)
		}
	}

	s.logger.Info("agent created",
		"agent_id", draft.ID,
		"tenant_id", draft.TenantID,
		"type", draft.Type,
		"version", draft.Version)
	return draft, nil
}

// UpdateAgent applies a patch atomically and snapshots the prior contract.
func (s *Service) UpdateAgent(ctx context.Context, agentID string, patch Patch, reason string) (*Contract, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := s.contracts.Update(ctx, caller.TenantID, agentID, patch, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("agent updated", "agent_id", agentID, "version", updated.Version, "reason", reason)
	return updated, nil
}

// ArchiveAgent soft-removes an agent. Archived agents keep their history
// but reject new chat turns.
func (s *Service) ArchiveAgent(ctx context.Context, agentID string) error {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return err
	}
	return s.contracts.Archive(ctx, caller.TenantID, agentID)
}

// GetAgent loads a contract scoped to the caller's tenant.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*Contract, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.contracts.Get(ctx, caller.TenantID, agentID)
}

// ListVersions returns the audit trail for an agent, newest first.
func (s *Service) ListVersions(ctx context.Context, agentID string, limit int) ([]ContractVersion, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.contracts.ListVersions(ctx, caller.TenantID, agentID, limit)
}

// ListThreads returns the caller's threads for an agent.
func (s *Service) ListThreads(ctx context.Context, agentID string) ([]Thread, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.threads.ListByAgent(ctx, caller.TenantID, agentID)
}

// CreateThread opens a new conversation context for an agent.
func (s *Service) CreateThread(ctx context.Context, agentID, title string) (*Thread, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.contracts.Get(ctx, caller.TenantID, agentID); err != nil {
		return nil, err
	}
	if title == "" {
		title = "New thread"
	}
	return s.threads.Create(ctx, caller.TenantID, agentID, caller.UserID, title)
}

// ChatWithAgent runs one turn without requiring the caller to manage threads.
// When threadID is empty the caller's most recently active thread for the
// agent is reused, or one is created on the spot.
func (s *Service) ChatWithAgent(ctx context.Context, agentID, threadID, message string) (*ChatResult, error) {
	if threadID != "" {
		return s.Chat(ctx, threadID, message)
	}
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.contracts.Get(ctx, caller.TenantID, agentID); err != nil {
		return nil, err
	}

	existing, err := s.threads.ListByAgent(ctx, caller.TenantID, agentID)
	if err != nil {
		return nil, err
	}
	// ListByAgent orders by most recent activity, so the first match wins.
	for _, t := range existing {
		if t.UserID == caller.UserID && t.Status == "active" {
			return s.Chat(ctx, t.ID, message)
		}
	}

	thread, err := s.threads.Create(ctx, caller.TenantID, agentID, caller.UserID, "General")
	if err != nil {
		return nil, err
	}
	return s.Chat(ctx, thread.ID, message)
}

// Chat runs one turn against an agent in a thread. Turns within a thread are
// serialized so history ordering stays stable under concurrent sends.
//
// If the completion provider fails, the inbound user message is still
// persisted and a CompletionUnavailableError is returned so the client can
// retry without losing the turn.
func (s *Service) Chat(ctx context.Context, threadID, message string) (*ChatResult, error) {
	caller, err := tenancy.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, newValidationError("message", "must not be empty")
	}

	unlock := s.chatLocks.Lock(threadID)
	defer unlock()

	thread, err := s.threads.Get(ctx, caller.TenantID, threadID)
	if err != nil {
		return nil, err
	}

	contract, err := s.contracts.Get(ctx, caller.TenantID, thread.AgentID)
	if err != nil {
		return nil, err
	}
	if contract.Status != StatusActive {
		return nil, newValidationError("agent", "agent is archived")
	}

	prompt := RenderPersona(contract)

	if thread.ContextSummary != "" {
		prompt.System = append(prompt.System, "Conversation so far: "+thread.ContextSummary)
	}

	if s.memory != nil && contract.Configuration.MemoryEnabled {
		recalled, err := s.memory.Recall(ctx, caller.TenantID, contract.ID, thread.ID, message, contract.Configuration.RecallDepth)
		if err != nil {
			s.logger.Warn("memory recall degraded", "agent_id", contract.ID, "thread_id", thread.ID, "error", err)
		} else if len(recalled) > 0 {
			prompt.System = append(prompt.System, "Relevant memories:\n- "+strings.Join(recalled, "\n- "))
		}
	}

	history, err := s.threads.RecentMessages(ctx, thread.ID, contract.Configuration.ThreadWindow)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleUser, Content: message})

	start := time.Now()
	resp, llmErr := s.completer.Complete(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		Messages:    messages,
		MaxTokens:   prompt.MaxTokens,
		Temperature: prompt.Temperature,
	})
	if s.metrics != nil {
		s.metrics.RecordChat(prompt.Model, time.Since(start), llmErr)
	}

	if _, err := s.threads.AppendMessage(ctx, thread.ID, llm.ChatRoleUser, message, nil); err != nil {
		return nil, err
	}

	if llmErr != nil {
		s.logger.Error("completion failed", "agent_id", contract.ID, "thread_id", thread.ID, "error", llmErr)
		return nil, &CompletionUnavailableError{ThreadID: thread.ID, Err: llmErr}
	}

	if _, err := s.threads.AppendMessage(ctx, thread.ID, llm.ChatRoleAssistant, resp.Text, map[string]string{
		"model":       prompt.Model,
		"stop_reason": resp.StopReason,
	}); err != nil {
		return nil, err
	}

	if s.memory != nil && contract.Configuration.MemoryEnabled {
		s.remember(ctx, caller.TenantID, contract.ID, thread.ID, llm.ChatRoleUser, message)
		s.remember(ctx, caller.TenantID, contract.ID, thread.ID, llm.ChatRoleAssistant, resp.Text)
	}

	if err := s.contracts.RecordInteraction(ctx, caller.TenantID, contract.ID, time.Now()); err != nil {
		s.logger.Warn("interaction counter update failed", "agent_id", contract.ID, "error", err)
	}

	// Refresh the rolling digest whenever the thread fills another context
	// window, so turns scrolled out of the window survive as summary.
	if window := contract.Configuration.ThreadWindow; window > 0 && (thread.MessageCount+2)%window == 0 {
		s.refreshSummary(ctx, thread, history, message, resp.Text)
	}

	return &ChatResult{
		ThreadID: thread.ID,
		Reply:    resp.Text,
		Usage:    resp.Usage,
		Model:    prompt.Model,
	}, nil
}

// remember writes one turn into the memory bank and surfaces the degraded
// signal from the namespace, so operators can see when recall quality drops.
func (s *Service) remember(ctx context.Context, tenantID, agentID, threadID, role, content string) {
	degraded, err := s.memory.Remember(ctx, tenantID, agentID, threadID, role, content)
	if err != nil {
		s.logger.Warn("memory write failed", "agent_id", agentID, "thread_id", threadID, "error", err)
		return
	}
	if degraded {
		s.logger.Warn("memory write stored without embedding", "agent_id", agentID, "thread_id", threadID)
	}
}

// refreshSummary recomputes the rolling digest from the recent window.
// Failures are logged and swallowed; the digest is best-effort.
func (s *Service) refreshSummary(ctx context.Context, thread *Thread, history []Message, userMsg, reply string) {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "user: %s\nassistant: %s\n", userMsg, reply)

	resp, err := s.completer.Complete(ctx, llm.Request{
		System:    []string{"Summarize the following conversation in at most three sentences. Mention goals, decisions, and open questions."},
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: b.String()}},
		MaxTokens: 256,
	})
	if err != nil {
		s.logger.Warn("thread summary refresh failed", "thread_id", thread.ID, "error", err)
		return
	}
	if err := s.threads.UpdateContextSummary(ctx, thread.ID, strings.TrimSpace(resp.Text)); err != nil {
		s.logger.Warn("thread summary persist failed", "thread_id", thread.ID, "error", err)
	}
}
