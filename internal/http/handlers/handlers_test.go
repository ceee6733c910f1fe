package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/internal/tenancy"
)

// fakeContracts is an in-memory agent.ContractDirectory.
type fakeContracts struct {
	mu        sync.Mutex
	contracts map[string]*agent.Contract
	versions  map[string][]agent.ContractVersion
}

func newFakeContracts() *fakeContracts {
	return &fakeContracts{
		contracts: make(map[string]*agent.Contract),
		versions:  make(map[string][]agent.ContractVersion),
	}
}

func (f *fakeContracts) Create(ctx context.Context, c *agent.Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.NewString()
	c.Version = "1.0.0"
	c.Status = agent.StatusActive
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.contracts[c.ID] = c
	return nil
}

func (f *fakeContracts) Update(ctx context.Context, tenantID, agentID string, patch agent.Patch, reason string) (*agent.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.contracts[agentID]
	if !ok || current.TenantID != tenantID {
		return nil, agent.ErrNotFound
	}
	if patch.Name != nil {
		current.Name = *patch.Name
	}
	current.Version = "1.0.1"
	f.versions[agentID] = append(f.versions[agentID], agent.ContractVersion{AgentID: agentID, Version: "1.0.0", Reason: reason})
	return current, nil
}

func (f *fakeContracts) Archive(ctx context.Context, tenantID, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.contracts[agentID]
	if !ok || current.TenantID != tenantID {
		return agent.ErrNotFound
	}
	current.Status = agent.StatusArchived
	return nil
}

func (f *fakeContracts) Get(ctx context.Context, tenantID, agentID string) (*agent.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.contracts[agentID]
	if !ok || current.TenantID != tenantID {
		return nil, agent.ErrNotFound
	}
	copied := *current
	return &copied, nil
}

func (f *fakeContracts) ListVersions(ctx context.Context, tenantID, agentID string, limit int) ([]agent.ContractVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.contracts[agentID]; !ok || current.TenantID != tenantID {
		return nil, agent.ErrNotFound
	}
	return f.versions[agentID], nil
}

func (f *fakeContracts) RecordInteraction(ctx context.Context, tenantID, agentID string, at time.Time) error {
	return nil
}

// fakeThreads is an in-memory agent.ThreadDirectory.
type fakeThreads struct {
	mu       sync.Mutex
	threads  map[string]*agent.Thread
	messages map[string][]agent.Message
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{
		threads:  make(map[string]*agent.Thread),
		messages: make(map[string][]agent.Message),
	}
}

func (f *fakeThreads) Create(ctx context.Context, tenantID, agentID, userID, title string) (*agent.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	thread := &agent.Thread{
		ID:       uuid.NewString(),
		AgentID:  agentID,
		UserID:   userID,
		TenantID: tenantID,
		Title:    title,
		Status:   "active",
	}
	f.threads[thread.ID] = thread
	return thread, nil
}

func (f *fakeThreads) Get(ctx context.Context, tenantID, threadID string) (*agent.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	thread, ok := f.threads[threadID]
	if !ok || thread.TenantID != tenantID {
		return nil, agent.ErrNotFound
	}
	copied := *thread
	return &copied, nil
}

func (f *fakeThreads) ListByAgent(ctx context.Context, tenantID, agentID string) ([]agent.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []agent.Thread
	for _, thread := range f.threads {
		if thread.TenantID == tenantID && thread.AgentID == agentID {
			out = append(out, *thread)
		}
	}
	return out, nil
}

func (f *fakeThreads) AppendMessage(ctx context.Context, threadID, role, content string, metadata map[string]string) (*agent.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := agent.Message{ID: uuid.New(), ThreadID: threadID, Role: role, Content: content, Metadata: metadata, CreatedAt: time.Now()}
	f.messages[threadID] = append(f.messages[threadID], msg)
	if thread, ok := f.threads[threadID]; ok {
		thread.MessageCount++
	}
	return &msg, nil
}

func (f *fakeThreads) RecentMessages(ctx context.Context, threadID string, limit int) ([]agent.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeThreads) UpdateContextSummary(ctx context.Context, threadID, summary string) error {
	return nil
}

// fakeCompleter returns a canned reply.
type fakeCompleter struct {
	reply string
	fail  bool
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.fail {
		return llm.Response{}, context.DeadlineExceeded
	}
	return llm.Response{Text: f.reply, StopReason: "end_turn", Usage: llm.TokenUsage{InputTokens: 10, OutputTokens: 20}}, nil
}

func callerCtx(tenantID, userID string) context.Context {
	return tenancy.WithCaller(context.Background(), tenancy.Caller{TenantID: tenantID, UserID: userID})
}

func validDraftJSON() string {
	return `{
		"name": "Aria",
		"type": "conversational",
		"identity": {
			"short_description": "a calm morning guide",
			"mission": "help people start the day with intention",
			"roles": ["guide"],
			"interaction_styles": ["warm", "direct"]
		},
		"traits": {
			"confidence": 50, "empathy": 50, "creativity": 50, "discipline": 50,
			"assertiveness": 50, "humor": 50, "formality": 50, "verbosity": 50,
			"spirituality": 50, "supportiveness": 50
		},
		"configuration": {
			"model": "anthropic.claude-3-5-haiku-20241022-v1:0",
			"max_tokens": 1024,
			"temperature": 0.7,
			"memory_enabled": true,
			"recall_depth": 5,
			"thread_window": 20
		}
	}`
}
