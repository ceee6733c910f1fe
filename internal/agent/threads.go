package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Thread is one conversation context between a user and an agent. Threads
// are created implicitly on first interaction and never hard-deleted.
type Thread struct {
	ID             string
	AgentID        string
	UserID         string
	TenantID       string
	Title          string
	Status         string
	MessageCount   int
	LastMessageAt  *time.Time
	ContextSummary string
	CreatedAt      time.Time
}

// Message is one immutable turn within a thread.
type Message struct {
	ID        uuid.UUID
	ThreadID  string
	Role      string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// ThreadStore persists threads and messages to PostgreSQL for long-term history.
type ThreadStore struct {
	db *sql.DB
}

// NewThreadStore creates a new thread store.
func NewThreadStore(db *sql.DB) *ThreadStore {
	if db == nil {
		return nil
	}
	return &ThreadStore{db: db}
}

// Create inserts a new thread.
func (s *ThreadStore) Create(ctx context.Context, tenantID, agentID, userID, title string) (*Thread, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	thread := &Thread{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		UserID:    userID,
		TenantID:  tenantID,
		Title:     title,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (
			id, agent_id, user_id, tenant_id, title, status,
			message_count, context_summary, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, thread.ID, thread.AgentID, thread.UserID, thread.TenantID, thread.Title, thread.Status,
		0, "", thread.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create thread: %w", err)
	}
	return thread, nil
}

// Get loads a thread scoped to the tenant.
func (s *ThreadStore) Get(ctx context.Context, tenantID, threadID string) (*Thread, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotFound
	}

	var t Thread
	var lastMessageAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, user_id, tenant_id, title, status,
			message_count, last_message_at, context_summary, created_at
		FROM threads
		WHERE id = $1 AND tenant_id = $2
	`, threadID, tenantID).Scan(
		&t.ID, &t.AgentID, &t.UserID, &t.TenantID, &t.Title, &t.Status,
		&t.MessageCount, &lastMessageAt, &t.ContextSummary, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agent: failed to get thread: %w", err)
	}
	if lastMessageAt.Valid {
		t.LastMessageAt = &lastMessageAt.Time
	}
	return &t, nil
}

// ListByAgent returns the agent's threads, most recently active first.
func (s *ThreadStore) ListByAgent(ctx context.Context, tenantID, agentID string) ([]Thread, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, user_id, tenant_id, title, status,
			message_count, last_message_at, context_summary, created_at
		FROM threads
		WHERE agent_id = $1 AND tenant_id = $2
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, agentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		var lastMessageAt sql.NullTime
		if err := rows.Scan(
			&t.ID, &t.AgentID, &t.UserID, &t.TenantID, &t.Title, &t.Status,
			&t.MessageCount, &lastMessageAt, &t.ContextSummary, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("agent: failed to scan thread: %w", err)
		}
		if lastMessageAt.Valid {
			t.LastMessageAt = &lastMessageAt.Time
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// AppendMessage persists one turn and updates the thread counters.
// Messages are immutable; ordering within a thread is by created_at.
func (s *ThreadStore) AppendMessage(ctx context.Context, threadID, role, content string, metadata map[string]string) (*Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	msg := &Message{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	var metaBlob []byte
	if len(metadata) > 0 {
		blob, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("agent: failed to marshal message metadata: %w", err)
		}
		metaBlob = blob
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_messages (id, thread_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ThreadID, msg.Role, msg.Content, metaBlob, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE threads SET
			message_count = message_count + 1,
			last_message_at = $1,
			updated_at = $1
		WHERE id = $2
	`, msg.CreatedAt, threadID)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to update thread counters: %w", err)
	}

	return msg, nil
}

// RecentMessages returns the newest messages in chronological order.
func (s *ThreadStore) RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, content, metadata, created_at FROM (
			SELECT id, thread_id, role, content, metadata, created_at
			FROM thread_messages
			WHERE thread_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var metaBlob []byte
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &metaBlob, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("agent: failed to scan message: %w", err)
		}
		if len(metaBlob) > 0 {
			if err := json.Unmarshal(metaBlob, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("agent: failed to decode message metadata: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateContextSummary replaces the rolling digest for a thread.
func (s *ThreadStore) UpdateContextSummary(ctx context.Context, threadID, summary string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET context_summary = $1, updated_at = $2
		WHERE id = $3
	`, summary, time.Now().UTC(), threadID)
	if err != nil {
		return fmt.Errorf("agent: failed to update context summary: %w", err)
	}
	return nil
}
