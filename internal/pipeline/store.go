package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrProtocolNotFound indicates no protocol exists for the caller's tenant.
var ErrProtocolNotFound = errors.New("pipeline: protocol not found")

// PgxPool is the subset of pgxpool.Pool the protocol store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProtocolStore persists compiled protocols as versioned rows per
// (tenant, agent). Protocols are immutable; a new run inserts the next
// revision and never touches prior rows.
type ProtocolStore struct {
	pool PgxPool
}

func NewProtocolStore(pool PgxPool) *ProtocolStore {
	if pool == nil {
		panic("pipeline: pgx pool cannot be nil")
	}
	return &ProtocolStore{pool: pool}
}

// Save inserts the protocol as the next revision for its agent.
func (s *ProtocolStore) Save(ctx context.Context, p *Protocol) error {
	if p == nil {
		return errors.New("pipeline: protocol cannot be nil")
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pipeline: failed to marshal protocol: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO protocols (id, tenant_id, agent_id, revision, goal, body, created_at)
		VALUES ($1, $2, $3,
			COALESCE((SELECT MAX(revision) FROM protocols WHERE tenant_id = $2 AND agent_id = $3), 0) + 1,
			$4, $5, $6)
	`, p.ID, p.TenantID, p.AgentID, p.Meta.Goal, blob, p.GeneratedAt)
	if err != nil {
		return fmt.Errorf("pipeline: failed to save protocol: %w", err)
	}
	return nil
}

// Get loads one protocol scoped to the tenant.
func (s *ProtocolStore) Get(ctx context.Context, tenantID, protocolID string) (*Protocol, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM protocols WHERE id = $1 AND tenant_id = $2
	`, protocolID, tenantID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProtocolNotFound
		}
		return nil, fmt.Errorf("pipeline: failed to get protocol: %w", err)
	}

	var p Protocol
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, fmt.Errorf("pipeline: failed to decode protocol: %w", err)
	}
	return &p, nil
}

// Latest returns the newest protocol for an agent, or ErrProtocolNotFound.
func (s *ProtocolStore) Latest(ctx context.Context, tenantID, agentID string) (*Protocol, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM protocols
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY revision DESC
		LIMIT 1
	`, tenantID, agentID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProtocolNotFound
		}
		return nil, fmt.Errorf("pipeline: failed to get latest protocol: %w", err)
	}

	var p Protocol
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, fmt.Errorf("pipeline: failed to decode protocol: %w", err)
	}
	return &p, nil
}

// ListRevisions returns (revision, protocol id, created_at) tuples for an
// agent, newest first.
func (s *ProtocolStore) ListRevisions(ctx context.Context, tenantID, agentID string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, revision, goal, created_at FROM protocols
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY revision DESC
		LIMIT $3
	`, tenantID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.ProtocolID, &r.Revision, &r.Goal, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("pipeline: failed to scan revision: %w", err)
		}
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// Revision is one row of the protocol history listing.
type Revision struct {
	ProtocolID string    `json:"protocol_id"`
	Revision   int       `json:"revision"`
	Goal       string    `json:"goal"`
	CreatedAt  time.Time `json:"created_at"`
}
