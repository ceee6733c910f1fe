package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the contract store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ContractStore persists agent contracts and their version history in
// Postgres. Writes to one agent are serialized by a per-agent lock; the
// policy is last-update-wins with a version snapshot, not optimistic
// concurrency rejection.
type ContractStore struct {
	pool   PgxPool
	writes *keyedMutex
}

func NewContractStore(pool PgxPool) *ContractStore {
	if pool == nil {
		panic("agent: pgx pool cannot be nil")
	}
	return &ContractStore{pool: pool, writes: newKeyedMutex()}
}

// Create validates and persists a new contract. The id is assigned when
// absent, version starts at 1.0.0, and no version snapshot is written —
// there is nothing to diff against yet.
func (s *ContractStore) Create(ctx context.Context, contract *Contract) error {
	if contract == nil {
		return errors.New("agent: contract cannot be nil")
	}
	if strings.TrimSpace(contract.TenantID) == "" {
		return newValidationError("tenant_id", "required")
	}
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	contract.Version = initialVersion
	contract.Status = StatusActive
	now := time.Now().UTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now

	if err := contract.Validate(); err != nil {
		return err
	}

	identity, traits, configuration, voice, err := marshalContractBlobs(contract)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (
			id, tenant_id, owner_id, name, type, version,
			identity, traits, configuration, voice,
			status, interaction_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, contract.ID, contract.TenantID, contract.OwnerID, contract.Name, string(contract.Type), contract.Version,
		identity, traits, configuration, voice,
		string(contract.Status), contract.InteractionCount, contract.CreatedAt, contract.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("agent: failed to create contract: %w", err)
	}
	return nil
}

// Update snapshots the current contract, applies the patch atomically, and
// bumps the version (minor for identity/voice changes, patch otherwise).
// Validation failure rejects the whole patch; nothing is written.
func (s *ContractStore) Update(ctx context.Context, tenantID, agentID string, patch Patch, reason string) (*Contract, error) {
	unlock := s.writes.Lock(agentID)
	defer unlock()

	current, err := s.Get(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}

	next := current.apply(patch)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	bumped, err := bumpVersion(current.Version, patch.bumpKind())
	if err != nil {
		return nil, err
	}
	next.Version = bumped
	next.UpdatedAt = time.Now().UTC()

	snapshot, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to marshal version snapshot: %w", err)
	}
	identity, traits, configuration, voice, err := marshalContractBlobs(&next)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_versions (id, agent_id, tenant_id, version, contract, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), agentID, tenantID, current.Version, snapshot, reason, next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to snapshot version: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE agents SET
			name = $1, version = $2,
			identity = $3, traits = $4, configuration = $5, voice = $6,
			updated_at = $7
		WHERE id = $8 AND tenant_id = $9
	`, next.Name, next.Version, identity, traits, configuration, voice, next.UpdatedAt, agentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to update contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agent: failed to commit update: %w", err)
	}
	return &next, nil
}

// Archive flips the status flag. Archiving an archived agent is a no-op.
func (s *ContractStore) Archive(ctx context.Context, tenantID, agentID string) error {
	unlock := s.writes.Lock(agentID)
	defer unlock()

	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4
	`, string(StatusArchived), time.Now().UTC(), agentID, tenantID)
	if err != nil {
		return fmt.Errorf("agent: failed to archive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads a contract scoped to the tenant. A tenant mismatch reads the
// same as absence.
func (s *ContractStore) Get(ctx context.Context, tenantID, agentID string) (*Contract, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, owner_id, name, type, version,
			identity, traits, configuration, voice,
			status, interaction_count, last_interaction_at, created_at, updated_at
		FROM agents
		WHERE id = $1 AND tenant_id = $2
	`, agentID, tenantID)

	contract, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agent: failed to get contract: %w", err)
	}
	return contract, nil
}

// ListVersions returns snapshots newest-first, bounded by limit.
func (s *ContractStore) ListVersions(ctx context.Context, tenantID, agentID string, limit int) ([]ContractVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, tenant_id, version, contract, reason, created_at
		FROM agent_versions
		WHERE agent_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, agentID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []ContractVersion
	for rows.Next() {
		var v ContractVersion
		var blob []byte
		if err := rows.Scan(&v.ID, &v.AgentID, &v.TenantID, &v.Version, &blob, &v.Reason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("agent: failed to scan version: %w", err)
		}
		if err := json.Unmarshal(blob, &v.Contract); err != nil {
			return nil, fmt.Errorf("agent: failed to decode version snapshot: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// RecordInteraction bumps the interaction counter and timestamp after a
// completed chat turn.
func (s *ContractStore) RecordInteraction(ctx context.Context, tenantID, agentID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET interaction_count = interaction_count + 1, last_interaction_at = $1, updated_at = $1
		WHERE id = $2 AND tenant_id = $3
	`, at.UTC(), agentID, tenantID)
	if err != nil {
		return fmt.Errorf("agent: failed to record interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalContractBlobs(c *Contract) (identity, traits, configuration, voice []byte, err error) {
	if identity, err = json.Marshal(c.Identity); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("agent: failed to marshal identity: %w", err)
	}
	if traits, err = json.Marshal(c.Traits); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("agent: failed to marshal traits: %w", err)
	}
	if configuration, err = json.Marshal(c.Configuration); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("agent: failed to marshal configuration: %w", err)
	}
	if c.Voice != nil {
		if voice, err = json.Marshal(c.Voice); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("agent: failed to marshal voice: %w", err)
		}
	}
	return identity, traits, configuration, voice, nil
}

func scanContract(row pgx.Row) (*Contract, error) {
	var (
		c                                      Contract
		typ, status                            string
		identity, traits, configuration, voice []byte
		lastInteraction                        *time.Time
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.OwnerID, &c.Name, &typ, &c.Version,
		&identity, &traits, &configuration, &voice,
		&status, &c.InteractionCount, &lastInteraction, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = Type(typ)
	c.Status = Status(status)
	c.LastInteractionAt = lastInteraction

	if err := json.Unmarshal(identity, &c.Identity); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if err := json.Unmarshal(traits, &c.Traits); err != nil {
		return nil, fmt.Errorf("decode traits: %w", err)
	}
	if err := json.Unmarshal(configuration, &c.Configuration); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if len(voice) > 0 {
		c.Voice = &VoiceConfig{}
		if err := json.Unmarshal(voice, c.Voice); err != nil {
			return nil, fmt.Errorf("decode voice: %w", err)
		}
	}
	return &c, nil
}
