package synthesis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ItemStatus is the lifecycle of one synthesis item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
)

// ErrItemNotFound indicates the synthesis item does not exist.
var ErrItemNotFound = errors.New("synthesis: item not found")

// Item is one synthesizable unit of a protocol: a single affirmation or a
// visualization script. Items fail independently; one failed item never
// blocks its siblings.
type Item struct {
	ID              string
	TenantID        string
	ProtocolID      string
	Kind            string
	Position        int
	Text            string
	VoiceID         string
	Status          ItemStatus
	AudioRef        string
	DurationSeconds float64
	Estimated       bool
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemStore persists synthesis items in PostgreSQL.
type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	if db == nil {
		panic("synthesis: db cannot be nil")
	}
	return &ItemStore{db: db}
}

// InsertPending records the items of a dispatch before any worker runs.
func (s *ItemStore) InsertPending(ctx context.Context, items []Item) error {
	for i := range items {
		item := &items[i]
		now := time.Now().UTC()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO synthesis_items (
				id, tenant_id, protocol_id, kind, position, text, voice_id,
				status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		`, item.ID, item.TenantID, item.ProtocolID, item.Kind, item.Position,
			item.Text, item.VoiceID, string(ItemStatusPending), now)
		if err != nil {
			return fmt.Errorf("synthesis: failed to insert item %s: %w", item.ID, err)
		}
		item.Status = ItemStatusPending
	}
	return nil
}

// MarkCompleted stores the audio reference and duration for an item.
func (s *ItemStore) MarkCompleted(ctx context.Context, itemID string, result *SynthesizeResult) error {
	tag, err := s.db.ExecContext(ctx, `
		UPDATE synthesis_items SET
			status = $1, audio_ref = $2, duration_seconds = $3, estimated = $4,
			error_message = '', updated_at = $5
		WHERE id = $6
	`, string(ItemStatusCompleted), result.AudioRef, result.DurationSeconds, result.Estimated, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("synthesis: failed to complete item: %w", err)
	}
	return requireRow(tag)
}

// MarkFailed records the per-item failure marker.
func (s *ItemStore) MarkFailed(ctx context.Context, itemID, message string) error {
	tag, err := s.db.ExecContext(ctx, `
		UPDATE synthesis_items SET
			status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`, string(ItemStatusFailed), message, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("synthesis: failed to mark item failed: %w", err)
	}
	return requireRow(tag)
}

// ListByProtocol returns all items of a protocol, optionally filtered to a
// set of kinds, in dispatch order.
func (s *ItemStore) ListByProtocol(ctx context.Context, tenantID, protocolID string, kinds []string) ([]Item, error) {
	query := `
		SELECT id, tenant_id, protocol_id, kind, position, text, voice_id,
			status, COALESCE(audio_ref, ''), COALESCE(duration_seconds, 0),
			COALESCE(estimated, false), COALESCE(error_message, ''), created_at, updated_at
		FROM synthesis_items
		WHERE tenant_id = $1 AND protocol_id = $2`
	args := []any{tenantID, protocolID}
	if len(kinds) > 0 {
		query += ` AND kind = ANY($3)`
		args = append(args, pq.Array(kinds))
	}
	query += ` ORDER BY kind, position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("synthesis: failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var status string
		if err := rows.Scan(
			&item.ID, &item.TenantID, &item.ProtocolID, &item.Kind, &item.Position,
			&item.Text, &item.VoiceID, &status, &item.AudioRef, &item.DurationSeconds,
			&item.Estimated, &item.ErrorMessage, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("synthesis: failed to scan item: %w", err)
		}
		item.Status = ItemStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func requireRow(tag sql.Result) error {
	n, err := tag.RowsAffected()
	if err != nil {
		return fmt.Errorf("synthesis: rows affected: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
