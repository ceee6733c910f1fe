package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// Record is one immutable memory entry. Embedding may be empty when the
// embedding provider was unavailable at write time; such records still
// participate in recency-based retrieval.
type Record struct {
	ID        string            `json:"id"`
	Role      string            `json:"role,omitempty"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Manager reads and writes namespaced memory records. Namespaces are
// append-only Redis lists; records are never updated or reordered, so
// concurrent readers need no locking.
type Manager struct {
	redis    *redis.Client
	embedder llm.Embedder
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewManager creates a memory manager. The embedder is optional; without
// one every write is text-only and recall degrades to recency ordering.
func NewManager(client *redis.Client, embedder llm.Embedder, logger *logging.Logger) *Manager {
	if client == nil {
		panic("memory: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		redis:    client,
		embedder: embedder,
		logger:   logger,
		tracer:   otel.Tracer("innervoice.internal.memory"),
	}
}

// Remember appends a record to the namespace. An embedding failure is not
// an error: the record is stored text-only and degraded reports true so
// callers can surface the soft signal.
func (m *Manager) Remember(ctx context.Context, ns Namespace, role, content string, metadata map[string]string) (degraded bool, err error) {
	ctx, span := m.tracer.Start(ctx, "memory.remember")
	defer span.End()

	if err := ns.Validate(); err != nil {
		span.RecordError(err)
		return false, err
	}

	record := Record{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if m.embedder != nil {
		vectors, embedErr := m.embedder.Embed(ctx, []string{content})
		if embedErr != nil || len(vectors) == 0 {
			degraded = true
			m.logger.Warn("memory write degraded to text-only", "namespace", ns.Key(), "error", embedErr)
		} else {
			record.Embedding = vectors[0]
		}
	} else {
		degraded = true
	}

	data, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		return degraded, fmt.Errorf("memory: failed to marshal record: %w", err)
	}
	if err := m.redis.RPush(ctx, ns.Key(), data).Err(); err != nil {
		span.RecordError(err)
		return degraded, fmt.Errorf("memory: failed to persist record: %w", err)
	}
	return degraded, nil
}

// Recall returns up to limit records ranked by cosine similarity to the
// query. When the query cannot be embedded, or no record in the namespace
// carries an embedding, it falls back to the most recent records, newest
// first. An empty
// namespace yields an empty slice and no error.
func (m *Manager) Recall(ctx context.Context, ns Namespace, query string, limit int) ([]Record, error) {
	ctx, span := m.tracer.Start(ctx, "memory.recall")
	defer span.End()

	if err := ns.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	records, err := m.load(ctx, ns)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var queryVec []float32
	if m.embedder != nil {
		vectors, embedErr := m.embedder.Embed(ctx, []string{query})
		if embedErr != nil || len(vectors) == 0 {
			m.logger.Warn("memory recall degraded to recency", "namespace", ns.Key(), "error", embedErr)
		} else {
			queryVec = vectors[0]
		}
	}

	embedded := records[:0:0]
	for _, r := range records {
		if len(r.Embedding) > 0 {
			embedded = append(embedded, r)
		}
	}

	if queryVec == nil || len(embedded) == 0 {
		recent := lastN(records, limit)
		// newest first
		for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
			recent[i], recent[j] = recent[j], recent[i]
		}
		return recent, nil
	}

	sort.SliceStable(embedded, func(i, j int) bool {
		return cosineSimilarity(queryVec, embedded[i].Embedding) > cosineSimilarity(queryVec, embedded[j].Embedding)
	})
	if len(embedded) > limit {
		embedded = embedded[:limit]
	}
	return embedded, nil
}

// RecentHistory returns the newest records first, bounded by limit.
func (m *Manager) RecentHistory(ctx context.Context, ns Namespace, limit int) ([]Record, error) {
	ctx, span := m.tracer.Start(ctx, "memory.recent_history")
	defer span.End()

	if err := ns.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	records, err := m.load(ctx, ns)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	recent := lastN(records, limit)
	// newest first
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// Count reports how many records the namespace holds.
func (m *Manager) Count(ctx context.Context, ns Namespace) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	n, err := m.redis.LLen(ctx, ns.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("memory: failed to count records: %w", err)
	}
	return n, nil
}

func (m *Manager) load(ctx context.Context, ns Namespace) ([]Record, error) {
	raw, err := m.redis.LRange(ctx, ns.Key(), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: failed to load namespace %s: %w", ns.Key(), err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("memory: failed to decode record in %s: %w", ns.Key(), err)
		}
		records = append(records, r)
	}
	return records, nil
}

func lastN(records []Record, n int) []Record {
	if len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
