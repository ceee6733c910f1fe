package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/pipeline"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// Synthesizable item kinds. Affirmations carry their category as the kind;
// visualizations dispatch their scripts.
const (
	KindAffirmationIdentity      = "affirmation_identity"
	KindAffirmationGratitude     = "affirmation_gratitude"
	KindAffirmationAction        = "affirmation_action"
	KindAffirmationVisualization = "affirmation_visualization"
	KindVisualizationScript      = "visualization_script"
)

// ItemRecorder is the slice of the item store the dispatcher and worker
// need.
type ItemRecorder interface {
	InsertPending(ctx context.Context, items []Item) error
	MarkCompleted(ctx context.Context, itemID string, result *SynthesizeResult) error
	MarkFailed(ctx context.Context, itemID, message string) error
}

// VoiceResolver provides the voice configuration for an agent.
type VoiceResolver interface {
	VoiceFor(ctx context.Context, tenantID, agentID string) (*agent.VoiceConfig, error)
}

// MetricsRecorder records synthesis outcomes.
type MetricsRecorder interface {
	RecordSynthesis(kind string, duration time.Duration, err error)
}

// job is the queue payload for one item.
type job struct {
	ItemID   string  `json:"item_id"`
	TenantID string  `json:"tenant_id"`
	Kind     string  `json:"kind"`
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
}

// Dispatcher fans a compiled protocol out into one synthesis job per item.
// Enumeration order is stable: the four affirmation categories in fixed
// order, then visualization scripts.
type Dispatcher struct {
	queue  Queue
	items  ItemRecorder
	voices VoiceResolver
	logger *logging.Logger

	// defaultVoiceID is used when the agent has no voice block.
	defaultVoiceID string
}

// NewDispatcher wires the dispatcher. The voice resolver is optional when
// a default voice id is set.
func NewDispatcher(queue Queue, items ItemRecorder, voices VoiceResolver, defaultVoiceID string, logger *logging.Logger) *Dispatcher {
	if queue == nil {
		panic("synthesis: queue cannot be nil")
	}
	if items == nil {
		panic("synthesis: item store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		queue:          queue,
		items:          items,
		voices:         voices,
		logger:         logger,
		defaultVoiceID: defaultVoiceID,
	}
}

// Dispatch enumerates the protocol's synthesizable items, records them as
// pending, and enqueues one job each. A send failure marks that item failed
// and moves on; siblings are unaffected.
func (d *Dispatcher) Dispatch(ctx context.Context, p *pipeline.Protocol) error {
	if p == nil {
		return errors.New("synthesis: protocol cannot be nil")
	}

	voice := d.resolveVoice(ctx, p)
	if voice.VoiceID == "" {
		return errors.New("synthesis: no voice configured for dispatch")
	}

	items := enumerateItems(p, voice.VoiceID)
	if len(items) == 0 {
		return nil
	}
	if err := d.items.InsertPending(ctx, items); err != nil {
		return err
	}

	var enqueued int
	for _, item := range items {
		payload, err := json.Marshal(job{
			ItemID:   item.ID,
			TenantID: item.TenantID,
			Kind:     item.Kind,
			Text:     item.Text,
			VoiceID:  item.VoiceID,
			Language: voice.Language,
			Speed:    voice.Speed,
			Pitch:    voice.Pitch,
		})
		if err != nil {
			return fmt.Errorf("synthesis: failed to encode job: %w", err)
		}
		if err := d.queue.Send(ctx, string(payload)); err != nil {
			d.logger.Error("synthesis job enqueue failed", "item_id", item.ID, "error", err)
			if markErr := d.items.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
				d.logger.Error("failed item not recorded", "item_id", item.ID, "error", markErr)
			}
			continue
		}
		enqueued++
	}

	d.logger.Info("protocol dispatched for synthesis",
		"protocol_id", p.ID,
		"items", len(items),
		"enqueued", enqueued)
	return nil
}

func (d *Dispatcher) resolveVoice(ctx context.Context, p *pipeline.Protocol) agent.VoiceConfig {
	if d.voices != nil {
		voice, err := d.voices.VoiceFor(ctx, p.TenantID, p.AgentID)
		if err != nil {
			d.logger.Warn("voice lookup failed, using default", "agent_id", p.AgentID, "error", err)
		} else if voice != nil && voice.VoiceID != "" {
			return *voice
		}
	}
	return agent.VoiceConfig{VoiceID: d.defaultVoiceID}
}

func enumerateItems(p *pipeline.Protocol, voiceID string) []Item {
	var items []Item
	add := func(kind, text string, position int) {
		items = append(items, Item{
			ID:         uuid.NewString(),
			TenantID:   p.TenantID,
			ProtocolID: p.ID,
			Kind:       kind,
			Position:   position,
			Text:       text,
			VoiceID:    voiceID,
		})
	}

	for _, group := range []struct {
		kind  string
		texts []string
	}{
		{KindAffirmationIdentity, p.Affirmations.Identity},
		{KindAffirmationGratitude, p.Affirmations.Gratitude},
		{KindAffirmationAction, p.Affirmations.Action},
		{KindAffirmationVisualization, p.Affirmations.Visualization},
	} {
		for i, text := range group.texts {
			add(group.kind, text, i)
		}
	}
	for i, v := range p.Visualizations {
		add(KindVisualizationScript, v.Script, i)
	}
	return items
}

// Worker drains the queue and synthesizes items. Each job succeeds or
// fails on its own; a failure records the marker and the worker moves on.
type Worker struct {
	queue       Queue
	items       ItemRecorder
	synthesizer Synthesizer
	metrics     MetricsRecorder
	logger      *logging.Logger
	concurrency int
}

// NewWorker wires a synthesis worker. Metrics are optional.
func NewWorker(queue Queue, items ItemRecorder, synthesizer Synthesizer, metrics MetricsRecorder, concurrency int, logger *logging.Logger) *Worker {
	if queue == nil {
		panic("synthesis: queue cannot be nil")
	}
	if items == nil {
		panic("synthesis: item store cannot be nil")
	}
	if synthesizer == nil {
		panic("synthesis: synthesizer cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		queue:       queue,
		items:       items,
		synthesizer: synthesizer,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.concurrency)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		messages, err := w.queue.Receive(ctx, w.concurrency, 5)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.Error("synthesis receive failed", "error", err)
			continue
		}
		for _, msg := range messages {
			sem <- struct{}{}
			go func(msg queueMessage) {
				defer func() { <-sem }()
				w.handle(ctx, msg)
			}(msg)
		}
	}
}

// handle processes one job end to end.
func (w *Worker) handle(ctx context.Context, msg queueMessage) {
	var j job
	if err := json.Unmarshal([]byte(msg.Body), &j); err != nil {
		w.logger.Error("synthesis job decode failed", "message_id", msg.ID, "error", err)
		_ = w.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	start := time.Now()
	result, err := w.synthesizer.Synthesize(ctx, SynthesizeRequest{
		Text:     j.Text,
		VoiceID:  j.VoiceID,
		Language: j.Language,
		Speed:    j.Speed,
		Pitch:    j.Pitch,
	})
	if w.metrics != nil {
		w.metrics.RecordSynthesis(j.Kind, time.Since(start), err)
	}

	if err != nil {
		w.logger.Error("synthesis failed", "item_id", j.ItemID, "kind", j.Kind, "error", err)
		if markErr := w.items.MarkFailed(ctx, j.ItemID, err.Error()); markErr != nil {
			w.logger.Error("failed item not recorded", "item_id", j.ItemID, "error", markErr)
		}
	} else {
		if markErr := w.items.MarkCompleted(ctx, j.ItemID, result); markErr != nil {
			w.logger.Error("completed item not recorded", "item_id", j.ItemID, "error", markErr)
		}
	}

	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("synthesis message not deleted", "message_id", msg.ID, "error", err)
	}
}
