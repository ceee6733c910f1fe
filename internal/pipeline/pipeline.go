package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// MetricsRecorder records stage outcomes for observability.
type MetricsRecorder interface {
	RecordStage(stage string, duration time.Duration, err error)
}

// Runner executes the generation pipeline: a fixed, ordered list of stages
// that turn discovery input into a compiled protocol. There is no retry
// inside the runner; a failed run surfaces its partial state and the caller
// decides whether to run again.
type Runner struct {
	client  llm.Client
	logger  *logging.Logger
	metrics MetricsRecorder
	clock   func() time.Time
}

// NewRunner creates a pipeline runner. Metrics are optional.
func NewRunner(client llm.Client, metrics MetricsRecorder, logger *logging.Logger) *Runner {
	if client == nil {
		panic("pipeline: completion client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		client:  client,
		logger:  logger,
		metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Runner) now() time.Time { return r.clock() }

// Run executes every stage in order against the contract's persona.
// Cancellation is checked at each stage boundary; a cancelled or failed run
// returns a StageFailure carrying the partial state.
func (r *Runner) Run(ctx context.Context, contract *agent.Contract, input DiscoveryInput) (*Protocol, error) {
	if contract == nil {
		return nil, &StageFailure{Stage: "analyze_goal", State: &State{Input: input}, Err: agent.ErrNotFound}
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	st := &State{
		Input:    input,
		Contract: contract,
		Prompt:   agent.RenderPersona(contract),
	}

	for _, s := range stageList() {
		if err := ctx.Err(); err != nil {
			return nil, &StageFailure{Stage: s.name, State: st, Err: err}
		}

		start := time.Now()
		err := s.run(ctx, r, st)
		if r.metrics != nil {
			r.metrics.RecordStage(s.name, time.Since(start), err)
		}
		if err != nil {
			r.logger.Error("pipeline stage failed",
				"stage", s.name,
				"agent_id", contract.ID,
				"error", err)
			return nil, &StageFailure{Stage: s.name, State: st, Err: err}
		}
		r.logger.Debug("pipeline stage completed", "stage", s.name, "agent_id", contract.ID)
	}

	st.Protocol.ID = uuid.NewString()
	r.logger.Info("protocol compiled",
		"protocol_id", st.Protocol.ID,
		"agent_id", contract.ID,
		"practices", len(st.Protocol.DailyPractices),
		"visualizations", len(st.Protocol.Visualizations))
	return st.Protocol, nil
}
