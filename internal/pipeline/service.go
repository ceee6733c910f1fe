package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// Dispatcher hands a compiled protocol to the synthesis layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *Protocol) error
}

// Service runs the pipeline end to end: record the run, execute the
// stages, persist and archive the protocol, then hand it to synthesis.
// Persistence of the run record and the archive are best-effort; the
// protocol itself is not.
type Service struct {
	runner     *Runner
	protocols  *ProtocolStore
	archiver   *Archiver
	runs       *RunStore
	dispatcher Dispatcher
	logger     *logging.Logger
}

// NewService wires the pipeline. The archiver, run store, and dispatcher
// are optional.
func NewService(runner *Runner, protocols *ProtocolStore, archiver *Archiver, runs *RunStore, dispatcher Dispatcher, logger *logging.Logger) *Service {
	if runner == nil {
		panic("pipeline: runner is required")
	}
	if protocols == nil {
		panic("pipeline: protocol store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		runner:     runner,
		protocols:  protocols,
		archiver:   archiver,
		runs:       runs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Generate executes one run for the contract. The returned run id
// identifies the run record even when generation fails partway.
func (s *Service) Generate(ctx context.Context, contract *agent.Contract, input DiscoveryInput) (*Protocol, string, error) {
	runID := uuid.NewString()

	if s.runs != nil {
		err := s.runs.PutPending(ctx, &RunRecord{
			RunID:    runID,
			TenantID: contract.TenantID,
			AgentID:  contract.ID,
			Goal:     input.Goal,
		})
		if err != nil {
			s.logger.Warn("pipeline run record not persisted", "run_id", runID, "error", err)
		}
	}

	protocol, err := s.runner.Run(ctx, contract, input)
	if err != nil {
		var failure *StageFailure
		if s.runs != nil && errors.As(err, &failure) {
			if markErr := s.runs.MarkFailed(ctx, runID, failure); markErr != nil {
				s.logger.Warn("failed run not recorded", "run_id", runID, "error", markErr)
			}
		}
		return nil, runID, err
	}

	if err := s.protocols.Save(ctx, protocol); err != nil {
		return nil, runID, err
	}

	if s.archiver.Enabled() {
		if err := s.archiver.Archive(ctx, protocol); err != nil {
			s.logger.Warn("protocol archive failed", "protocol_id", protocol.ID, "error", err)
		}
	}

	if s.runs != nil {
		if err := s.runs.MarkCompleted(ctx, runID, protocol.ID); err != nil {
			s.logger.Warn("completed run not recorded", "run_id", runID, "error", err)
		}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, protocol); err != nil {
			s.logger.Error("synthesis dispatch failed", "protocol_id", protocol.ID, "error", err)
		}
	}

	return protocol, runID, nil
}

// Run looks up a prior run record for the caller's tenant.
func (s *Service) Run(ctx context.Context, tenantID, runID string) (*RunRecord, error) {
	if s.runs == nil {
		return nil, ErrRunNotFound
	}
	return s.runs.GetRun(ctx, tenantID, runID)
}

// Protocol loads a stored protocol scoped to the tenant.
func (s *Service) Protocol(ctx context.Context, tenantID, protocolID string) (*Protocol, error) {
	return s.protocols.Get(ctx, tenantID, protocolID)
}

// LatestProtocol loads the newest protocol for an agent.
func (s *Service) LatestProtocol(ctx context.Context, tenantID, agentID string) (*Protocol, error) {
	return s.protocols.Latest(ctx, tenantID, agentID)
}
