package pipeline

import (
	"fmt"
	"time"

	"github.com/innervoice/guide-ai-platform/internal/agent"
)

// DiscoveryInput is what the user told us during discovery. It is
// request-scoped and never persisted on its own; the compiled protocol
// carries everything worth keeping.
type DiscoveryInput struct {
	Goal               string   `json:"goal"`
	LimitingBeliefs    []string `json:"limiting_beliefs,omitempty"`
	DesiredOutcomes    []string `json:"desired_outcomes,omitempty"`
	SchedulePreference string   `json:"schedule_preference,omitempty"`
	TonePreference     string   `json:"tone_preference,omitempty"`
	Timeframe          string   `json:"timeframe,omitempty"`
	CommitmentLevel    string   `json:"commitment_level,omitempty"`
}

// Validate rejects inputs the pipeline cannot work with.
func (in DiscoveryInput) Validate() error {
	if in.Goal == "" {
		return fmt.Errorf("pipeline: discovery input requires a goal")
	}
	return nil
}

// GoalAnalysis is the output of the first stage.
type GoalAnalysis struct {
	CoreDesire       string   `json:"core_desire"`
	UnderlyingNeeds  []string `json:"underlying_needs"`
	BeliefsToShift   []string `json:"beliefs_to_shift"`
	RecommendedFocus string   `json:"recommended_focus"`
	EmotionalDrivers []string `json:"emotional_drivers"`
	SuggestedCadence string   `json:"suggested_cadence"`
}

// DailyPractice is one recurring action in the protocol.
type DailyPractice struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TimeOfDay   string `json:"time_of_day"`
	DurationMin int    `json:"duration_minutes"`
	Rationale   string `json:"rationale,omitempty"`
}

// AffirmationSet groups affirmations by the four fixed categories. Every
// compiled protocol carries all four, each non-empty.
type AffirmationSet struct {
	Identity      []string `json:"identity"`
	Gratitude     []string `json:"gratitude"`
	Action        []string `json:"action"`
	Visualization []string `json:"visualization"`
}

// Visualization is one guided mental rehearsal script.
type Visualization struct {
	Title    string `json:"title"`
	Script   string `json:"script"`
	Duration string `json:"duration,omitempty"`
}

// SuccessMetric is one measurable signal of progress.
type SuccessMetric struct {
	Name      string `json:"name"`
	Target    string `json:"target"`
	Frequency string `json:"frequency"`
}

// ObstaclePlan pairs an anticipated obstacle with its counter.
type ObstaclePlan struct {
	Obstacle string `json:"obstacle"`
	Solution string `json:"solution"`
}

// Checkpoint is a scheduled review point.
type Checkpoint struct {
	Label     string `json:"label"`
	DayOffset int    `json:"day_offset"`
	Focus     string `json:"focus"`
}

// ProtocolMeta carries the run's framing.
type ProtocolMeta struct {
	Goal            string `json:"goal"`
	Timeframe       string `json:"timeframe"`
	CommitmentLevel string `json:"commitment_level"`
}

// Protocol is the immutable output of one pipeline run.
type Protocol struct {
	ID                    string          `json:"id"`
	TenantID              string          `json:"tenant_id"`
	AgentID               string          `json:"agent_id"`
	Meta                  ProtocolMeta    `json:"meta"`
	Analysis              GoalAnalysis    `json:"analysis"`
	DailyPractices        []DailyPractice `json:"daily_practices"`
	Affirmations          AffirmationSet  `json:"affirmations"`
	Visualizations        []Visualization `json:"visualizations"`
	SuccessMetrics        []SuccessMetric `json:"success_metrics"`
	ObstaclesAndSolutions []ObstaclePlan  `json:"obstacles_and_solutions"`
	Checkpoints           []Checkpoint    `json:"checkpoints"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// State accumulates stage outputs across one run. Each stage reads what
// earlier stages wrote and fills exactly one field; a failure surfaces the
// partial state so the caller can inspect or retry.
type State struct {
	Input    DiscoveryInput
	Contract *agent.Contract
	Prompt   agent.PromptSpec

	Analysis       *GoalAnalysis
	DailyPractices []DailyPractice
	Affirmations   *AffirmationSet
	Visualizations []Visualization
	SuccessMetrics []SuccessMetric
	Obstacles      []ObstaclePlan
	Checkpoints    []Checkpoint

	Protocol *Protocol
}

// StageFailure aborts a run at a named stage. State carries everything the
// completed stages produced; the failed stage's field is untouched.
type StageFailure struct {
	Stage string
	State *State
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }
