package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// scriptedClient routes each stage's completion to a canned JSON response
// keyed on a marker in the instruction text.
type scriptedClient struct {
	failOn string
	calls  []string
}

var stageResponses = map[string]string{
	"Analyze the user's goal": `{
		"core_desire": "run a marathon with confidence",
		"underlying_needs": ["consistency", "self-trust"],
		"beliefs_to_shift": ["I always quit"],
		"recommended_focus": "identity change before mileage",
		"emotional_drivers": ["pride"],
		"suggested_cadence": "daily"
	}`,
	"Design 3 to 5 daily practices": `[
		{"name": "Morning run", "description": "Easy pace run", "time_of_day": "morning", "duration_minutes": 30, "rationale": "base building"},
		{"name": "Evening review", "description": "Log the day", "time_of_day": "evening", "duration_minutes": 10, "rationale": "reflection"},
		{"name": "Mobility", "description": "Hips and calves", "time_of_day": "midday", "duration_minutes": 15, "rationale": "injury prevention"}
	]`,
	"Write affirmations": `{
		"identity": ["I am a runner."],
		"gratitude": ["I am grateful for my strong legs."],
		"action": ["I lace up every morning."],
		"visualization": ["I see myself crossing the finish line."]
	}`,
	"guided visualization": `[
		{"title": "Race day", "script": "You stand at the start line...", "duration": "5 minutes"},
		{"title": "Strong finish", "script": "You feel light in the final mile...", "duration": "4 minutes"}
	]`,
	"success metrics": `[
		{"name": "Weekly mileage", "target": "25km", "frequency": "weekly"},
		{"name": "Morning runs", "target": "5 per week", "frequency": "weekly"},
		{"name": "Sleep", "target": "8 hours", "frequency": "daily"}
	]`,
	"Anticipate the obstacles": `[
		{"obstacle": "Rainy mornings", "solution": "Treadmill backup plan"},
		{"obstacle": "Old quitting habit", "solution": "Two-minute rule: just start"}
	]`,
	"review checkpoints": `[
		{"label": "Week one check-in", "day_offset": 7, "focus": "habit formation"},
		{"label": "Halfway", "day_offset": 15, "focus": "mileage progression"}
	]`,
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("no messages")
	}
	content := req.Messages[len(req.Messages)-1].Content
	for marker, response := range stageResponses {
		if strings.Contains(content, marker) {
			c.calls = append(c.calls, marker)
			if c.failOn != "" && strings.Contains(content, c.failOn) {
				return llm.Response{}, errors.New("provider down")
			}
			return llm.Response{Text: response}, nil
		}
	}
	return llm.Response{}, errors.New("unrecognized stage instruction")
}

func testContract() *agent.Contract {
	return &agent.Contract{
		ID:       "agent-1",
		TenantID: "tenant-a",
		Name:     "Aria",
		Type:     agent.TypeConversational,
		Identity: agent.Identity{
			ShortDescription:  "a steady running coach",
			Mission:           "build durable running habits",
			Roles:             []string{"coach"},
			InteractionStyles: []string{"encouraging"},
		},
		Traits: agent.DefaultTraits(),
		Configuration: agent.Configuration{
			Model:       "anthropic.claude-3-5-haiku-20241022-v1:0",
			MaxTokens:   2048,
			Temperature: 0.7,
		},
		Status: agent.StatusActive,
	}
}

func testInput() DiscoveryInput {
	return DiscoveryInput{
		Goal:            "run a marathon",
		LimitingBeliefs: []string{"I always quit"},
		DesiredOutcomes: []string{"finish strong"},
		Timeframe:       "90 days",
	}
}

func TestRunProducesCompleteProtocol(t *testing.T) {
	runner := NewRunner(&scriptedClient{}, nil, logging.New("error"))

	protocol, err := runner.Run(context.Background(), testContract(), testInput())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if protocol.ID == "" {
		t.Error("protocol has no id")
	}
	if protocol.TenantID != "tenant-a" || protocol.AgentID != "agent-1" {
		t.Errorf("protocol scoping = %s/%s", protocol.TenantID, protocol.AgentID)
	}
	if protocol.Meta.Goal != "run a marathon" || protocol.Meta.Timeframe != "90 days" {
		t.Errorf("meta = %+v", protocol.Meta)
	}
	if protocol.Analysis.CoreDesire == "" {
		t.Error("analysis not populated")
	}
	if len(protocol.DailyPractices) != 3 {
		t.Errorf("daily practices = %d, want 3", len(protocol.DailyPractices))
	}
	// Every compiled protocol carries all four affirmation categories.
	for name, items := range map[string][]string{
		"identity":      protocol.Affirmations.Identity,
		"gratitude":     protocol.Affirmations.Gratitude,
		"action":        protocol.Affirmations.Action,
		"visualization": protocol.Affirmations.Visualization,
	} {
		if len(items) == 0 {
			t.Errorf("affirmation category %s is empty", name)
		}
	}
	if len(protocol.Visualizations) == 0 || len(protocol.SuccessMetrics) == 0 ||
		len(protocol.ObstaclesAndSolutions) == 0 || len(protocol.Checkpoints) == 0 {
		t.Error("protocol sections missing")
	}
	if protocol.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestRunStageFailureCarriesPartialState(t *testing.T) {
	// Fail at the visualization stage: everything before it must survive
	// in the partial state, nothing after it may run.
	client := &scriptedClient{failOn: "guided visualization"}
	runner := NewRunner(client, nil, logging.New("error"))

	_, err := runner.Run(context.Background(), testContract(), testInput())
	var failure *StageFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Run error = %v, want StageFailure", err)
	}
	if failure.Stage != "generate_visualizations" {
		t.Errorf("failed stage = %q", failure.Stage)
	}
	st := failure.State
	if st.Analysis == nil || len(st.DailyPractices) == 0 || st.Affirmations == nil {
		t.Error("completed stage outputs missing from partial state")
	}
	if st.Visualizations != nil || st.SuccessMetrics != nil || st.Protocol != nil {
		t.Error("stages after the failure ran anyway")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(&scriptedClient{}, nil, logging.New("error"))
	_, err := runner.Run(ctx, testContract(), testInput())
	var failure *StageFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Run error = %v, want StageFailure", err)
	}
	if failure.Stage != "analyze_goal" {
		t.Errorf("cancelled run stopped at %q, want analyze_goal", failure.Stage)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("failure cause = %v, want context.Canceled", failure.Err)
	}
}

func TestRunRejectsEmptyGoal(t *testing.T) {
	runner := NewRunner(&scriptedClient{}, nil, logging.New("error"))
	_, err := runner.Run(context.Background(), testContract(), DiscoveryInput{})
	if err == nil {
		t.Fatal("expected error for missing goal")
	}
}

func TestRunIsStructurallyDeterministic(t *testing.T) {
	runner := NewRunner(&scriptedClient{}, nil, logging.New("error"))

	for i := 0; i < 3; i++ {
		protocol, err := runner.Run(context.Background(), testContract(), testInput())
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if len(protocol.DailyPractices) != 3 || len(protocol.Checkpoints) != 2 {
			t.Errorf("run %d structure differs: %d practices, %d checkpoints",
				i, len(protocol.DailyPractices), len(protocol.Checkpoints))
		}
	}
}
