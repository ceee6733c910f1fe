package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/innervoice/guide-ai-platform/internal/llm"
)

// stage is one step of the run. Stages execute strictly in order; each
// fills exactly one State field from one structured completion, except the
// final compile stage which is pure assembly.
type stage struct {
	name string
	run  func(ctx context.Context, r *Runner, st *State) error
}

func stageList() []stage {
	return []stage{
		{name: "analyze_goal", run: analyzeGoal},
		{name: "design_daily_practices", run: designDailyPractices},
		{name: "create_affirmations", run: createAffirmations},
		{name: "generate_visualizations", run: generateVisualizations},
		{name: "define_metrics", run: defineMetrics},
		{name: "identify_obstacles", run: identifyObstacles},
		{name: "set_checkpoints", run: setCheckpoints},
		{name: "compile_protocol", run: compileProtocol},
	}
}

// complete issues one structured completion and decodes the response into
// out. The instruction must describe the exact JSON shape expected.
func (r *Runner) complete(ctx context.Context, st *State, instruction, payload string, out any) error {
	system := append([]string{}, st.Prompt.System...)
	system = append(system, "Respond with JSON only. No prose, no markdown fences, no explanations.")

	resp, err := r.client.Complete(ctx, llm.Request{
		Model:       st.Prompt.Model,
		System:      system,
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: instruction + "\n\n" + payload}},
		MaxTokens:   st.Prompt.MaxTokens,
		Temperature: st.Prompt.Temperature,
	})
	if err != nil {
		return err
	}
	if err := llm.DecodeJSON(resp.Text, out); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func discoveryPayload(st *State) string {
	data, _ := json.Marshal(st.Input)
	return "Discovery input:\n" + string(data)
}

func analysisPayload(st *State) string {
	data, _ := json.Marshal(st.Analysis)
	return discoveryPayload(st) + "\n\nGoal analysis:\n" + string(data)
}

func analyzeGoal(ctx context.Context, r *Runner, st *State) error {
	instruction := `Analyze the user's goal. Return a JSON object with keys:
"core_desire" (string), "underlying_needs" (array of strings),
"beliefs_to_shift" (array of strings), "recommended_focus" (string),
"emotional_drivers" (array of strings), "suggested_cadence" (string).`

	var analysis GoalAnalysis
	if err := r.complete(ctx, st, instruction, discoveryPayload(st), &analysis); err != nil {
		return err
	}
	if analysis.CoreDesire == "" {
		return fmt.Errorf("pipeline: analysis missing core desire")
	}
	st.Analysis = &analysis
	return nil
}

func designDailyPractices(ctx context.Context, r *Runner, st *State) error {
	instruction := `Design 3 to 5 daily practices supporting the goal. Return a JSON array
of objects with keys: "name", "description", "time_of_day" (morning|midday|evening),
"duration_minutes" (integer), "rationale". Respect the user's schedule preference.`

	var practices []DailyPractice
	if err := r.complete(ctx, st, instruction, analysisPayload(st), &practices); err != nil {
		return err
	}
	if len(practices) == 0 {
		return fmt.Errorf("pipeline: no daily practices produced")
	}
	st.DailyPractices = practices
	return nil
}

func createAffirmations(ctx context.Context, r *Runner, st *State) error {
	instruction := `Write affirmations in the first person, present tense, matching the
persona's tone. Return a JSON object with keys "identity", "gratitude", "action",
"visualization", each an array of 3 to 5 affirmation strings.`

	var set AffirmationSet
	if err := r.complete(ctx, st, instruction, analysisPayload(st), &set); err != nil {
		return err
	}
	for _, category := range []struct {
		name  string
		items []string
	}{
		{"identity", set.Identity},
		{"gratitude", set.Gratitude},
		{"action", set.Action},
		{"visualization", set.Visualization},
	} {
		if len(category.items) == 0 {
			return fmt.Errorf("pipeline: affirmation category %s is empty", category.name)
		}
	}
	st.Affirmations = &set
	return nil
}

func generateVisualizations(ctx context.Context, r *Runner, st *State) error {
	instruction := `Write 2 to 3 guided visualization scripts the user can listen to.
Return a JSON array of objects with keys: "title", "script" (spoken narration,
second person), "duration" (e.g. "5 minutes").`

	var visualizations []Visualization
	if err := r.complete(ctx, st, instruction, analysisPayload(st), &visualizations); err != nil {
		return err
	}
	if len(visualizations) == 0 {
		return fmt.Errorf("pipeline: no visualizations produced")
	}
	st.Visualizations = visualizations
	return nil
}

func defineMetrics(ctx context.Context, r *Runner, st *State) error {
	instruction := `Define 3 to 5 measurable success metrics for this goal. Return a JSON
array of objects with keys: "name", "target", "frequency" (daily|weekly|monthly).`

	var metrics []SuccessMetric
	if err := r.complete(ctx, st, instruction, analysisPayload(st), &metrics); err != nil {
		return err
	}
	if len(metrics) == 0 {
		return fmt.Errorf("pipeline: no success metrics produced")
	}
	st.SuccessMetrics = metrics
	return nil
}

func identifyObstacles(ctx context.Context, r *Runner, st *State) error {
	instruction := `Anticipate the obstacles most likely to derail this user, including the
limiting beliefs they named. Return a JSON array of objects with keys:
"obstacle", "solution".`

	var obstacles []ObstaclePlan
	if err := r.complete(ctx, st, instruction, analysisPayload(st), &obstacles); err != nil {
		return err
	}
	if len(obstacles) == 0 {
		return fmt.Errorf("pipeline: no obstacle plans produced")
	}
	st.Obstacles = obstacles
	return nil
}

func setCheckpoints(ctx context.Context, r *Runner, st *State) error {
	instruction := `Schedule review checkpoints across the timeframe. Return a JSON array of
objects with keys: "label", "day_offset" (integer days from start), "focus".`

	var checkpoints []Checkpoint
	if err := r.complete(ctx, st, instruction, analysisPayload(st), &checkpoints); err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		return fmt.Errorf("pipeline: no checkpoints produced")
	}
	st.Checkpoints = checkpoints
	return nil
}

// compileProtocol assembles the accumulated state into the final protocol.
// No completion call happens here; by this point every section exists.
func compileProtocol(ctx context.Context, r *Runner, st *State) error {
	for name, missing := range map[string]bool{
		"analysis":        st.Analysis == nil,
		"daily_practices": len(st.DailyPractices) == 0,
		"affirmations":    st.Affirmations == nil,
		"visualizations":  len(st.Visualizations) == 0,
		"success_metrics": len(st.SuccessMetrics) == 0,
		"obstacles":       len(st.Obstacles) == 0,
		"checkpoints":     len(st.Checkpoints) == 0,
	} {
		if missing {
			return fmt.Errorf("pipeline: cannot compile, %s missing", name)
		}
	}

	timeframe := strings.TrimSpace(st.Input.Timeframe)
	if timeframe == "" {
		timeframe = "30 days"
	}
	commitment := strings.TrimSpace(st.Input.CommitmentLevel)
	if commitment == "" {
		commitment = "standard"
	}

	st.Protocol = &Protocol{
		TenantID: st.Contract.TenantID,
		AgentID:  st.Contract.ID,
		Meta: ProtocolMeta{
			Goal:            st.Input.Goal,
			Timeframe:       timeframe,
			CommitmentLevel: commitment,
		},
		Analysis:              *st.Analysis,
		DailyPractices:        st.DailyPractices,
		Affirmations:          *st.Affirmations,
		Visualizations:        st.Visualizations,
		SuccessMetrics:        st.SuccessMetrics,
		ObstaclesAndSolutions: st.Obstacles,
		Checkpoints:           st.Checkpoints,
		GeneratedAt:           r.now(),
	}
	return nil
}
