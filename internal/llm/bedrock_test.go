package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type fakeConverseAPI struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverseAPI) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(15),
		},
	}
}

func TestBedrockClientComplete(t *testing.T) {
	api := &fakeConverseAPI{output: converseTextOutput("  hello there  ")}
	client := NewBedrockClient(api)

	resp, err := client.Complete(context.Background(), Request{
		Model:  "anthropic.claude-3-haiku",
		System: []string{"be kind"},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "hi"},
			{Role: ChatRoleAssistant, Content: "hello"},
			{Role: ChatRoleUser, Content: "how are you"},
		},
		MaxTokens:   256,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("expected trimmed text, got %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage to be mapped, got %+v", resp.Usage)
	}
	if resp.StopReason != string(brtypes.StopReasonEndTurn) {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}

	in := api.lastInput
	if in == nil {
		t.Fatal("expected converse input to be captured")
	}
	if len(in.System) != 1 {
		t.Fatalf("expected one system block, got %d", len(in.System))
	}
	if len(in.Messages) != 3 {
		t.Fatalf("expected three messages, got %d", len(in.Messages))
	}
	if in.InferenceConfig == nil || in.InferenceConfig.MaxTokens == nil || *in.InferenceConfig.MaxTokens != 256 {
		t.Fatalf("expected inference config with max tokens, got %+v", in.InferenceConfig)
	}
}

func TestBedrockClientComplete_RequiresModel(t *testing.T) {
	client := NewBedrockClient(&fakeConverseAPI{})
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for missing model id")
	}
}

func TestBedrockClientComplete_SystemRoleMessagesPromoted(t *testing.T) {
	api := &fakeConverseAPI{output: converseTextOutput("ok")}
	client := NewBedrockClient(api)

	_, err := client.Complete(context.Background(), Request{
		Model: "m",
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "persona"},
			{Role: ChatRoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(api.lastInput.System) != 1 {
		t.Fatalf("expected system-role message to become a system block")
	}
	if len(api.lastInput.Messages) != 1 {
		t.Fatalf("expected one conversational message, got %d", len(api.lastInput.Messages))
	}
}

type fakeInvokeModelAPI struct {
	bodies []string
}

func (f *fakeInvokeModelAPI) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	var req struct {
		InputText string `json:"inputText"`
	}
	if err := json.Unmarshal(params.Body, &req); err != nil {
		return nil, err
	}
	f.bodies = append(f.bodies, req.InputText)
	body, _ := json.Marshal(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	api := &fakeInvokeModelAPI{}
	embedder, err := NewBedrockEmbedder(api, "amazon.titan-embed-text-v2:0")
	if err != nil {
		t.Fatalf("NewBedrockEmbedder failed: %v", err)
	}

	vecs, err := embedder.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Fatalf("unexpected embeddings: %#v", vecs)
	}
	if len(api.bodies) != 2 || api.bodies[1] != "beta" {
		t.Fatalf("unexpected invoked inputs: %#v", api.bodies)
	}
}

func TestBedrockEmbedder_EmptyInput(t *testing.T) {
	embedder, err := NewBedrockEmbedder(&fakeInvokeModelAPI{}, "model")
	if err != nil {
		t.Fatalf("NewBedrockEmbedder failed: %v", err)
	}
	vecs, err := embedder.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil result for empty input, got %#v, %v", vecs, err)
	}
}
