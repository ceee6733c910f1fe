package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Synthesizer turns a text item into stored audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResult, error)
}

// SynthesizeRequest describes one item of speech to produce.
type SynthesizeRequest struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
}

// SynthesizeResult is the provider's answer. DurationSeconds comes from the
// provider when it reports one; otherwise it is estimated from the text.
type SynthesizeResult struct {
	AudioRef        string  `json:"audio_ref"`
	DurationSeconds float64 `json:"duration_seconds"`
	Estimated       bool    `json:"estimated,omitempty"`
}

// Config describes how to reach the TTS provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPSynthesizer calls an external TTS service over HTTP.
type HTTPSynthesizer struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPSynthesizer validates the configuration and returns a ready client.
func NewHTTPSynthesizer(cfg Config) (*HTTPSynthesizer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("synthesis: base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSynthesizer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type ttsResponse struct {
	AudioURL        string  `json:"audio_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Synthesize posts the item to the provider. The provider's reported
// duration is authoritative; the word-count estimate is used only when the
// response carries none.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("synthesis: text required")
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, errors.New("synthesis: voice id required")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/synthesize", bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("synthesis: request build failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.apiKey) != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	}

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesis: read response failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("synthesis: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out ttsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("synthesis: decode response failed: %w", err)
	}
	if out.AudioURL == "" {
		return nil, errors.New("synthesis: provider returned no audio reference")
	}

	result := &SynthesizeResult{
		AudioRef:        out.AudioURL,
		DurationSeconds: out.DurationSeconds,
	}
	if result.DurationSeconds <= 0 {
		result.DurationSeconds = EstimateDuration(req.Text)
		result.Estimated = true
	}
	return result, nil
}

// EstimateDuration approximates spoken length at 150 words per minute.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	return float64(words) * 60.0 / 150.0
}
