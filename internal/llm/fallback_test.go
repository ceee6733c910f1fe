package llm

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	resp  Response
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _ Request) (Response, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackClient_PrimarySucceeds(t *testing.T) {
	primary := &stubClient{resp: Response{Text: "primary"}}
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "primary" {
		t.Fatalf("expected primary response, got %q", resp.Text)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not have been called")
	}
}

func TestFallbackClient_PrimaryFails(t *testing.T) {
	primary := &stubClient{err: errors.New("throttled")}
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "fallback" {
		t.Fatalf("expected fallback response, got %q", resp.Text)
	}
}

func TestFallbackClient_BothFail(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	fallback := &stubClient{err: errors.New("fallback down")}
	client := NewFallbackClient(primary, fallback, nil)

	_, err := client.Complete(context.Background(), Request{Model: "m"})
	if err == nil || err.Error() != "fallback down" {
		t.Fatalf("expected fallback error, got %v", err)
	}
}

func TestFallbackClient_NoFallbackConfigured(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	client := NewFallbackClient(primary, nil, nil)

	_, err := client.Complete(context.Background(), Request{Model: "m"})
	if err == nil || err.Error() != "primary down" {
		t.Fatalf("expected primary error, got %v", err)
	}
}
