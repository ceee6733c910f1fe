package notify

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

func TestNewSendGridSenderRequiresKey(t *testing.T) {
	if s := NewSendGridSender(SendGridConfig{FromEmail: "noreply@example.com"}, nil); s != nil {
		t.Error("expected nil sender without API key")
	}
	if s := NewSendGridSender(SendGridConfig{APIKey: "sg-key", FromEmail: "noreply@example.com"}, nil); s == nil {
		t.Error("expected sender with API key")
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	s := NewLogSender(nil)
	err := s.Send(context.Background(), Message{To: "sam@example.com", Subject: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	fake := &fakeSES{}
	sender := &SESSender{client: fake, fromEmail: "noreply@example.com", fromName: "InnerVoice", logger: logging.Default()}

	msg := Message{To: "sam@example.com", Subject: "Your protocol is ready", TextBody: "body", HTMLBody: "<p>body</p>"}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("sent %d, want 1", len(fake.inputs))
	}

	input := fake.inputs[0]
	if got := aws.ToString(input.FromEmailAddress); got != "InnerVoice <noreply@example.com>" {
		t.Errorf("from = %q", got)
	}
	if got := input.Destination.ToAddresses; len(got) != 1 || got[0] != "sam@example.com" {
		t.Errorf("to = %v", got)
	}
	body := input.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "body" || body.Html == nil {
		t.Errorf("body = %+v", body)
	}
}

func TestNewSESSenderRequiresClient(t *testing.T) {
	if s := NewSESSender(nil, SESConfig{}, nil); s != nil {
		t.Error("expected nil sender without client")
	}
}
