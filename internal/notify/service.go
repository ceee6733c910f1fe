package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/innervoice/guide-ai-platform/internal/pipeline"
	"github.com/innervoice/guide-ai-platform/internal/synthesis"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// Recipient identifies who receives a notification.
type Recipient struct {
	Email string
	Name  string
}

// Service composes and sends the platform's notification emails.
type Service struct {
	email  Sender
	logger *logging.Logger
}

// NewService creates a notification service. A nil sender disables delivery.
func NewService(email Sender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// NotifyProtocolReady tells the user their generated protocol is available.
func (s *Service) NotifyProtocolReady(ctx context.Context, to Recipient, agentName string, p *pipeline.Protocol) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping")
		return nil
	}
	if to.Email == "" {
		return fmt.Errorf("notify: recipient email is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", firstName(to.Name))
	fmt.Fprintf(&b, "%s has finished building your protocol for:\n\n  %s\n\n", agentName, p.Meta.Goal)
	fmt.Fprintf(&b, "Timeframe: %s\n", p.Meta.Timeframe)
	fmt.Fprintf(&b, "Daily practices: %d\n", len(p.DailyPractices))
	fmt.Fprintf(&b, "Affirmations: %d\n", affirmationCount(p.Affirmations))
	fmt.Fprintf(&b, "Visualizations: %d\n", len(p.Visualizations))
	if len(p.DailyPractices) > 0 {
		b.WriteString("\nYour first practice:\n")
		first := p.DailyPractices[0]
		fmt.Fprintf(&b, "  %s (%s, %d min)\n  %s\n", first.Name, first.TimeOfDay, first.DurationMin, first.Description)
	}
	b.WriteString("\nOpen the app to start your first session.\n")

	msg := Message{
		To:       to.Email,
		ToName:   to.Name,
		Subject:  fmt.Sprintf("Your protocol is ready: %s", p.Meta.Goal),
		TextBody: b.String(),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: protocol ready email: %w", err)
	}
	s.logger.Info("protocol ready notification sent", "tenant_id", p.TenantID, "protocol_id", p.ID, "to", to.Email)
	return nil
}

// NotifySynthesisDigest summarizes an audio synthesis batch once all items
// have settled. Failed items are listed so the user knows what to retry.
func (s *Service) NotifySynthesisDigest(ctx context.Context, to Recipient, agentName string, items []synthesis.Item) error {
	if s.email == nil || len(items) == 0 {
		return nil
	}
	if to.Email == "" {
		return fmt.Errorf("notify: recipient email is required")
	}

	var completed, failed int
	var failures []string
	for _, item := range items {
		switch item.Status {
		case synthesis.ItemStatusCompleted:
			completed++
		case synthesis.ItemStatusFailed:
			failed++
			failures = append(failures, fmt.Sprintf("  %s #%d: %s", item.Kind, item.Position+1, item.ErrorMessage))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", firstName(to.Name))
	fmt.Fprintf(&b, "%s finished preparing your audio: %d of %d tracks are ready.\n", agentName, completed, len(items))
	if failed > 0 {
		fmt.Fprintf(&b, "\n%d tracks could not be generated:\n%s\n", failed, strings.Join(failures, "\n"))
		b.WriteString("\nYou can retry them from the app.\n")
	}

	subject := "Your audio is ready"
	if failed > 0 {
		subject = fmt.Sprintf("Your audio is ready (%d tracks need a retry)", failed)
	}

	msg := Message{To: to.Email, ToName: to.Name, Subject: subject, TextBody: b.String()}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: synthesis digest email: %w", err)
	}
	return nil
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "there"
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

func affirmationCount(set pipeline.AffirmationSet) int {
	return len(set.Identity) + len(set.Gratitude) + len(set.Action) + len(set.Visualization)
}
