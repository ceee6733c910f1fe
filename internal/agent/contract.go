package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies how an agent is driven.
type Type string

const (
	TypeConversational Type = "conversational"
	TypeVoice          Type = "voice"
	TypeWorkflow       Type = "workflow"
	TypeAutonomous     Type = "autonomous"
)

// Status is the lifecycle flag of an agent. Agents are never deleted;
// archival flips this flag and nothing else.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// TraitNames is the fixed set of persona sliders every contract carries.
// Validation requires exactly these keys, each in [0,100].
var TraitNames = []string{
	"confidence",
	"empathy",
	"creativity",
	"discipline",
	"assertiveness",
	"humor",
	"formality",
	"verbosity",
	"spirituality",
	"supportiveness",
}

const (
	traitMin = 0
	traitMax = 100
)

// Identity is the human-readable definition of who the agent is.
type Identity struct {
	ShortDescription  string   `json:"short_description"`
	FullDescription   string   `json:"full_description,omitempty"`
	Roles             []string `json:"roles"`
	Mission           string   `json:"mission"`
	InteractionStyles []string `json:"interaction_styles"`
	AvatarURL         string   `json:"avatar_url,omitempty"`
}

// Configuration carries completion-service and memory tuning.
type Configuration struct {
	Model         string  `json:"model"`
	MaxTokens     int32   `json:"max_tokens"`
	Temperature   float32 `json:"temperature"`
	MemoryEnabled bool    `json:"memory_enabled"`
	VoiceEnabled  bool    `json:"voice_enabled"`
	ToolsEnabled  bool    `json:"tools_enabled"`
	RecallDepth   int     `json:"recall_depth"`
	ThreadWindow  int     `json:"thread_window"`
}

// VoiceConfig configures the speech collaborators for voice-enabled agents.
type VoiceConfig struct {
	Provider       string  `json:"provider"`
	VoiceID        string  `json:"voice_id"`
	Language       string  `json:"language"`
	Speed          float64 `json:"speed"`
	Pitch          float64 `json:"pitch"`
	Stability      float64 `json:"stability"`
	Similarity     float64 `json:"similarity"`
	SpeechProvider string  `json:"speech_provider,omitempty"`
	SpeechModel    string  `json:"speech_model,omitempty"`
	SpeechLanguage string  `json:"speech_language,omitempty"`
	VADEnabled     bool    `json:"vad_enabled"`
}

// Contract is the authoritative, versioned definition of an agent persona.
type Contract struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	OwnerID           string         `json:"owner_id"`
	Name              string         `json:"name"`
	Type              Type           `json:"type"`
	Version           string         `json:"version"`
	Identity          Identity       `json:"identity"`
	Traits            map[string]int `json:"traits"`
	Configuration     Configuration  `json:"configuration"`
	Voice             *VoiceConfig   `json:"voice,omitempty"`
	Status            Status         `json:"status"`
	InteractionCount  int64          `json:"interaction_count"`
	LastInteractionAt *time.Time     `json:"last_interaction_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Version is an immutable snapshot of a contract taken before an accepted
// mutation replaced it. Snapshots form the audit trail and are never deleted.
type ContractVersion struct {
	ID        uuid.UUID `json:"id"`
	AgentID   string    `json:"agent_id"`
	TenantID  string    `json:"tenant_id"`
	Version   string    `json:"version"`
	Contract  Contract  `json:"contract"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Patch is a partial contract mutation. Nil fields are left untouched;
// Traits merges per key. The whole patch is validated before any of it
// applies — a single out-of-range trait rejects the entire patch.
type Patch struct {
	Name          *string        `json:"name,omitempty"`
	Identity      *Identity      `json:"identity,omitempty"`
	Traits        map[string]int `json:"traits,omitempty"`
	Configuration *Configuration `json:"configuration,omitempty"`
	Voice         *VoiceConfig   `json:"voice,omitempty"`
}

// Validate checks a contract draft against the construction constraints.
func (c *Contract) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return newValidationError("name", "required")
	}
	switch c.Type {
	case TypeConversational, TypeVoice, TypeWorkflow, TypeAutonomous:
	default:
		return newValidationError("type", "unknown agent type %q", c.Type)
	}
	if strings.TrimSpace(c.Identity.ShortDescription) == "" {
		return newValidationError("identity.short_description", "required")
	}
	if strings.TrimSpace(c.Identity.Mission) == "" {
		return newValidationError("identity.mission", "required")
	}
	if len(c.Identity.Roles) == 0 {
		return newValidationError("identity.roles", "at least one role is required")
	}
	if len(c.Identity.InteractionStyles) == 0 {
		return newValidationError("identity.interaction_styles", "at least one style is required")
	}
	if err := validateTraits(c.Traits); err != nil {
		return err
	}
	if c.Configuration.Temperature < 0 || c.Configuration.Temperature > 2 {
		return newValidationError("configuration.temperature", "must be within [0,2], got %v", c.Configuration.Temperature)
	}
	if c.Configuration.MaxTokens < 0 {
		return newValidationError("configuration.max_tokens", "must not be negative")
	}
	if c.Configuration.RecallDepth < 0 {
		return newValidationError("configuration.recall_depth", "must not be negative")
	}
	if c.Configuration.ThreadWindow < 0 {
		return newValidationError("configuration.thread_window", "must not be negative")
	}
	if c.Configuration.VoiceEnabled && c.Voice == nil {
		return newValidationError("voice", "voice block is required when voice is enabled")
	}
	if c.Voice != nil {
		if strings.TrimSpace(c.Voice.Provider) == "" {
			return newValidationError("voice.provider", "required")
		}
		if strings.TrimSpace(c.Voice.VoiceID) == "" {
			return newValidationError("voice.voice_id", "required")
		}
	}
	return nil
}

// validateTraits requires the complete fixed trait set with in-range values.
func validateTraits(traits map[string]int) error {
	if len(traits) != len(TraitNames) {
		return newValidationError("traits", "expected %d traits, got %d", len(TraitNames), len(traits))
	}
	for _, name := range TraitNames {
		value, ok := traits[name]
		if !ok {
			return newValidationError("traits."+name, "missing")
		}
		if value < traitMin || value > traitMax {
			return newValidationError("traits."+name, "must be within [%d,%d], got %d", traitMin, traitMax, value)
		}
	}
	return nil
}

// apply produces the contract that would result from the patch, without
// mutating the receiver. The result still needs Validate before persisting.
func (c Contract) apply(patch Patch) Contract {
	next := c

	traits := make(map[string]int, len(c.Traits))
	for k, v := range c.Traits {
		traits[k] = v
	}
	for k, v := range patch.Traits {
		traits[k] = v
	}
	next.Traits = traits

	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Identity != nil {
		next.Identity = *patch.Identity
	}
	if patch.Configuration != nil {
		next.Configuration = *patch.Configuration
	}
	if patch.Voice != nil {
		voice := *patch.Voice
		next.Voice = &voice
	}
	return next
}

// bumpKind reports whether the patch warrants a minor version bump.
// Identity and voice changes bump minor; everything else bumps patch.
func (p Patch) bumpKind() string {
	if p.Identity != nil || p.Voice != nil {
		return "minor"
	}
	return "patch"
}

// bumpVersion increments a semantic version string. A minor bump resets the
// patch component; the major component only changes by explicit migration,
// never through Patch.
func bumpVersion(version, kind string) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("agent: malformed version %q", version)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("agent: malformed version %q", version)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("agent: malformed version %q", version)
	}
	patchN, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("agent: malformed version %q", version)
	}

	switch kind {
	case "minor":
		minor++
		patchN = 0
	default:
		patchN++
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patchN), nil
}

const initialVersion = "1.0.0"

// DefaultTraits returns a neutral trait set with every slider at midpoint.
func DefaultTraits() map[string]int {
	traits := make(map[string]int, len(TraitNames))
	for _, name := range TraitNames {
		traits[name] = 50
	}
	return traits
}
