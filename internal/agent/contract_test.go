package agent

import (
	"errors"
	"testing"
)

func validContract() *Contract {
	return &Contract{
		TenantID: "tenant-a",
		OwnerID:  "user-1",
		Name:     "Aria",
		Type:     TypeConversational,
		Identity: Identity{
			ShortDescription:  "a calm morning guide",
			Mission:           "help people start the day with intention",
			Roles:             []string{"guide"},
			InteractionStyles: []string{"warm", "direct"},
		},
		Traits: DefaultTraits(),
		Configuration: Configuration{
			Model:         "anthropic.claude-3-5-haiku-20241022-v1:0",
			MaxTokens:     1024,
			Temperature:   0.7,
			MemoryEnabled: true,
			RecallDepth:   5,
			ThreadWindow:  20,
		},
	}
}

func TestContractValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Contract)
		wantErr string
	}{
		{
			name:   "valid contract",
			mutate: func(c *Contract) {},
		},
		{
			name:    "missing name",
			mutate:  func(c *Contract) { c.Name = "  " },
			wantErr: "name",
		},
		{
			name:    "unknown type",
			mutate:  func(c *Contract) { c.Type = "oracle" },
			wantErr: "type",
		},
		{
			name:    "missing mission",
			mutate:  func(c *Contract) { c.Identity.Mission = "" },
			wantErr: "identity.mission",
		},
		{
			name:    "no roles",
			mutate:  func(c *Contract) { c.Identity.Roles = nil },
			wantErr: "identity.roles",
		},
		{
			name:    "trait out of range",
			mutate:  func(c *Contract) { c.Traits["empathy"] = 150 },
			wantErr: "traits.empathy",
		},
		{
			name:    "missing trait",
			mutate:  func(c *Contract) { delete(c.Traits, "humor") },
			wantErr: "traits",
		},
		{
			name:    "extra trait",
			mutate:  func(c *Contract) { c.Traits["bravado"] = 50 },
			wantErr: "traits",
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Contract) { c.Configuration.Temperature = 2.5 },
			wantErr: "configuration.temperature",
		},
		{
			name:    "voice enabled without voice block",
			mutate:  func(c *Contract) { c.Configuration.VoiceEnabled = true },
			wantErr: "voice",
		},
		{
			name: "voice block missing voice id",
			mutate: func(c *Contract) {
				c.Voice = &VoiceConfig{Provider: "elevenlabs"}
			},
			wantErr: "voice.voice_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validContract()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantErr {
				t.Errorf("Validate() field = %q, want %q", ve.Field, tt.wantErr)
			}
		})
	}
}

func TestApplyDoesNotMutateOriginal(t *testing.T) {
	original := validContract()
	original.Traits["empathy"] = 40

	name := "Nova"
	next := original.apply(Patch{
		Name:   &name,
		Traits: map[string]int{"empathy": 90},
	})

	if original.Name != "Aria" || original.Traits["empathy"] != 40 {
		t.Fatalf("apply mutated the original contract: %+v", original)
	}
	if next.Name != "Nova" {
		t.Errorf("apply name = %q, want Nova", next.Name)
	}
	if next.Traits["empathy"] != 90 {
		t.Errorf("apply traits.empathy = %d, want 90", next.Traits["empathy"])
	}
	if next.Traits["humor"] != 50 {
		t.Errorf("apply dropped untouched trait humor = %d, want 50", next.Traits["humor"])
	}
}

func TestApplyRejectsPartialInvalidPatch(t *testing.T) {
	c := validContract()

	name := "Nova"
	next := c.apply(Patch{
		Name:   &name,
		Traits: map[string]int{"empathy": 150},
	})

	if err := next.Validate(); err == nil {
		t.Fatal("expected validation to reject the patched contract")
	}
	// The caller must not persist either change from the patch.
	if c.Name != "Aria" || c.Traits["empathy"] != 50 {
		t.Fatalf("original contract changed: %+v", c)
	}
}

func TestBumpVersion(t *testing.T) {
	tests := []struct {
		version string
		kind    string
		want    string
	}{
		{"1.0.0", "patch", "1.0.1"},
		{"1.0.3", "minor", "1.1.0"},
		{"1.9.9", "patch", "1.9.10"},
		{"2.1.0", "minor", "2.2.0"},
	}
	for _, tt := range tests {
		got, err := bumpVersion(tt.version, tt.kind)
		if err != nil {
			t.Fatalf("bumpVersion(%q, %q) error: %v", tt.version, tt.kind, err)
		}
		if got != tt.want {
			t.Errorf("bumpVersion(%q, %q) = %q, want %q", tt.version, tt.kind, got, tt.want)
		}
	}

	if _, err := bumpVersion("not-semver", "patch"); err == nil {
		t.Error("expected error for malformed version")
	}
}

func TestPatchBumpKind(t *testing.T) {
	if kind := (Patch{Traits: map[string]int{"humor": 80}}).bumpKind(); kind != "patch" {
		t.Errorf("trait-only patch kind = %q, want patch", kind)
	}
	if kind := (Patch{Identity: &Identity{}}).bumpKind(); kind != "minor" {
		t.Errorf("identity patch kind = %q, want minor", kind)
	}
	if kind := (Patch{Voice: &VoiceConfig{}}).bumpKind(); kind != "minor" {
		t.Errorf("voice patch kind = %q, want minor", kind)
	}
}
