package llm

import "testing"

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			raw:  `{"name":"a","items":["x"]}`,
			want: "a",
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"name\":\"b\",\"items\":[]}\n```",
			want: "b",
		},
		{
			name: "plain fence",
			raw:  "```\n{\"name\":\"c\"}\n```",
			want: "c",
		},
		{
			name: "surrounding prose",
			raw:  "Here is the result:\n{\"name\":\"d\"}\nHope that helps!",
			want: "d",
		},
		{
			name:    "no json at all",
			raw:     "I could not produce a result.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"name": "e",}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			err := DecodeJSON(tt.raw, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected decode error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			if got.Name != tt.want {
				t.Fatalf("expected name %q, got %q", tt.want, got.Name)
			}
		})
	}
}

func TestDecodeJSONArray(t *testing.T) {
	raw := "The practices are:\n[\"one\", \"two\"]\n"
	var got []string
	if err := DecodeJSON(raw, &got); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if len(got) != 2 || got[0] != "one" {
		t.Fatalf("unexpected result: %#v", got)
	}
}
