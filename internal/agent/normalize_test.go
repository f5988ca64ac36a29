package agent

import (
	"testing"
)

func TestNormalizeResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain string",
			raw:  `"just text"`,
			want: "just text",
		},
		{
			name: "openai choices shape",
			raw:  `{"choices":[{"message":{"role":"assistant","content":"from choices"}}]}`,
			want: "from choices",
		},
		{
			name: "responses output_text shape",
			raw:  `{"output_text":"from output_text"}`,
			want: "from output_text",
		},
		{
			name: "bare text field",
			raw:  `{"text":"from text"}`,
			want: "from text",
		},
		{
			name: "agent messages shape joins assistant turns",
			raw:  `{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"part one"},{"role":"assistant","content":"part two"}]}`,
			want: "part one\n\npart two",
		},
		{
			name: "top-level array of strings",
			raw:  `["alpha","beta"]`,
			want: "alpha\n\nbeta",
		},
		{
			name: "top-level array of objects",
			raw:  `[{"output_text":"alpha"},{"output_text":"beta"}]`,
			want: "alpha\n\nbeta",
		},
		{
			name: "predictions wrapper",
			raw:  `{"predictions":[{"choices":[{"message":{"content":"wrapped"}}]}]}`,
			want: "wrapped",
		},
		{
			name: "unknown shape falls back to raw JSON",
			raw:  `{"unexpected":42}`,
			want: `{"unexpected":42}`,
		},
		{
			name: "whitespace trimmed",
			raw:  `"  padded  "`,
			want: "padded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeResponse([]byte(tt.raw))
			if got != tt.want {
				t.Errorf("NormalizeResponse(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
