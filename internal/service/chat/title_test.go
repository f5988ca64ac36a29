package chat

import "testing"

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		maxWords int
		want     string
	}{
		{
			name:     "plain title",
			raw:      "Vacation planning",
			maxWords: 6,
			want:     "Vacation planning",
		},
		{
			name:     "strips quotes and whitespace",
			raw:      `  "Quarterly budget review"  `,
			maxWords: 6,
			want:     "Quarterly budget review",
		},
		{
			name:     "caps word count",
			raw:      "one two three four five six seven eight",
			maxWords: 6,
			want:     "one two three four five six",
		},
		{
			name:     "keeps first line only",
			raw:      "Good title\nfollowed by rambling",
			maxWords: 6,
			want:     "Good title",
		},
		{
			name:     "empty after trimming",
			raw:      `  ""  `,
			maxWords: 6,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeTitle(tt.raw, tt.maxWords)
			if got != tt.want {
				t.Errorf("sanitizeTitle(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFallbackTitle(t *testing.T) {
	history := []ClientMessage{
		{Role: "assistant", Content: "welcome"},
		{Role: "user", Content: "how do I configure the staging environment for deploys"},
	}

	got := fallbackTitle(history, 6)
	want := "how do I configure the staging..."
	if got != want {
		t.Errorf("fallbackTitle() = %q, want %q", got, want)
	}
}

func TestFallbackTitleShortMessage(t *testing.T) {
	history := []ClientMessage{{Role: "user", Content: "hello there"}}

	if got := fallbackTitle(history, 6); got != "hello there" {
		t.Errorf("fallbackTitle() = %q, want %q", got, "hello there")
	}
}

func TestFallbackTitleNoUserMessage(t *testing.T) {
	history := []ClientMessage{{Role: "assistant", Content: "hi"}}

	if got := fallbackTitle(history, 6); got != "" {
		t.Errorf("fallbackTitle() = %q, want empty", got)
	}
}

func TestConversationExcerpt(t *testing.T) {
	history := []ClientMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "an answer"},
		{Role: "user", Content: "follow-up"},
		{Role: "assistant", Content: "ignored past the limit"},
	}

	got := conversationExcerpt(history, 3)
	want := "user: first question\nassistant: an answer\nuser: follow-up"
	if got != want {
		t.Errorf("conversationExcerpt() = %q, want %q", got, want)
	}
}
