package chat

import (
	"context"
	"strings"
)

const titleExcerptMessages = 4

// AutoTitleSession loads the session transcript and generates a title for it.
func (s *Service) AutoTitleSession(ctx context.Context, sessionID, userName string) (string, error) {
	history, err := s.LoadHistory(ctx, userName, sessionID)
	if err != nil {
		return "", err
	}
	return s.GenerateTitle(ctx, sessionID, userName, history)
}

// GenerateTitle produces a short title for a session from its opening
// messages and persists it. Generation failures fall back to a truncated
// first user message so a rename always lands.
func (s *Service) GenerateTitle(ctx context.Context, sessionID, userName string, history []ClientMessage) (string, error) {
	title := s.aiTitle(ctx, history)
	if title == "" {
		title = fallbackTitle(history, s.prompts.TitleMaxWords())
	}
	if title == "" {
		title = "New chat"
	}

	if err := s.sessions.RenameSession(ctx, sessionID, userName, title); err != nil {
		return "", err
	}
	return title, nil
}

// aiTitle asks the title endpoint for a summary. Returns "" on any failure;
// the caller falls back.
func (s *Service) aiTitle(ctx context.Context, history []ClientMessage) string {
	if s.titleEndpoint == "" {
		return ""
	}

	excerpt := conversationExcerpt(history, titleExcerptMessages)
	if excerpt == "" {
		return ""
	}

	raw, err := s.generator.GenerateText(ctx, s.titleEndpoint, s.prompts.TitlePrompt(excerpt))
	if err != nil {
		s.logger.Warn("title generation failed", "error", err)
		return ""
	}

	return sanitizeTitle(raw, s.prompts.TitleMaxWords())
}

// conversationExcerpt renders the first few non-empty messages as
// "role: content" lines.
func conversationExcerpt(history []ClientMessage, limit int) string {
	var lines []string
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, m.Role+": "+content)
		if len(lines) >= limit {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// sanitizeTitle strips quotes and surrounding whitespace from a generated
// title and caps it at maxWords words.
func sanitizeTitle(raw string, maxWords int) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	// Models occasionally reply with a multi-line answer; keep the first line.
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}

	words := strings.Fields(title)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

// fallbackTitle truncates the first user message to maxWords words.
func fallbackTitle(history []ClientMessage, maxWords int) string {
	for _, m := range history {
		if m.Role != "user" {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		words := strings.Fields(content)
		if maxWords > 0 && len(words) > maxWords {
			return strings.Join(words[:maxWords], " ") + "..."
		}
		return strings.Join(words, " ")
	}
	return ""
}
