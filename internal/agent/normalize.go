package agent

import (
	"strings"

	"github.com/tidwall/gjson"
)

// NormalizeResponse flattens the serving response shapes seen in the wild
// (chat completions, agent frameworks, raw strings) into one plain text
// string suitable for display and persistence.
//
// Handled shapes:
//   - "..."                                  -> as-is
//   - {choices: [{message: {content}}]}      -> content
//   - {output_text} / {text}                 -> field value
//   - {messages: [{role, content}, ...]}     -> assistant contents joined
//   - {predictions: [...]}                   -> elements normalized and joined
//   - [str | {...any of the above...}, ...]  -> extracted pieces joined
//
// Anything else falls back to the raw JSON text.
func NormalizeResponse(raw []byte) string {
	result := gjson.ParseBytes(raw)

	if text, ok := normalizeValue(result); ok {
		return strings.TrimSpace(text)
	}

	return strings.TrimSpace(result.Raw)
}

func normalizeValue(v gjson.Result) (string, bool) {
	switch {
	case v.Type == gjson.String:
		return v.String(), true

	case v.IsObject():
		return normalizeObject(v)

	case v.IsArray():
		return normalizeArray(v)
	}

	return "", false
}

func normalizeObject(v gjson.Result) (string, bool) {
	if content := v.Get("choices.0.message.content"); content.Exists() {
		return content.String(), true
	}
	if out := v.Get("output_text"); out.Type == gjson.String {
		return out.String(), true
	}
	if out := v.Get("text"); out.Type == gjson.String {
		return out.String(), true
	}
	if msgs := v.Get("messages"); msgs.IsArray() {
		if joined := joinAssistantContents(msgs); joined != "" {
			return joined, true
		}
	}
	// MLflow serving wraps batch outputs in a predictions array.
	if preds := v.Get("predictions"); preds.IsArray() {
		return normalizeArray(preds)
	}
	return "", false
}

func normalizeArray(v gjson.Result) (string, bool) {
	var collected []string
	for _, item := range v.Array() {
		switch {
		case item.Type == gjson.String:
			if strings.TrimSpace(item.String()) != "" {
				collected = append(collected, item.String())
			}
		case item.IsObject():
			if text, ok := normalizeObject(item); ok && strings.TrimSpace(text) != "" {
				collected = append(collected, text)
			}
		}
	}
	if len(collected) == 0 {
		return "", false
	}
	return strings.Join(collected, "\n\n"), true
}

// joinAssistantContents extracts non-empty assistant message contents from a
// messages array and joins them with blank lines.
func joinAssistantContents(msgs gjson.Result) string {
	var texts []string
	for _, m := range msgs.Array() {
		if m.Get("role").String() != "assistant" {
			continue
		}
		content := m.Get("content")
		if content.Type != gjson.String || strings.TrimSpace(content.String()) == "" {
			continue
		}
		texts = append(texts, content.String())
	}
	return strings.Join(texts, "\n\n")
}
