package intent

import (
	"encoding/json"
	"strings"

	"ledbutler/internal/domain"
)

// modelReply is the JSON shape the prompt demands.
type modelReply struct {
	Text     string  `json:"text"`
	Action   *string `json:"action"`
	Duration int     `json:"duration"`
}

// parse applies the strict allow-list to raw model output. Accepted forms:
//
//  1. a JSON object {"text", "action", "duration"} whose action is a known
//     label or null; small models wrap the object in prose or code fences,
//     so the first balanced {...} is extracted before unmarshalling;
//  2. a bare label on its own (some models skip the JSON entirely).
//
// A null action with reply text is a conversational answer and resolves to
// Noop carrying that text. Everything else, including a null action with
// no text, stays unresolved.
func (r *Resolver) parse(raw string) (domain.Action, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Action{}, false
	}

	if obj, ok := extractJSONObject(raw); ok {
		var reply modelReply
		if err := json.Unmarshal([]byte(obj), &reply); err != nil {
			return domain.Action{}, false
		}
		if reply.Action == nil {
			text := strings.TrimSpace(reply.Text)
			if text == "" {
				return domain.Action{}, false
			}
			return domain.Action{Kind: domain.ActionNoop, Reply: text}, true
		}
		label := strings.ToLower(strings.TrimSpace(*reply.Action))
		if _, known := labelKinds[label]; !known {
			return domain.Action{}, false
		}
		return r.actionFor(label, reply.Duration), true
	}

	if label, ok := bareLabel(raw); ok {
		return r.actionFor(label, 0), true
	}
	return domain.Action{}, false
}

// extractJSONObject returns the first balanced top-level {...} in raw,
// ignoring markdown code fences. Braces inside JSON strings are tracked so
// a "text" value containing one does not unbalance the scan.
func extractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// bareLabel accepts a label standing alone, tolerating surrounding
// whitespace, quotes, backticks, and a trailing period. Anything beyond
// that — prose around the label, several labels — is rejected.
func bareLabel(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, "`\"'")
	s = strings.TrimSuffix(s, ".")
	if _, ok := labelKinds[s]; ok {
		return s, true
	}
	return "", false
}
