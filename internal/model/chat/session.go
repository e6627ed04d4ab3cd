package chat

import "strings"

// Session captures the running conversation: a fixed system prompt plus the
// ordered history. It is the exact shape of the durable transcript.
type Session struct {
	SystemPrompt string `json:"system_prompt"`
	History      []Turn `json:"history"`
}

// NewSession starts an empty conversation under systemPrompt.
func NewSession(systemPrompt string) Session {
	return Session{
		SystemPrompt: systemPrompt,
		History:      make([]Turn, 0, 16),
	}
}

// BuildPrompt flattens the session into the single string sent to the model.
// The backend is stateless, so this string carries the whole context.
func (s Session) BuildPrompt() string {
	var builder strings.Builder
	builder.WriteString(s.SystemPrompt)
	for _, turn := range s.History {
		builder.WriteString("\n")
		builder.WriteString(turn.Role.Label())
		builder.WriteString(": ")
		builder.WriteString(turn.Content)
	}
	return builder.String()
}

// Clone returns a copy that shares no backing array with s.
func (s Session) Clone() Session {
	history := make([]Turn, len(s.History))
	copy(history, s.History)
	return Session{SystemPrompt: s.SystemPrompt, History: history}
}
