package convstore

import "strings"

const continuationInstruction = "Continue the conversation as the assistant."

// BuildPrompt assembles the model-facing prompt: the optional system
// directive, one "[role]: content" line per prior non-system message,
// the new user message, and a trailing continuation instruction (spec
// §4.6 "Prompt construction"). It does not itself append newUserText to
// history — callers call Append separately so a failed downstream call
// doesn't leave an orphaned turn recorded.
func (s *Store) BuildPrompt(id, newUserText string) (string, error) {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return "", notFoundErr("convstore.BuildPrompt", id)
	}
	if conv.Status != StatusActive {
		s.mu.Unlock()
		return "", notActiveErr("convstore.BuildPrompt", conv.Status)
	}
	directive := conv.SystemDirective
	history := make([]Message, len(conv.Messages))
	copy(history, conv.Messages)
	s.mu.Unlock()

	var b strings.Builder
	if directive != "" {
		b.WriteString(directive)
		b.WriteString("\n\n")
	}
	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		b.WriteString("[")
		b.WriteString(string(m.Role))
		b.WriteString("]: ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("[")
	b.WriteString(string(RoleUser))
	b.WriteString("]: ")
	b.WriteString(newUserText)
	b.WriteString("\n\n")
	b.WriteString(continuationInstruction)

	return b.String(), nil
}
