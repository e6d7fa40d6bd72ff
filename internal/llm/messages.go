package llm

import (
	"strings"

	"github.com/ent0n29/parlons/internal/session"
)

// BuildMessages composes the system directive, the prior history and the
// latest prompt. System turns in history are dropped since the directive is
// always composed fresh. A blank prompt adds no trailing user turn.
func BuildMessages(systemPrompt string, history []session.Turn, prompt string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: s})
	}
	for _, t := range history {
		if t.Role == session.RoleSystem {
			continue
		}
		msgs = append(msgs, Message{Role: Role(t.Role), Content: t.Content})
	}
	if p := strings.TrimSpace(prompt); p != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: p})
	}
	return msgs
}
