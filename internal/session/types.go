package session

import (
	"strings"
	"time"
)

// Role tags who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultScenario is the free-form conversation tag.
const DefaultScenario = "libre"

// DefaultMaxHistory is the history bound used when none is configured.
const DefaultMaxHistory = 20

// Turn is one message of a dialogue. Turns are never edited once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the per-user dialogue state.
type Session struct {
	UserID    string    `json:"user_id"`
	Scenario  string    `json:"scenario"`
	History   []Turn    `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty session for userID.
func New(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		Scenario:  DefaultScenario,
		History:   []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a turn and trims the history so at most maxTurns non-system
// turns remain, oldest first. A system turn at index 0 is kept in place.
func (s *Session) Append(role Role, content string, maxTurns int) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxHistory
	}
	s.History = append(s.History, Turn{Role: role, Content: content})

	if len(s.History) > 0 && s.History[0].Role == RoleSystem {
		pinned := s.History[0]
		rest := trimTail(s.History[1:], maxTurns)
		history := make([]Turn, 0, len(rest)+1)
		history = append(history, pinned)
		s.History = append(history, rest...)
		return
	}
	s.History = trimTail(s.History, maxTurns)
}

func trimTail(turns []Turn, max int) []Turn {
	if len(turns) <= max {
		return turns
	}
	out := make([]Turn, max)
	copy(out, turns[len(turns)-max:])
	return out
}

// LastAssistantReply returns the most recent assistant turn.
func (s *Session) LastAssistantReply() (string, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i].Content, true
		}
	}
	return "", false
}

// ClearHistory drops every turn but keeps identity and creation time.
func (s *Session) ClearHistory() {
	s.History = []Turn{}
}

// SetScenario overwrites the active scenario; blank values fall back to the default.
func (s *Session) SetScenario(scenario string) {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		scenario = DefaultScenario
	}
	s.Scenario = scenario
}

func clone(s *Session) *Session {
	c := *s
	c.History = make([]Turn, len(s.History))
	copy(c.History, s.History)
	return &c
}
