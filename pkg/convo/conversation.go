// Package convo holds per-session conversation state.
//
// A Conversation is the ordered log of role-tagged turns sent to the chat
// engine as context. The first turn is always the system persona and is
// immutable; user and assistant turns are appended by the session pipeline
// as transcriptions and completions finish.
//
// A Conversation is exclusively owned by one session. Methods are safe for
// concurrent use so the owning session's pipeline can append while status
// surfaces read.
package convo

import (
	"sync"

	"github.com/voicebridge/voicebridge/pkg/chat"
)

// Turn is one role-tagged message in the conversation history.
type Turn = chat.Message

// Conversation is an ordered log of turns, system turn first.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// New creates a conversation seeded with the immutable system turn.
func New(systemPrompt string) *Conversation {
	return &Conversation{
		turns: []Turn{chat.NewSystemMessage(systemPrompt)},
	}
}

// AddUser appends a user turn. Called only when a transcription completes.
func (c *Conversation) AddUser(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, chat.NewUserMessage(text))
}

// AddAssistant appends an assistant turn. Called only when a completion finishes.
func (c *Conversation) AddAssistant(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, chat.NewAssistantMessage(text))
}

// Messages returns a copy of the full ordered history for the chat engine.
func (c *Conversation) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns including the system turn.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// System returns the system persona text.
func (c *Conversation) System() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns[0].Content
}

// Last returns the most recent turn.
func (c *Conversation) Last() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns[len(c.turns)-1]
}

// Mark returns a position that a later Rollback can restore.
func (c *Conversation) Mark() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Rollback truncates the history to a previous Mark. The system turn can
// never be rolled back.
func (c *Conversation) Rollback(mark int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mark < 1 {
		mark = 1
	}
	if mark < len(c.turns) {
		c.turns = c.turns[:mark]
	}
}
