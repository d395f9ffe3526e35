package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole converts a lowercase role name into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Turn represents a single chat message
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is the ordered conversation sent to the backend on every request.
// Turns are only ever appended.
type Context struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewContext creates a context seeded with a system turn when systemPrompt is non-empty
func NewContext(systemPrompt string) *Context {
	c := &Context{}
	if systemPrompt != "" {
		c.turns = append(c.turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

// AddTurn appends a turn. An invalid role is a programming error and panics.
func (c *Context) AddTurn(role Role, content string) {
	if !role.Valid() {
		panic(fmt.Sprintf("session: invalid role %q", role))
	}
	c.mu.Lock()
	c.turns = append(c.turns, Turn{Role: role, Content: content})
	c.mu.Unlock()
}

// Snapshot returns a copy of all turns in order
func (c *Context) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// CancelFlag is the exit request shared between the key listener and the controller
type CancelFlag struct {
	v atomic.Bool
}

// Set marks the session for termination
func (f *CancelFlag) Set() {
	f.v.Store(true)
}

// IsSet reports whether termination was requested
func (f *CancelFlag) IsSet() bool {
	return f.v.Load()
}

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Backend   string    `json:"backend"`
	Model     string    `json:"model"`
}

// New creates session metadata with a fresh ID
func New(backend, model string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Backend:   backend,
		Model:     model,
	}
}
