package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// ErrBusy is returned when a conversation already has a request in flight
var ErrBusy = errors.New("conversation busy")

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry
type Message struct {
	Role     Role                              `json:"role"`
	Content  string                            `json:"content"`
	Envelope *contracts.RecommendationEnvelope `json:"envelope,omitempty"`
	At       time.Time                         `json:"at"`
}

// Asker builds envelopes
type Asker interface {
	Build(ctx context.Context, req Request) (*contracts.RecommendationEnvelope, error)
}

// Conversation is an in-memory chat transcript.
// At most one Ask runs at a time.
type Conversation struct {
	id    string
	asker Asker

	busy atomic.Bool

	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

// NewConversation creates an empty conversation. An empty id is generated.
func NewConversation(id string, asker Asker) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	return &Conversation{id: id, asker: asker, now: time.Now}
}

// ID returns the conversation id
func (c *Conversation) ID() string {
	return c.id
}

// Ask records the user message and, on success, the assistant reply.
// On failure the user message stays and no reply is recorded.
func (c *Conversation) Ask(ctx context.Context, req Request) (*contracts.RecommendationEnvelope, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: RoleUser, Content: req.Query, At: c.now()})
	c.mu.Unlock()

	env, err := c.asker.Build(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.messages = append(c.messages, Message{
		Role:     RoleAssistant,
		Content:  env.Summary,
		Envelope: env,
		At:       c.now(),
	})
	return env, nil
}

// Messages returns a copy of the transcript
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Busy reports whether a request is in flight
func (c *Conversation) Busy() bool {
	return c.busy.Load()
}

// DefaultMaxConversations bounds the session registry
const DefaultMaxConversations = 256

// Sessions keeps conversations by id, evicting the least recently used idle
// conversation beyond a bound. Busy conversations are never evicted, so the
// registry may briefly exceed the bound. Transcripts live in memory only.
type Sessions struct {
	asker Asker
	max   int

	mu    sync.Mutex
	convs map[string]*Conversation
	order []string
}

// NewSessions creates a registry. max <= 0 uses DefaultMaxConversations.
func NewSessions(asker Asker, max int) *Sessions {
	if max <= 0 {
		max = DefaultMaxConversations
	}
	return &Sessions{asker: asker, max: max, convs: make(map[string]*Conversation)}
}

// Get returns the conversation for id, creating it when unknown
func (s *Sessions) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.convs[id]; ok && id != "" {
		s.touch(id)
		return c
	}

	c := NewConversation(id, s.asker)
	s.convs[c.ID()] = c
	s.order = append(s.order, c.ID())
	s.evict()
	return c
}

// touch moves id to the most recently used end. Caller holds s.mu.
func (s *Sessions) touch(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(append(s.order[:i:i], s.order[i+1:]...), id)
			return
		}
	}
}

// evict drops idle conversations, oldest first, until the bound holds.
// Caller holds s.mu.
func (s *Sessions) evict() {
	for i := 0; len(s.order) > s.max && i < len(s.order)-1; {
		id := s.order[i]
		if s.convs[id].Busy() {
			i++
			continue
		}
		delete(s.convs, id)
		s.order = append(s.order[:i:i], s.order[i+1:]...)
	}
}

// Lookup returns an existing conversation
func (s *Sessions) Lookup(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	return c, ok
}

// Len returns the number of live conversations
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
