// Package registry implements the process-wide Connection Registry: the
// single mutex-guarded mapping from state_token to the Client Entry that
// gathers every sibling WebSocket's fanout sender plus the upstream
// sessions they share.
package registry

import (
	"log/slog"
	"sync"

	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/twitch"
)

// fanoutCapacity is the bounded channel capacity per §5: a slow sibling
// whose channel fills is treated as failed rather than allowed to block
// the registry's broadcast.
const fanoutCapacity = 32

// FanoutSender is one live WebSocket's delivery channel. Order of
// delivery within a single sender matches enqueue order; no ordering is
// guaranteed across siblings.
type FanoutSender struct {
	id int
	ch chan []byte
}

// Send enqueues msg, reporting false if the channel is full (backpressure)
// or already closed.
func (f *FanoutSender) Send(msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case f.ch <- msg:
		return true
	default:
		return false
	}
}

// C exposes the receive side for the orchestrator's select loop.
func (f *FanoutSender) C() <-chan []byte { return f.ch }

func newFanoutSender(id int) *FanoutSender {
	return &FanoutSender{id: id, ch: make(chan []byte, fanoutCapacity)}
}

// ClientContext is the per-WebSocket mutable state described in §3. Its
// token fields are set under its own lock, by the orchestrator and by
// OAuth callback handlers acting out of band; StateToken is assigned
// directly by the owning connection's goroutine.
type ClientContext struct {
	mu sync.Mutex

	RemoteAddr       string
	StateToken       string
	TwitchToken      *twitch.UserToken
	StreamlabsToken  *streamlabs.UserToken
}

// NewClientContext builds a context for a freshly accepted WebSocket.
func NewClientContext(remoteAddr string) *ClientContext {
	return &ClientContext{RemoteAddr: remoteAddr}
}

// SetTwitchToken stores tok under the context's lock.
func (c *ClientContext) SetTwitchToken(tok *twitch.UserToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TwitchToken = tok
}

// SetStreamlabsToken stores tok under the context's lock.
func (c *ClientContext) SetStreamlabsToken(tok *streamlabs.UserToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StreamlabsToken = tok
}

// Snapshot returns a copy of the token pointers under lock, safe to read
// from the orchestrator's own goroutine.
func (c *ClientContext) Snapshot() (twitchTok *twitch.UserToken, streamlabsTok *streamlabs.UserToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TwitchToken, c.StreamlabsToken
}

// ClientEntry is the registry record for one state_token: every
// sibling's fanout sender, plus the upstream sessions constructed once
// for the first sibling and shared by every later one.
type ClientEntry struct {
	StateToken string

	// Context is the owning connection's Client Context: the one whose
	// tokens the upstream sessions were constructed from. Later siblings
	// read it to complete a cheap attach instead of re-hydrating from the
	// store.
	Context *ClientContext

	mu                sync.Mutex
	nextSenderID      int
	senders           map[int]*FanoutSender
	TwitchSession     *twitch.Session
	StreamlabsSession *streamlabs.Connection
}

// AddSender registers a new fanout sender for a sibling WebSocket and
// returns it.
func (e *ClientEntry) AddSender() *FanoutSender {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSenderID++
	s := newFanoutSender(e.nextSenderID)
	e.senders[s.id] = s
	return s
}

// RemoveSender drops a sibling's fanout sender and reports whether any
// siblings remain.
func (e *ClientEntry) RemoveSender(s *FanoutSender) (empty bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.senders, s.id)
	close(s.ch)
	return len(e.senders) == 0
}

// Broadcast writes msg to every currently live sender, in order. Send
// failures on individual senders are reported to the caller but do not
// stop the broadcast.
func (e *ClientEntry) Broadcast(msg []byte) (failed []*FanoutSender) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Sender ids increase with each join, so walking them in ascending
	// order visits senders in registration order.
	for id := 1; id <= e.nextSenderID; id++ {
		s, ok := e.senders[id]
		if !ok {
			continue
		}
		if !s.Send(msg) {
			failed = append(failed, s)
		}
	}
	return failed
}

// SenderCount reports the number of live siblings.
func (e *ClientEntry) SenderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.senders)
}

// Registry is the single process-wide state_token → ClientEntry table.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*ClientEntry
	logger  *slog.Logger
}

// New builds an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{entries: make(map[string]*ClientEntry), logger: logger}
}

// Lookup returns the entry for state without mutating the registry.
func (r *Registry) Lookup(state string) (*ClientEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[state]
	return e, ok
}

// Join attaches a new sibling fanout sender to state's Client Entry,
// creating the entry (and the upstream sessions, via makeSessions) if
// this is the first sibling to register. makeSessions is invoked at
// most once per Client Entry lifetime, satisfying invariant 2 of §8.
func (r *Registry) Join(state string, ctx *ClientContext, makeSessions func() (*twitch.Session, *streamlabs.Connection)) (*ClientEntry, *FanoutSender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, existed := r.entries[state]
	if !existed {
		twitchSession, streamlabsSession := makeSessions()
		entry = &ClientEntry{
			StateToken:        state,
			Context:           ctx,
			senders:           make(map[int]*FanoutSender),
			TwitchSession:     twitchSession,
			StreamlabsSession: streamlabsSession,
		}
		r.entries[state] = entry
		r.logger.Info("created client entry", "state_token", state)
	}

	sender := entry.AddSender()
	return entry, sender, !existed
}

// Leave removes sender from state's entry. If no siblings remain, the
// entry is removed from the registry and its upstream sessions are
// disconnected by the caller (the orchestrator owns that I/O).
func (r *Registry) Leave(state string, entry *ClientEntry, sender *FanoutSender) (empty bool) {
	empty = entry.RemoveSender(sender)
	if !empty {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[state]; ok && current == entry {
		delete(r.entries, state)
		r.logger.Info("removed client entry", "state_token", state)
	}
	return true
}

// Len reports the number of currently registered state tokens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
