// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/mirror/session"
	"github.com/bureau-foundation/mirror/transport"
)

// GroupOptions configures a Group.
type GroupOptions struct {
	// Local is the document new conversations start from.
	Local Document

	// SeedOnOpen sends the local document to each new conversation.
	SeedOnOpen bool

	Logger *slog.Logger
}

// ChangeKind distinguishes Group changes.
type ChangeKind int

const (
	ConversationJoined ChangeKind = iota + 1
	ConversationUpdated
	ConversationLeft
)

func (k ChangeKind) String() string {
	switch k {
	case ConversationJoined:
		return "joined"
	case ConversationUpdated:
		return "updated"
	case ConversationLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Conversation is the document mirrored with one remote peer over one
// connection.
type Conversation struct {
	ID       string
	Peer     string
	Document Document
}

// Change reports a conversation joining, receiving a document, or
// leaving.
type Change struct {
	Kind         ChangeKind
	Conversation Conversation
}

// Group runs one Channel per connection. Conversations are independent:
// a document received from one peer is never forwarded to another.
// Local edits made through Push go to every conversation.
type Group struct {
	seedOnOpen bool
	logger     *slog.Logger

	mu       sync.Mutex
	local    Document
	members  map[string]*member
	sequence uint64

	listenersMu  sync.Mutex
	listeners    map[uint64]func(Change)
	nextListener uint64
}

type member struct {
	channel *Channel
	joined  uint64
	touched uint64

	// ready is closed once the joined change has been delivered, so no
	// update for the conversation is reported before it.
	ready chan struct{}
}

// NewGroup returns a Group with no conversations.
func NewGroup(options GroupOptions) *Group {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		seedOnOpen: options.SeedOnOpen,
		logger:     logger,
		local:      options.Local.Clone(),
		members:    make(map[string]*member),
		listeners:  make(map[uint64]func(Change)),
	}
}

// Follow keeps the Group in step with manager: every connection it
// holds now or adds later gets a Channel, and every removed connection
// loses its Channel and its document. The returned function stops
// following and waits for in-flight events to finish.
func (g *Group) Follow(manager *session.Manager) (stop func()) {
	events, unsubscribe := manager.Subscribe()
	for _, conn := range manager.Connections() {
		g.Add(conn)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			switch event.Kind {
			case session.ConnectionAdded:
				g.Add(event.Conn)
			case session.ConnectionRemoved:
				g.Remove(event.Conn.ID())
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

// Add attaches a Channel to conn, or returns the one already attached.
func (g *Group) Add(conn transport.Conn) *Channel {
	g.mu.Lock()
	if existing, ok := g.members[conn.ID()]; ok {
		g.mu.Unlock()
		return existing.channel
	}
	g.sequence++
	entry := &member{joined: g.sequence, touched: g.sequence, ready: make(chan struct{})}
	entry.channel = Attach(conn, Options{
		Initial:    g.local,
		SeedOnOpen: g.seedOnOpen,
		OnChange:   func(doc Document) { g.updated(conn, doc) },
		Logger:     g.logger,
	})
	g.members[conn.ID()] = entry
	conversation := conversationOf(entry)
	g.mu.Unlock()

	g.logger.Info("conversation joined", "peer", conn.RemotePeer(), "connection", conn.ID())
	g.notify(Change{Kind: ConversationJoined, Conversation: conversation})
	close(entry.ready)
	return entry.channel
}

// Remove detaches and forgets the conversation over connection id.
func (g *Group) Remove(id string) {
	g.mu.Lock()
	entry, ok := g.members[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.members, id)
	g.mu.Unlock()

	entry.channel.Detach()

	g.logger.Info("conversation left", "peer", entry.channel.Conn().RemotePeer(), "connection", id)
	g.notify(Change{Kind: ConversationLeft, Conversation: conversationOf(entry)})
}

func (g *Group) updated(conn transport.Conn, doc Document) {
	g.mu.Lock()
	entry, ok := g.members[conn.ID()]
	if !ok {
		g.mu.Unlock()
		return
	}
	g.sequence++
	entry.touched = g.sequence
	g.mu.Unlock()

	<-entry.ready
	g.notify(Change{Kind: ConversationUpdated, Conversation: Conversation{
		ID:       conn.ID(),
		Peer:     conn.RemotePeer(),
		Document: doc,
	}})
}

// Push makes doc the local document and sends it to every
// conversation.
func (g *Group) Push(doc Document) error {
	g.mu.Lock()
	g.local = doc.Clone()
	channels := make([]*Channel, 0, len(g.members))
	for _, entry := range g.members {
		channels = append(channels, entry.channel)
	}
	g.mu.Unlock()

	var errs []error
	for _, channel := range channels {
		if err := channel.Push(doc); err != nil && !errors.Is(err, ErrDetached) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Local returns the document last pushed, or the initial one.
func (g *Group) Local() Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.local.Clone()
}

// Active returns the document of the conversation that most recently
// joined or received an update, or the local document when there are
// no conversations.
func (g *Group) Active() Document {
	g.mu.Lock()
	defer g.mu.Unlock()

	var latest *member
	for _, entry := range g.members {
		if latest == nil || entry.touched > latest.touched {
			latest = entry
		}
	}
	if latest == nil {
		return g.local.Clone()
	}
	return latest.channel.State()
}

// Conversations returns every conversation in the order it joined.
func (g *Group) Conversations() []Conversation {
	g.mu.Lock()
	entries := make([]*member, 0, len(g.members))
	for _, entry := range g.members {
		entries = append(entries, entry)
	}
	g.mu.Unlock()

	slices.SortFunc(entries, func(a, b *member) int {
		return cmp.Compare(a.joined, b.joined)
	})
	conversations := make([]Conversation, len(entries))
	for i, entry := range entries {
		conversations[i] = conversationOf(entry)
	}
	return conversations
}

// Conversation returns the conversation over connection id.
func (g *Group) Conversation(id string) (Conversation, bool) {
	g.mu.Lock()
	entry, ok := g.members[id]
	g.mu.Unlock()
	if !ok {
		return Conversation{}, false
	}
	return conversationOf(entry), true
}

// OnChange registers fn for every Change. Changes from one
// conversation arrive in order; changes from different conversations
// may be delivered concurrently. The returned function unregisters fn.
func (g *Group) OnChange(fn func(Change)) func() {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()

	g.nextListener++
	id := g.nextListener
	g.listeners[id] = fn
	return func() {
		g.listenersMu.Lock()
		defer g.listenersMu.Unlock()
		delete(g.listeners, id)
	}
}

func (g *Group) notify(change Change) {
	g.listenersMu.Lock()
	listeners := make([]func(Change), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func conversationOf(entry *member) Conversation {
	conn := entry.channel.Conn()
	return Conversation{
		ID:       conn.ID(),
		Peer:     conn.RemotePeer(),
		Document: entry.channel.State(),
	}
}
