// Package broadcast fans accepted session commits out to the connections
// watching each session.
package broadcast

import (
	"sync"

	"github.com/magefree/mage-duel-server/internal/game"
	"go.uber.org/zap"
)

// Event names pushed to clients.
const (
	EventGameState      = "game_state"
	EventSessionDetails = "session_details"
	EventLog            = "log"
)

// Rooms enumerates the connections attached to a session.
type Rooms interface {
	// MembersOf returns the connection ids currently attached to the session.
	MembersOf(sessionID string) []string
	// IdentityOf returns the user id a connection acts as.
	IdentityOf(connID string) (string, bool)
}

// Sender delivers events to connections.
type Sender interface {
	Send(connID, event string, payload any) error
	SendToSession(sessionID, event string, payload any)
}

// Broadcaster delivers commits in the order sessions accepted them. Each
// session with pending commits has one draining goroutine; sessions do not
// wait on each other.
type Broadcaster struct {
	rooms  Rooms
	sender Sender
	logger *zap.Logger

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
	wg     sync.WaitGroup
}

type queue struct {
	pending []game.Commit
	running bool
}

// New creates a Broadcaster.
func New(rooms Rooms, sender Sender, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		rooms:  rooms,
		sender: sender,
		logger: logger,
		queues: make(map[string]*queue),
	}
}

// HandleCommit queues c for delivery. It never blocks on the network and is
// meant to be installed as the sessions' game.CommitHandler.
func (b *Broadcaster) HandleCommit(c game.Commit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Debug("commit dropped after close", zap.String("session_id", c.SessionID))
		return
	}

	q, ok := b.queues[c.SessionID]
	if !ok {
		q = &queue{}
		b.queues[c.SessionID] = q
	}
	q.pending = append(q.pending, c)
	if !q.running {
		q.running = true
		b.wg.Add(1)
		go b.drain(c.SessionID, q)
	}
}

// drain delivers q's commits until it is empty, then retires the queue.
func (b *Broadcaster) drain(sessionID string, q *queue) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(b.queues, sessionID)
			b.mu.Unlock()
			return
		}
		c := q.pending[0]
		q.pending[0] = game.Commit{}
		q.pending = q.pending[1:]
		b.mu.Unlock()

		b.deliver(c)
	}
}

// Close stops accepting commits and waits for queued ones to be delivered.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broadcaster) deliver(c game.Commit) {
	switch c.Kind {
	case game.CommitSummary:
		b.sender.SendToSession(c.SessionID, EventSessionDetails, c.Snapshot.Summary())
	case game.CommitState:
		b.Project(c.SessionID, c.Snapshot)
	}

	for _, ev := range c.Events {
		b.sender.SendToSession(c.SessionID, EventLog, ev)
	}
}

// Project sends each connection attached to the session its own view of
// snap. A connection that cannot be projected or written to is logged and
// skipped; the others still receive their view.
func (b *Broadcaster) Project(sessionID string, snap game.Snapshot) {
	for _, connID := range b.rooms.MembersOf(sessionID) {
		userID, ok := b.rooms.IdentityOf(connID)
		if !ok {
			b.logger.Warn("connection has no identity",
				zap.String("session_id", sessionID),
				zap.String("conn_id", connID),
			)
			continue
		}

		proj, err := snap.Project(userID)
		if err != nil {
			b.logger.Warn("projection failed",
				zap.String("session_id", sessionID),
				zap.String("conn_id", connID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		if err := b.sender.Send(connID, EventGameState, proj); err != nil {
			b.logger.Warn("send failed",
				zap.String("session_id", sessionID),
				zap.String("conn_id", connID),
				zap.String("event", EventGameState),
				zap.Error(err),
			)
		}
	}
}
