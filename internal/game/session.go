package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the session lifecycle state. It only ever moves from waiting to
// started.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusStarted Status = "started"
)

// Rules are the table settings fixed at session creation.
type Rules struct {
	StartingLife int
	OpeningHand  int
	MaxPlayers   int
	MinPlayers   int
	LogHistory   int
}

// DefaultRules returns the two-player defaults.
func DefaultRules() Rules {
	return Rules{
		StartingLife: 40,
		OpeningHand:  7,
		MaxPlayers:   2,
		MinPlayers:   2,
		LogHistory:   200,
	}
}

// Session is one game between up to Rules.MaxPlayers players. All exported
// methods are safe for concurrent use; mutations are serialized by mu.
type Session struct {
	ID        string
	Name      string
	Host      Identity
	CreatedAt time.Time

	rules Rules

	mu        sync.RWMutex
	status    Status
	turn      string
	startedAt *time.Time
	players   []*Player
	version   uint64
	history   []LogEvent

	rng      *rand.Rand
	newID    func() string
	now      func() time.Time
	onCommit CommitHandler
}

// SessionOption customises a Session at construction.
type SessionOption func(*Session)

// WithRand sets the random source used for shuffling.
func WithRand(rng *rand.Rand) SessionOption {
	return func(s *Session) { s.rng = rng }
}

// WithIDGenerator sets the generator for card instance ids.
func WithIDGenerator(fn func() string) SessionOption {
	return func(s *Session) { s.newID = fn }
}

// WithClock overrides time.Now for log timestamps.
func WithClock(fn func() time.Time) SessionOption {
	return func(s *Session) { s.now = fn }
}

// WithCommitHandler registers the receiver of accepted commits.
func WithCommitHandler(h CommitHandler) SessionOption {
	return func(s *Session) { s.onCommit = h }
}

// NewSession creates an empty waiting session.
func NewSession(id, name string, host Identity, rules Rules, opts ...SessionOption) *Session {
	s := &Session{
		ID:     id,
		Name:   name,
		Host:   host,
		rules:  rules,
		status: StatusWaiting,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = newRand()
	}
	s.CreatedAt = s.now()
	return s
}

func newRand() *rand.Rand {
	var seed [16]byte
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])))
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Turn returns the user id of the active player, empty before start.
func (s *Session) Turn() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// PlayerCount returns the number of joined players.
func (s *Session) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// IsPlayer reports whether userID has joined the session.
func (s *Session) IsPlayer(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPlayer(userID) != nil
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Project returns the state as seen by viewerID.
func (s *Session) Project(viewerID string) (Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked().Project(viewerID)
}

// Summary returns the lobby description.
func (s *Session) Summary() Summary {
	return s.Snapshot().Summary()
}

// Details returns the summary with the retained log history.
func (s *Session) Details() Details {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Details{
		Summary: s.snapshotLocked().Summary(),
		Log:     append([]LogEvent(nil), s.history...),
	}
}

// Join appends a player. Joining is only possible while waiting.
func (s *Session) Join(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return ErrGameAlreadyStarted
	}
	if s.findPlayer(id.UserID) != nil {
		return ErrAlreadyJoined
	}
	if len(s.players) >= s.rules.MaxPlayers {
		return ErrSessionFull
	}

	s.players = append(s.players, newPlayer(id, s.rules.StartingLife))
	s.commitLocked(CommitSummary, s.event(LogJoin, id.Username, fmt.Sprintf("%s joined the session", id.Username)))
	return nil
}

// BindDeck binds deck to the player. Only possible while waiting.
func (s *Session) BindDeck(userID string, deck Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return ErrGameAlreadyStarted
	}
	p := s.findPlayer(userID)
	if p == nil {
		return ErrPlayerNotFound
	}
	if err := p.BindDeck(deck, s.newID, s.rng); err != nil {
		return err
	}

	ev := s.event(LogDeck, p.Username, fmt.Sprintf("%s selected the deck %s", p.Username, deck.Name))
	s.commitLocked(CommitSummary, ev)
	return nil
}

// ToggleReady flips the player's readiness and returns the new value.
func (s *Session) ToggleReady(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return false, ErrGameAlreadyStarted
	}
	p := s.findPlayer(userID)
	if p == nil {
		return false, ErrPlayerNotFound
	}
	ready, err := p.ToggleReady()
	if err != nil {
		return false, err
	}

	msg := fmt.Sprintf("%s is ready", p.Username)
	if !ready {
		msg = fmt.Sprintf("%s is no longer ready", p.Username)
	}
	s.commitLocked(CommitSummary, s.event(LogReady, p.Username, msg))
	return ready, nil
}

// Start moves the session to started once every player has a deck and is
// ready: the first player takes the turn and everyone shuffles and draws an
// opening hand. On failure nothing changes.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return ErrGameAlreadyStarted
	}
	if len(s.players) < s.rules.MinPlayers {
		return fmt.Errorf("%w: need %d players, have %d", ErrNotReady, s.rules.MinPlayers, len(s.players))
	}
	for _, p := range s.players {
		if p.Deck == nil || !p.Ready {
			return fmt.Errorf("%w: waiting for %s", ErrNotReady, p.Username)
		}
	}

	now := s.now()
	s.status = StatusStarted
	s.startedAt = &now
	s.turn = s.players[0].UserID
	for _, p := range s.players {
		p.Shuffle(s.rng)
		for i := 0; i < s.rules.OpeningHand; i++ {
			p.Draw()
		}
	}

	s.commitLocked(CommitState, s.event(LogStart, "", "The game begins!"))
	return nil
}

// NextTurn passes the turn to the next player in join order.
func (s *Session) NextTurn(actorID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return "", err
	}

	next := s.players[0]
	for i, p := range s.players {
		if p.UserID == s.turn {
			next = s.players[(i+1)%len(s.players)]
			break
		}
	}
	s.turn = next.UserID

	ev := s.event(LogTurn, actor.Username, fmt.Sprintf("It is now %s's turn", next.Username))
	ev.Target = next.Username
	s.commitLocked(CommitState, ev)
	return next.UserID, nil
}

func (s *Session) findPlayer(userID string) *Player {
	for _, p := range s.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// actorLocked resolves a player for an in-game action.
func (s *Session) actorLocked(userID string) (*Player, error) {
	if s.status != StatusStarted {
		return nil, ErrGameNotStarted
	}
	p := s.findPlayer(userID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

func (s *Session) event(kind LogKind, actor, msg string) LogEvent {
	return LogEvent{Kind: kind, Actor: actor, Message: msg, At: s.now()}
}

func (s *Session) snapshotLocked() Snapshot {
	players := make([]*Player, len(s.players))
	for i, p := range s.players {
		players[i] = p.clone()
	}
	snap := Snapshot{
		SessionID:  s.ID,
		Name:       s.Name,
		Host:       s.Host,
		Status:     s.status,
		Turn:       s.turn,
		Version:    s.version,
		MaxPlayers: s.rules.MaxPlayers,
		CreatedAt:  s.CreatedAt,
		Players:    players,
	}
	if s.startedAt != nil {
		t := *s.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// commitLocked records events and hands the commit to the handler. State
// commits bump the version; log-only commits do not.
func (s *Session) commitLocked(kind CommitKind, events ...LogEvent) {
	if kind != CommitLog {
		s.version++
	}

	s.history = append(s.history, events...)
	if limit := s.rules.LogHistory; limit >= 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}

	if s.onCommit == nil {
		return
	}
	s.onCommit(Commit{
		SessionID: s.ID,
		Version:   s.version,
		Kind:      kind,
		Snapshot:  s.snapshotLocked(),
		Events:    events,
	})
}
