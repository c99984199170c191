// Package service is the command surface the connection layer calls. It
// resolves identities and decks through the directories, then applies the
// command to the session.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/magefree/mage-duel-server/internal/game"
	"go.uber.org/zap"
)

// UserDirectory resolves user ids to identities.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (game.Identity, error)
}

// DeckDirectory resolves stored decks.
type DeckDirectory interface {
	FindDeckByID(ctx context.Context, id string) (game.Deck, error)
	ListDecksByUser(ctx context.Context, userID string) ([]game.DeckRef, error)
}

// ConnectionContext is what a connection knows about itself: who it acts as
// and which session it is attached to.
type ConnectionContext struct {
	Identity  game.Identity
	SessionID string
}

// Identified reports whether the connection has resolved an identity.
func (c ConnectionContext) Identified() bool {
	return c.Identity.UserID != ""
}

// Service applies commands to sessions held by a game.Manager.
type Service struct {
	sessions *game.Manager
	users    UserDirectory
	decks    DeckDirectory
	logger   *zap.Logger
}

// New creates a Service.
func New(sessions *game.Manager, users UserDirectory, decks DeckDirectory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions: sessions,
		users:    users,
		decks:    decks,
		logger:   logger,
	}
}

// Identify resolves userID through the user directory.
func (s *Service) Identify(ctx context.Context, userID string) (game.Identity, error) {
	if userID == "" {
		return game.Identity{}, fmt.Errorf("%w: empty user id", game.ErrInvalidArgument)
	}
	id, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return game.Identity{}, lookupError(err)
	}
	return id, nil
}

// CreateSession opens a new session hosted by userID.
func (s *Service) CreateSession(ctx context.Context, userID, name string) (game.Summary, error) {
	host, err := s.Identify(ctx, userID)
	if err != nil {
		return game.Summary{}, err
	}
	sess, err := s.sessions.CreateSession(name, host)
	if err != nil {
		return game.Summary{}, err
	}
	return sess.Summary(), nil
}

// JoinSession adds userID to a waiting session.
func (s *Service) JoinSession(ctx context.Context, sessionID, userID string) (game.Summary, error) {
	id, err := s.Identify(ctx, userID)
	if err != nil {
		return game.Summary{}, err
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return game.Summary{}, err
	}
	if err := sess.Join(id); err != nil {
		return game.Summary{}, err
	}
	s.logger.Info("player joined",
		zap.String("session_id", sessionID),
		zap.String("player", id.Username),
	)
	return sess.Summary(), nil
}

// IsPlayer reports whether userID already plays in the session.
func (s *Service) IsPlayer(sessionID, userID string) (bool, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return false, err
	}
	return sess.IsPlayer(userID), nil
}

// ToggleReady flips the readiness of userID and returns the new value.
func (s *Service) ToggleReady(sessionID, userID string) (bool, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return false, err
	}
	return sess.ToggleReady(userID)
}

// SelectDeck binds the stored deck deckID to userID's player. Decks owned by
// someone else are reported as not found.
func (s *Service) SelectDeck(ctx context.Context, sessionID, userID, deckID string) (game.DeckRef, error) {
	deck, err := s.decks.FindDeckByID(ctx, deckID)
	if err != nil {
		return game.DeckRef{}, lookupError(err)
	}
	if deck.OwnerID != "" && deck.OwnerID != userID {
		return game.DeckRef{}, fmt.Errorf("%w: %s", game.ErrDeckNotFound, deckID)
	}

	sess, err := s.session(sessionID)
	if err != nil {
		return game.DeckRef{}, err
	}
	if err := sess.BindDeck(userID, deck); err != nil {
		return game.DeckRef{}, err
	}
	return game.DeckRef{ID: deck.ID, Name: deck.Name, Size: len(deck.Cards)}, nil
}

// StartGame starts the session on behalf of one of its players.
func (s *Service) StartGame(sessionID, userID string) error {
	sess, err := s.member(sessionID, userID)
	if err != nil {
		return err
	}
	if err := sess.Start(); err != nil {
		return err
	}
	s.logger.Info("game started",
		zap.String("session_id", sessionID),
		zap.Int("players", sess.PlayerCount()),
	)
	return nil
}

// NextTurn passes the turn and returns the user id now holding it.
func (s *Service) NextTurn(sessionID, userID string) (string, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return "", err
	}
	return sess.NextTurn(userID)
}

// PlayCard moves a card from the player's hand to the battlefield.
func (s *Service) PlayCard(sessionID, userID, cardID string) (game.CardView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return game.CardView{}, err
	}
	return sess.PlayCard(userID, cardID)
}

// MoveCard repositions a battlefield card.
func (s *Service) MoveCard(sessionID, userID, cardID string, pos game.Position) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return sess.MoveCard(userID, cardID, pos)
}

// MoveZone moves a card to the named zone and returns where it came from.
func (s *Service) MoveZone(sessionID, userID, cardID, zone string) (game.ZoneKind, error) {
	dest, err := game.ParseZone(zone)
	if err != nil {
		return 0, err
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.MoveZone(userID, cardID, dest)
}

// TapCard sets the tap state of a battlefield card.
func (s *Service) TapCard(sessionID, userID, cardID string, tapped bool) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return sess.TapCard(userID, cardID, tapped)
}

// ChangeLife changes targetID's life total on behalf of actorID. An empty
// target means the actor.
func (s *Service) ChangeLife(sessionID, actorID, targetID string, amount int) (int, error) {
	if targetID == "" {
		targetID = actorID
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.ChangeLife(targetID, actorID, amount)
}

// LookAtLibrary returns the top count cards of the player's library, or the
// whole library when count is nil.
func (s *Service) LookAtLibrary(sessionID, userID string, count *int) ([]game.CardView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.LookAtLibrary(userID, count)
}

// DrawCards draws up to count cards and returns how many were drawn.
func (s *Service) DrawCards(sessionID, userID string, count int) (int, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.DrawCards(userID, count)
}

// GetProjection returns the session as seen by userID.
func (s *Service) GetProjection(sessionID, userID string) (game.Projection, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return game.Projection{}, err
	}
	return sess.Project(userID)
}

// GetDetails returns the session summary with its recent log.
func (s *Service) GetDetails(sessionID string) (game.Details, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return game.Details{}, err
	}
	return sess.Details(), nil
}

// ListSessions returns every live session, oldest first.
func (s *Service) ListSessions() []game.Summary {
	return s.sessions.ListSessions()
}

// DeleteSession removes a session. Only its host may do this.
func (s *Service) DeleteSession(sessionID, userID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	if sess.Host.UserID != userID {
		return game.ErrNotHost
	}
	s.sessions.RemoveSession(sessionID)
	return nil
}

// RemoveSession drops a session without an ownership check. The connection
// layer uses it once nobody is attached to the session any more.
func (s *Service) RemoveSession(sessionID string) bool {
	return s.sessions.RemoveSession(sessionID)
}

// ListDecks returns the decks stored for userID.
func (s *Service) ListDecks(ctx context.Context, userID string) ([]game.DeckRef, error) {
	decks, err := s.decks.ListDecksByUser(ctx, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	return decks, nil
}

func (s *Service) session(id string) (*game.Session, error) {
	sess, ok := s.sessions.GetSession(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *Service) member(sessionID, userID string) (*game.Session, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsPlayer(userID) {
		return nil, game.ErrPlayerNotFound
	}
	return sess, nil
}

// lookupError keeps directory not-found errors and reports anything else as
// a dependency failure.
func lookupError(err error) error {
	if errors.Is(err, game.ErrNotFound) || errors.Is(err, game.ErrDependency) {
		return err
	}
	return fmt.Errorf("%w: %w", game.ErrDependency, err)
}
