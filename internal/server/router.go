package server

import (
	"context"
	"time"

	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/magefree/mage-duel-server/internal/service"
	"go.uber.org/zap"
)

// Router turns client commands into service calls. Accepted mutations reach
// the other players through the broadcaster; the requester gets a direct
// reply or one error event.
type Router struct {
	svc     *service.Service
	hub     *Hub
	logger  *zap.Logger
	timeout time.Duration
}

// NewRouter creates a Router. When removeEmpty is set, a session is removed
// as soon as no connection is attached to it any more.
func NewRouter(svc *service.Service, hub *Hub, timeout time.Duration, removeEmpty bool, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{svc: svc, hub: hub, logger: logger, timeout: timeout}
	if removeEmpty {
		hub.OnRoomEmpty(r.abandon)
	}
	return r
}

// Handle runs one command for c.
func (r *Router) Handle(ctx context.Context, c *Client, msg ClientMessage) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.dispatch(ctx, c, msg); err != nil {
		r.logger.Debug("command rejected",
			zap.String("conn_id", c.id),
			zap.String("type", msg.Type),
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
		_ = c.emit(EventError, ErrorPayload{
			Code:    errorCode(err),
			Message: err.Error(),
			Request: msg.Type,
		})
	}
}

func (r *Router) dispatch(ctx context.Context, c *Client, msg ClientMessage) error {
	switch msg.Type {
	case CmdIdentify:
		var p identifyPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		return r.Identify(ctx, c, p.UserID)
	case CmdListSessions:
		return c.emit(EventSessionsList, r.svc.ListSessions())
	}

	cc := c.Context()
	if !cc.Identified() {
		return errUnidentified
	}
	userID := cc.Identity.UserID

	switch msg.Type {
	case CmdCreateSession:
		var p createSessionPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		sum, err := r.svc.CreateSession(ctx, userID, p.Name)
		if err != nil {
			return err
		}
		r.hub.Attach(c, sum.ID)
		r.publishSessions()
		return c.emit(EventSessionCreated, sum)

	case CmdListDecks:
		decks, err := r.svc.ListDecks(ctx, userID)
		if err != nil {
			return err
		}
		return c.emit(EventDeckList, decks)

	case CmdLeaveSession:
		r.hub.Detach(c)
		return r.ack(c, msg, nil)
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = cc.SessionID
	}
	if sessionID == "" {
		return errNoSession
	}

	switch msg.Type {
	case CmdJoinSession:
		return r.join(ctx, c, sessionID, userID)

	case CmdDeleteSession:
		if err := r.svc.DeleteSession(sessionID, userID); err != nil {
			return err
		}
		r.hub.EvictRoom(sessionID)
		r.logger.Info("session deleted by host",
			zap.String("session_id", sessionID),
			zap.String("player", cc.Identity.Username),
		)
		r.publishSessions()
		return r.ack(c, msg, nil)

	case CmdSelectDeck:
		var p selectDeckPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		ref, err := r.svc.SelectDeck(ctx, sessionID, userID, p.DeckID)
		if err != nil {
			return err
		}
		return r.ack(c, msg, ref)

	case CmdToggleReady:
		ready, err := r.svc.ToggleReady(sessionID, userID)
		if err != nil {
			return err
		}
		return r.ack(c, msg, map[string]bool{"ready": ready})

	case CmdStartGame:
		if err := r.svc.StartGame(sessionID, userID); err != nil {
			return err
		}
		r.publishSessions()
		return r.ack(c, msg, nil)

	case CmdNextTurn:
		turn, err := r.svc.NextTurn(sessionID, userID)
		if err != nil {
			return err
		}
		return r.ack(c, msg, map[string]string{"turn": turn})

	case CmdPlayCard:
		var p cardPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		card, err := r.svc.PlayCard(sessionID, userID, p.CardID)
		if err != nil {
			return err
		}
		return r.ack(c, msg, card)

	case CmdMoveCard:
		var p moveCardPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		if err := r.svc.MoveCard(sessionID, userID, p.CardID, game.Position{X: p.X, Y: p.Y}); err != nil {
			return err
		}
		return r.ack(c, msg, nil)

	case CmdMoveZone:
		var p moveZonePayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		from, err := r.svc.MoveZone(sessionID, userID, p.CardID, p.Zone)
		if err != nil {
			return err
		}
		return r.ack(c, msg, map[string]string{"from": from.String()})

	case CmdTapCard:
		var p tapCardPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		if err := r.svc.TapCard(sessionID, userID, p.CardID, p.Tapped); err != nil {
			return err
		}
		return r.ack(c, msg, nil)

	case CmdChangeLife:
		var p changeLifePayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		life, err := r.svc.ChangeLife(sessionID, userID, p.TargetID, p.Amount)
		if err != nil {
			return err
		}
		return r.ack(c, msg, map[string]int{"life": life})

	case CmdLookAtLibrary:
		var p lookAtLibraryPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		cards, err := r.svc.LookAtLibrary(sessionID, userID, p.Count)
		if err != nil {
			return err
		}
		return c.emit(EventLibraryCards, cards)

	case CmdDrawCards:
		p := drawCardsPayload{}
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		count := 1
		if p.Count != nil {
			count = *p.Count
		}
		drawn, err := r.svc.DrawCards(sessionID, userID, count)
		if err != nil {
			return err
		}
		return r.ack(c, msg, map[string]int{"drawn": drawn})

	case CmdGetState:
		proj, err := r.svc.GetProjection(sessionID, userID)
		if err != nil {
			return err
		}
		return c.emit(EventGameState, proj)

	case CmdGetDetails:
		details, err := r.svc.GetDetails(sessionID)
		if err != nil {
			return err
		}
		return c.emit(EventSessionDetails, details)
	}

	return errUnknownType
}

// Identify resolves userID and binds it to the connection.
func (r *Router) Identify(ctx context.Context, c *Client, userID string) error {
	id, err := r.svc.Identify(ctx, userID)
	if err != nil {
		return err
	}
	c.setIdentity(id)
	r.logger.Info("connection identified",
		zap.String("conn_id", c.id),
		zap.String("player", id.Username),
	)
	if err := c.emit(EventIdentified, id); err != nil {
		return err
	}
	return c.emit(EventSessionsList, r.svc.ListSessions())
}

// join attaches c to the session, adding the user as a player unless they
// already are one, in which case this is a reconnect.
func (r *Router) join(ctx context.Context, c *Client, sessionID, userID string) error {
	member, err := r.svc.IsPlayer(sessionID, userID)
	if err != nil {
		return err
	}
	if !member {
		if _, err := r.svc.JoinSession(ctx, sessionID, userID); err != nil {
			return err
		}
		r.publishSessions()
	}
	r.hub.Attach(c, sessionID)

	details, err := r.svc.GetDetails(sessionID)
	if err != nil {
		return err
	}
	if err := c.emit(EventSessionDetails, details); err != nil {
		return err
	}
	if details.Status != game.StatusStarted {
		return nil
	}
	proj, err := r.svc.GetProjection(sessionID, userID)
	if err != nil {
		return err
	}
	return c.emit(EventGameState, proj)
}

// abandon removes a session nobody is attached to.
func (r *Router) abandon(sessionID string) {
	if !r.svc.RemoveSession(sessionID) {
		return
	}
	r.logger.Info("removed abandoned session", zap.String("session_id", sessionID))
	r.publishSessions()
}

func (r *Router) publishSessions() {
	r.hub.BroadcastAll(EventSessionsList, r.svc.ListSessions())
}

func (r *Router) ack(c *Client, msg ClientMessage, result any) error {
	return c.emit(EventAck, AckPayload{Request: msg.Type, Result: result})
}
