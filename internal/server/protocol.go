package server

import (
	"encoding/json"
	"errors"

	"github.com/magefree/mage-duel-server/internal/broadcast"
	"github.com/magefree/mage-duel-server/internal/game"
)

// Client command types.
const (
	CmdIdentify      = "identify"
	CmdListSessions  = "list_sessions"
	CmdCreateSession = "create_session"
	CmdJoinSession   = "join_session"
	CmdLeaveSession  = "leave_session"
	CmdDeleteSession = "delete_session"
	CmdListDecks     = "list_decks"
	CmdSelectDeck    = "select_deck"
	CmdToggleReady   = "toggle_ready"
	CmdStartGame     = "start_game"
	CmdNextTurn      = "next_turn"
	CmdPlayCard      = "play_card"
	CmdMoveCard      = "move_card"
	CmdMoveZone      = "move_zone"
	CmdTapCard       = "tap_card"
	CmdChangeLife    = "change_life"
	CmdLookAtLibrary = "look_at_library"
	CmdDrawCards     = "draw_cards"
	CmdGetState      = "get_state"
	CmdGetDetails    = "get_details"
)

// Server event names.
const (
	EventIdentified     = "identified"
	EventSessionsList   = "sessions_list"
	EventSessionCreated = "session_created"
	EventSessionDetails = broadcast.EventSessionDetails
	EventGameState      = broadcast.EventGameState
	EventLog            = broadcast.EventLog
	EventLibraryCards   = "library_cards"
	EventDeckList       = "deck_list"
	EventAck            = "ack"
	EventError          = "error"
)

// ClientMessage is a command frame sent by a client.
type ClientMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is an event frame sent to a client.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

// AckPayload confirms a command that has no other direct reply.
type AckPayload struct {
	Request string `json:"request"`
	Result  any    `json:"result,omitempty"`
}

type identifyPayload struct {
	UserID string `json:"user_id"`
}

type createSessionPayload struct {
	Name string `json:"name"`
}

type selectDeckPayload struct {
	DeckID string `json:"deck_id"`
}

type cardPayload struct {
	CardID string `json:"card_id"`
}

type moveCardPayload struct {
	CardID string  `json:"card_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type moveZonePayload struct {
	CardID string `json:"card_id"`
	Zone   string `json:"zone"`
}

type tapCardPayload struct {
	CardID string `json:"card_id"`
	Tapped bool   `json:"tapped"`
}

type changeLifePayload struct {
	TargetID string `json:"target_id"`
	Amount   int    `json:"amount"`
}

type lookAtLibraryPayload struct {
	Count *int `json:"count"`
}

type drawCardsPayload struct {
	Count *int `json:"count"`
}

var (
	errMalformed    = errors.New("malformed message")
	errUnidentified = errors.New("connection has not identified")
	errNoSession    = errors.New("no session given")
	errUnknownType  = errors.New("unknown command")
)

// Error codes sent to clients.
const (
	CodeNotFound        = "not_found"
	CodeInvalidState    = "invalid_state"
	CodeNotInSession    = "viewer_not_in_session"
	CodeDependency      = "dependency"
	CodeInvalidArgument = "invalid_argument"
	CodeUnauthenticated = "unauthenticated"
	CodeInternal        = "internal"
)

// errorCode maps an error to the code reported to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errUnidentified):
		return CodeUnauthenticated
	case errors.Is(err, errMalformed), errors.Is(err, errNoSession), errors.Is(err, errUnknownType):
		return CodeInvalidArgument
	}
	switch game.Category(err) {
	case game.ErrNotFound:
		return CodeNotFound
	case game.ErrInvalidState:
		return CodeInvalidState
	case game.ErrViewerNotInSession:
		return CodeNotInSession
	case game.ErrDependency:
		return CodeDependency
	case game.ErrInvalidArgument:
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(errMalformed, err)
	}
	return nil
}
