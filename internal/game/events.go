package game

import "time"

// LogKind classifies a log entry.
type LogKind string

const (
	LogJoin        LogKind = "join"
	LogDeck        LogKind = "deck"
	LogReady       LogKind = "ready"
	LogStart       LogKind = "start"
	LogTurn        LogKind = "turn"
	LogPlayCard    LogKind = "play_card"
	LogMoveZone    LogKind = "move_zone"
	LogLife        LogKind = "life"
	LogLookLibrary LogKind = "look_library"
	LogDraw        LogKind = "draw"
)

// LogEvent is a human-readable record of one accepted action, sent to every
// member of the session.
type LogEvent struct {
	Kind     LogKind   `json:"kind"`
	Actor    string    `json:"actor,omitempty"`
	Target   string    `json:"target,omitempty"`
	CardID   string    `json:"card_id,omitempty"`
	CardName string    `json:"card_name,omitempty"`
	Zone     string    `json:"zone,omitempty"`
	Amount   int       `json:"amount,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// CommitKind tells the broadcaster what a commit should be delivered as.
type CommitKind int

const (
	// CommitSummary is a lobby change: members receive the session summary.
	CommitSummary CommitKind = iota
	// CommitState is an in-game change: members receive their own projection.
	CommitState
	// CommitLog carries log events only; no state changed.
	CommitLog
)

func (k CommitKind) String() string {
	switch k {
	case CommitSummary:
		return "summary"
	case CommitState:
		return "state"
	case CommitLog:
		return "log"
	default:
		return "unknown"
	}
}

// Commit describes one accepted operation. Snapshot is a deep copy taken
// while the session lock was held, so it can be projected from any goroutine.
type Commit struct {
	SessionID string
	Version   uint64
	Kind      CommitKind
	Snapshot  Snapshot
	Events    []LogEvent
}

// CommitHandler receives commits in the order the session accepted them. It
// is called with the session's write lock held and must not call back into
// the session.
type CommitHandler func(Commit)
