package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	SessionID  string
	Name       string
	Host       Identity
	Status     Status
	Turn       string
	Version    uint64
	MaxPlayers int
	CreatedAt  time.Time
	StartedAt  *time.Time
	Players    []*Player
}

// Projection is the snapshot filtered for one viewer.
type Projection struct {
	SessionID string       `json:"session_id"`
	Name      string       `json:"name"`
	Status    Status       `json:"status"`
	Turn      string       `json:"turn"`
	Version   uint64       `json:"version"`
	StateHash string       `json:"state_hash"`
	Players   []PlayerView `json:"players"`
}

// Summary is the lobby-level description of a session.
type Summary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Host       string          `json:"host"`
	Status     Status          `json:"status"`
	Turn       string          `json:"turn,omitempty"`
	MaxPlayers int             `json:"max_players"`
	Players    []PlayerSummary `json:"players"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PlayerSummary is a player as listed in the lobby.
type PlayerSummary struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
	DeckName string `json:"deck_name,omitempty"`
}

// Details is the summary plus recent log history.
type Details struct {
	Summary
	Log []LogEvent `json:"log"`
}

// Project builds the view of viewerID: their own player in private form and
// every other player in public form.
func (s Snapshot) Project(viewerID string) (Projection, error) {
	found := false
	players := make([]PlayerView, len(s.Players))
	for i, p := range s.Players {
		if p.UserID == viewerID {
			players[i] = p.PrivateView()
			found = true
		} else {
			players[i] = p.PublicView()
		}
	}
	if !found {
		return Projection{}, fmt.Errorf("%w: %s", ErrViewerNotInSession, viewerID)
	}

	return Projection{
		SessionID: s.SessionID,
		Name:      s.Name,
		Status:    s.Status,
		Turn:      s.Turn,
		Version:   s.Version,
		StateHash: s.Checksum(),
		Players:   players,
	}, nil
}

// Summary returns the lobby description of the snapshot.
func (s Snapshot) Summary() Summary {
	players := make([]PlayerSummary, len(s.Players))
	for i, p := range s.Players {
		players[i] = PlayerSummary{UserID: p.UserID, Username: p.Username, Ready: p.Ready}
		if p.Deck != nil {
			players[i].DeckName = p.Deck.Name
		}
	}
	return Summary{
		ID:         s.SessionID,
		Name:       s.Name,
		Host:       s.Host.Username,
		Status:     s.Status,
		Turn:       s.Turn,
		MaxPlayers: s.MaxPlayers,
		Players:    players,
		CreatedAt:  s.CreatedAt,
	}
}

// Player returns the snapshot's copy of a player.
func (s Snapshot) Player(userID string) (*Player, bool) {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

// Checksum is a SHA-256 over the publicly visible state. Hidden information
// contributes only counts, so every viewer can compare the same value.
func (s Snapshot) Checksum() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "SESSION:%s|%s|%d\n", s.SessionID, s.Status, s.Version)
	fmt.Fprintf(&buf, "TURN:%s\n", s.Turn)

	// join order is significant, so players are written in slice order
	for _, p := range s.Players {
		fmt.Fprintf(&buf, "PLAYER:%s|%d|%t|%d|%d\n",
			p.UserID,
			p.Life,
			p.Ready,
			p.Zones[ZoneLibrary].Len(),
			p.Zones[ZoneHand].Len(),
		)
		for _, kind := range []ZoneKind{ZoneBattlefield, ZoneGraveyard, ZoneExile} {
			for _, c := range p.Zones[kind].cards {
				fmt.Fprintf(&buf, "  %s:%s|%s|%t|%g|%g\n",
					kind, c.ID, c.TemplateID, c.Tapped, c.Position.X, c.Position.Y)
			}
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
