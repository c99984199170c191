package game

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	alice = Identity{UserID: "u-alice", Username: "alice"}
	bob   = Identity{UserID: "u-bob", Username: "bob"}
	carol = Identity{UserID: "u-carol", Username: "carol"}
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 1337))
}

func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func testDeck(name string, size int) Deck {
	cards := make([]CardTemplate, size)
	for i := range cards {
		cards[i] = CardTemplate{
			TemplateID: fmt.Sprintf("%s-tmpl-%d", name, i),
			Name:       fmt.Sprintf("%s card %d", name, i),
			ImageURL:   fmt.Sprintf("https://img.example/%s/%d.jpg", name, i),
		}
	}
	return Deck{ID: "deck-" + name, Name: name, Cards: cards}
}

// commitRecorder collects commits in arrival order.
type commitRecorder struct {
	mu      sync.Mutex
	commits []Commit
}

func (r *commitRecorder) handle(c Commit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, c)
}

func (r *commitRecorder) all() []Commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Commit(nil), r.commits...)
}

func (r *commitRecorder) last(t *testing.T) Commit {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all, "no commit recorded")
	return all[len(all)-1]
}

func newTestSession(t *testing.T, rec *commitRecorder) *Session {
	t.Helper()
	opts := []SessionOption{
		WithRand(testRand()),
		WithIDGenerator(seqIDs("card")),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}
	if rec != nil {
		opts = append(opts, WithCommitHandler(rec.handle))
	}
	s := NewSession("sess-1", "Duel", alice, DefaultRules(), opts...)
	require.NoError(t, s.Join(alice))
	return s
}

// newStartedSession returns a started alice-vs-bob session with 40-card decks.
func newStartedSession(t *testing.T, rec *commitRecorder) *Session {
	t.Helper()
	s := newTestSession(t, rec)
	require.NoError(t, s.Join(bob))
	require.NoError(t, s.BindDeck(alice.UserID, testDeck("alice", 40)))
	require.NoError(t, s.BindDeck(bob.UserID, testDeck("bob", 40)))
	_, err := s.ToggleReady(alice.UserID)
	require.NoError(t, err)
	_, err = s.ToggleReady(bob.UserID)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

// allCardIDs collects every instance id across a player's zones.
func allCardIDs(p *Player) []string {
	var ids []string
	for i := range p.Zones {
		for _, c := range p.Zones[i].cards {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// requirePartition checks that the player's zones hold exactly want, each once.
func requirePartition(t *testing.T, p *Player, want []string) {
	t.Helper()
	seen := make(map[string]int)
	for _, id := range allCardIDs(p) {
		seen[id]++
	}
	for id, n := range seen {
		require.Equalf(t, 1, n, "card %s appears in %d zones", id, n)
	}
	require.ElementsMatch(t, want, allCardIDs(p))
}
