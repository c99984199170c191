package game

import (
	"math"
	"math/rand/v2"
)

// Identity is the resolved user a connection acts as.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Deck is a deck list as stored in the directory.
type Deck struct {
	ID      string
	Name    string
	OwnerID string
	Cards   []CardTemplate
}

// DeckRef records which deck a player bound.
type DeckRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Player is one participant's zones, life total and readiness.
type Player struct {
	Identity
	Deck  *DeckRef
	Zones Zones
	Life  int
	Ready bool
}

// PlayerView is a player as seen by one viewer. Hand is nil in public views.
type PlayerView struct {
	UserID       string     `json:"user_id"`
	Username     string     `json:"username"`
	Life         int        `json:"life"`
	Ready        bool       `json:"ready"`
	DeckName     string     `json:"deck_name,omitempty"`
	LibraryCount int        `json:"library_count"`
	HandCount    int        `json:"hand_count"`
	Hand         []CardView `json:"hand"`
	Battlefield  []CardView `json:"battlefield"`
	Graveyard    []CardView `json:"graveyard"`
	Exile        []CardView `json:"exile"`
}

func newPlayer(id Identity, life int) *Player {
	return &Player{Identity: id, Life: life}
}

// BindDeck instantiates one card per deck entry, replaces the library with
// them and shuffles. Any cards from a previously bound deck are discarded.
func (p *Player) BindDeck(deck Deck, newID func() string, rng *rand.Rand) error {
	if len(deck.Cards) == 0 {
		return ErrDeckBinding
	}

	library := make([]*Card, len(deck.Cards))
	for i, tmpl := range deck.Cards {
		library[i] = newCard(newID(), tmpl)
	}

	p.Zones = Zones{}
	p.Zones[ZoneLibrary].reset(library)
	p.Deck = &DeckRef{ID: deck.ID, Name: deck.Name, Size: len(deck.Cards)}
	p.Shuffle(rng)
	return nil
}

// Shuffle applies a Fisher-Yates permutation to the library.
func (p *Player) Shuffle(rng *rand.Rand) {
	cards := p.Zones[ZoneLibrary].cards
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// Draw moves the top card of the library to the hand. It returns false and
// changes nothing when the library is empty.
func (p *Player) Draw() (*Card, bool) {
	if p.Zones[ZoneLibrary].Len() == 0 {
		return nil, false
	}
	return p.Zones.Move(ZoneLibrary, 0, ZoneHand), true
}

// ToggleReady flips readiness. A player without a deck cannot become ready.
func (p *Player) ToggleReady() (bool, error) {
	if !p.Ready && p.Deck == nil {
		return false, ErrDeckRequired
	}
	p.Ready = !p.Ready
	return p.Ready, nil
}

// ChangeLife adds delta to the life total, flooring at zero and saturating
// at math.MaxInt, and returns the change actually applied.
func (p *Player) ChangeLife(delta int) int {
	before := p.Life
	if delta > 0 && p.Life > math.MaxInt-delta {
		p.Life = math.MaxInt
	} else {
		p.Life = max(0, p.Life+delta)
	}
	return p.Life - before
}

// PublicView shows hand and library as counts only.
func (p *Player) PublicView() PlayerView {
	v := PlayerView{
		UserID:       p.UserID,
		Username:     p.Username,
		Life:         p.Life,
		Ready:        p.Ready,
		LibraryCount: p.Zones[ZoneLibrary].Len(),
		HandCount:    p.Zones[ZoneHand].Len(),
		Battlefield:  buildCardViews(p.Zones[ZoneBattlefield].cards),
		Graveyard:    buildCardViews(p.Zones[ZoneGraveyard].cards),
		Exile:        buildCardViews(p.Zones[ZoneExile].cards),
	}
	if p.Deck != nil {
		v.DeckName = p.Deck.Name
	}
	return v
}

// PrivateView is the owner's view: the public view plus hand contents. The
// library stays a count.
func (p *Player) PrivateView() PlayerView {
	v := p.PublicView()
	v.Hand = buildCardViews(p.Zones[ZoneHand].cards)
	return v
}

func (p *Player) clone() *Player {
	cp := &Player{
		Identity: p.Identity,
		Life:     p.Life,
		Ready:    p.Ready,
	}
	if p.Deck != nil {
		deck := *p.Deck
		cp.Deck = &deck
	}
	for i := range p.Zones {
		cp.Zones[i] = p.Zones[i].clone()
	}
	return cp
}
