package game

import (
	"fmt"
	"strings"
)

// ZoneKind names one of a player's five card zones.
type ZoneKind int

const (
	ZoneLibrary ZoneKind = iota
	ZoneHand
	ZoneBattlefield
	ZoneGraveyard
	ZoneExile

	zoneCount = 5
)

func (z ZoneKind) String() string {
	switch z {
	case ZoneLibrary:
		return "library"
	case ZoneHand:
		return "hand"
	case ZoneBattlefield:
		return "battlefield"
	case ZoneGraveyard:
		return "graveyard"
	case ZoneExile:
		return "exile"
	default:
		return "unknown"
	}
}

// Valid reports whether z is one of the five zones.
func (z ZoneKind) Valid() bool {
	return z >= ZoneLibrary && z <= ZoneExile
}

// ParseZone converts a wire name ("graveyard", "exile", ...) to a ZoneKind.
func ParseZone(name string) (ZoneKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "library":
		return ZoneLibrary, nil
	case "hand":
		return ZoneHand, nil
	case "battlefield":
		return ZoneBattlefield, nil
	case "graveyard":
		return ZoneGraveyard, nil
	case "exile":
		return ZoneExile, nil
	}
	return 0, fmt.Errorf("%w: unknown zone %q", ErrInvalidArgument, name)
}

// zoneSearchOrder is the order MoveZone scans for the card, before the
// destination is removed from it.
var zoneSearchOrder = []ZoneKind{ZoneHand, ZoneBattlefield, ZoneGraveyard, ZoneExile, ZoneLibrary}

// searchOrderExcluding returns zoneSearchOrder without dest.
func searchOrderExcluding(dest ZoneKind) []ZoneKind {
	order := make([]ZoneKind, 0, len(zoneSearchOrder)-1)
	for _, z := range zoneSearchOrder {
		if z != dest {
			order = append(order, z)
		}
	}
	return order
}

// Zone is an ordered sequence of cards. Index 0 is the top of the library.
type Zone struct {
	cards []*Card
}

// Len returns the number of cards in the zone.
func (z *Zone) Len() int { return len(z.cards) }

// IndexOf returns the index of the card with the given instance id, or -1.
func (z *Zone) IndexOf(id string) int {
	for i, c := range z.cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the card with the given id.
func (z *Zone) Get(id string) (*Card, bool) {
	if i := z.IndexOf(id); i >= 0 {
		return z.cards[i], true
	}
	return nil, false
}

// Top returns up to n cards from the head of the zone without removing them.
func (z *Zone) Top(n int) []*Card {
	if n < 0 || n > len(z.cards) {
		n = len(z.cards)
	}
	return z.cards[:n]
}

// Cards returns a copy of the zone's card slice.
func (z *Zone) Cards() []*Card {
	return append([]*Card(nil), z.cards...)
}

func (z *Zone) push(c *Card) {
	z.cards = append(z.cards, c)
}

// removeAt removes the card at index i, keeping the order of the rest.
func (z *Zone) removeAt(i int) *Card {
	c := z.cards[i]
	copy(z.cards[i:], z.cards[i+1:])
	z.cards[len(z.cards)-1] = nil
	z.cards = z.cards[:len(z.cards)-1]
	return c
}

func (z *Zone) reset(cards []*Card) {
	z.cards = cards
}

func (z *Zone) clone() Zone {
	cards := make([]*Card, len(z.cards))
	for i, c := range z.cards {
		cards[i] = c.clone()
	}
	return Zone{cards: cards}
}

// Zones holds a player's five zones, indexed by ZoneKind.
type Zones [zoneCount]Zone

// Zone returns the zone of the given kind.
func (zs *Zones) Zone(kind ZoneKind) *Zone {
	return &zs[kind]
}

// Find scans the zones in the given order and returns the first zone holding
// a card with the instance id, together with its index in that zone.
func (zs *Zones) Find(id string, order ...ZoneKind) (ZoneKind, int, bool) {
	for _, kind := range order {
		if !kind.Valid() {
			continue
		}
		if i := zs[kind].IndexOf(id); i >= 0 {
			return kind, i, true
		}
	}
	return 0, -1, false
}

// Move removes the card at index from zone from and appends it to the tail of
// zone to. Cards leaving or entering the battlefield lose their tap state and
// position.
func (zs *Zones) Move(from ZoneKind, index int, to ZoneKind) *Card {
	card := zs[from].removeAt(index)
	if from == ZoneBattlefield || to == ZoneBattlefield {
		card.resetBoardState()
	}
	zs[to].push(card)
	return card
}

// Total returns the number of cards across all five zones.
func (zs *Zones) Total() int {
	n := 0
	for i := range zs {
		n += zs[i].Len()
	}
	return n
}
