package game

import "fmt"

// PlayCard moves a card from the actor's hand onto their battlefield.
func (s *Session) PlayCard(actorID, cardID string) (CardView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return CardView{}, err
	}
	i := actor.Zones[ZoneHand].IndexOf(cardID)
	if i < 0 {
		return CardView{}, fmt.Errorf("%w: %s not in hand", ErrCardNotFound, cardID)
	}

	card := actor.Zones.Move(ZoneHand, i, ZoneBattlefield)

	ev := s.event(LogPlayCard, actor.Username, fmt.Sprintf("%s plays %s", actor.Username, card.Name))
	ev.CardID, ev.CardName = card.ID, card.Name
	s.commitLocked(CommitState, ev)
	return card.view(), nil
}

// MoveCard sets the board position of one of the actor's battlefield cards.
// The board is shared, so the position is mirrored onto any other player's
// battlefield card with the same id.
func (s *Session) MoveCard(actorID, cardID string, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return err
	}

	card, ok := actor.Zones[ZoneBattlefield].Get(cardID)
	if !ok {
		return fmt.Errorf("%w: %s not on the battlefield", ErrCardNotFound, cardID)
	}
	card.Position = pos
	for _, p := range s.players {
		if p == actor {
			continue
		}
		if mirror, ok := p.Zones[ZoneBattlefield].Get(cardID); ok {
			mirror.Position = pos
		}
	}

	s.commitLocked(CommitState)
	return nil
}

// MoveZone moves one of the actor's cards to dest from whichever other zone
// holds it, searching hand, battlefield, graveyard, exile, then library. It
// returns the zone the card came from.
func (s *Session) MoveZone(actorID, cardID string, dest ZoneKind) (ZoneKind, error) {
	if !dest.Valid() {
		return 0, fmt.Errorf("%w: invalid destination zone %d", ErrInvalidArgument, dest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return 0, err
	}
	from, i, ok := actor.Zones.Find(cardID, searchOrderExcluding(dest)...)
	if !ok {
		return 0, fmt.Errorf("%w: %s not found outside the %s", ErrCardNotFound, cardID, dest)
	}

	card := actor.Zones.Move(from, i, dest)

	ev := s.event(LogMoveZone, actor.Username, moveZoneMessage(actor.Username, card.Name, dest))
	ev.CardID, ev.CardName, ev.Zone = card.ID, card.Name, dest.String()
	s.commitLocked(CommitState, ev)
	return from, nil
}

func moveZoneMessage(actor, card string, dest ZoneKind) string {
	switch dest {
	case ZoneGraveyard:
		return fmt.Sprintf("%s puts %s into the graveyard", actor, card)
	case ZoneExile:
		return fmt.Sprintf("%s exiles %s", actor, card)
	case ZoneHand:
		return fmt.Sprintf("%s returns %s to their hand", actor, card)
	case ZoneLibrary:
		return fmt.Sprintf("%s puts %s at the bottom of their library", actor, card)
	default:
		return fmt.Sprintf("%s puts %s onto the battlefield", actor, card)
	}
}

// TapCard sets the tap state of one of the actor's battlefield cards.
func (s *Session) TapCard(actorID, cardID string, tapped bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return err
	}
	card, ok := actor.Zones[ZoneBattlefield].Get(cardID)
	if !ok {
		return fmt.Errorf("%w: %s not on the battlefield", ErrCardNotFound, cardID)
	}

	card.Tapped = tapped
	s.commitLocked(CommitState)
	return nil
}

// ChangeLife adjusts the target's life total on behalf of the actor, who may
// be a different player. It returns the resulting life total.
func (s *Session) ChangeLife(targetID, actorID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return 0, err
	}
	target := s.findPlayer(targetID)
	if target == nil {
		return 0, fmt.Errorf("%w: target %s", ErrPlayerNotFound, targetID)
	}

	applied := target.ChangeLife(amount)

	ev := s.event(LogLife, actor.Username, lifeMessage(actor, target, applied))
	ev.Target, ev.Amount = target.Username, applied
	s.commitLocked(CommitState, ev)
	return target.Life, nil
}

func lifeMessage(actor, target *Player, applied int) string {
	verb, amount := "gain", applied
	if applied < 0 {
		verb, amount = "lose", -applied
	}
	if actor == target {
		return fmt.Sprintf("%s %ss %d life (%d)", target.Username, verb, amount, target.Life)
	}
	return fmt.Sprintf("%s makes %s %s %d life (%d)", actor.Username, target.Username, verb, amount, target.Life)
}

// LookAtLibrary returns the top count cards of the actor's library, or all of
// it when count is nil. The library is not changed and the log entry does not
// reveal the cards.
func (s *Session) LookAtLibrary(actorID string, count *int) ([]CardView, error) {
	if count != nil && *count < 0 {
		return nil, fmt.Errorf("%w: count must not be negative", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return nil, err
	}

	n := -1
	msg := fmt.Sprintf("%s looks at their library", actor.Username)
	if count != nil {
		n = *count
		msg = fmt.Sprintf("%s looks at the top %d cards of their library", actor.Username, n)
	}
	cards := buildCardViews(actor.Zones[ZoneLibrary].Top(n))

	ev := s.event(LogLookLibrary, actor.Username, msg)
	ev.Amount = len(cards)
	s.commitLocked(CommitLog, ev)
	return cards, nil
}

// DrawCards draws count cards for the actor. Draws from an empty library are
// skipped; the number actually drawn is returned.
func (s *Session) DrawCards(actorID string, count int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: count must not be negative", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.actorLocked(actorID)
	if err != nil {
		return 0, err
	}

	// draws past the end of the library are no-ops
	attempts := min(count, actor.Zones[ZoneLibrary].Len())
	drawn := 0
	for i := 0; i < attempts; i++ {
		if _, ok := actor.Draw(); ok {
			drawn++
		}
	}

	msg := fmt.Sprintf("%s draws %d %s", actor.Username, drawn, plural(drawn, "card"))
	if drawn < count {
		msg += " (library empty)"
	}
	ev := s.event(LogDraw, actor.Username, msg)
	ev.Amount = drawn

	kind := CommitState
	if drawn == 0 {
		kind = CommitLog
	}
	s.commitLocked(kind, ev)
	return drawn, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
