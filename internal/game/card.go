package game

// Position is a card's location on the shared visual board.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Origin is where a card lands when it enters the battlefield without an
// explicit position.
var Origin = Position{}

// CardTemplate identifies the printed card a Card instance was made from.
type CardTemplate struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url"`
}

// Card is one in-session copy of a template. The ID is assigned when the deck
// is bound to a player and never changes afterwards; zone moves carry the
// same pointer from one zone to the next.
type Card struct {
	ID string
	CardTemplate
	Tapped   bool
	Position Position
}

// CardView is the serialisable form of a card.
type CardView struct {
	ID         string   `json:"id"`
	TemplateID string   `json:"template_id"`
	Name       string   `json:"name"`
	ImageURL   string   `json:"image_url"`
	Tapped     bool     `json:"tapped"`
	Position   Position `json:"position"`
}

func newCard(id string, tmpl CardTemplate) *Card {
	return &Card{
		ID:           id,
		CardTemplate: tmpl,
		Position:     Origin,
	}
}

func (c *Card) view() CardView {
	return CardView{
		ID:         c.ID,
		TemplateID: c.TemplateID,
		Name:       c.Name,
		ImageURL:   c.ImageURL,
		Tapped:     c.Tapped,
		Position:   c.Position,
	}
}

func (c *Card) clone() *Card {
	cp := *c
	return &cp
}

// resetBoardState clears battlefield-only state when a card changes zone.
func (c *Card) resetBoardState() {
	c.Tapped = false
	c.Position = Origin
}

func buildCardViews(cards []*Card) []CardView {
	views := make([]CardView, len(cards))
	for i, card := range cards {
		views[i] = card.view()
	}
	return views
}
