package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/spf13/viper"
)

// MemoryDirectory is an in-process user and deck store, used when no
// database is configured.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]game.Identity
	decks map[string]game.Deck
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users: make(map[string]game.Identity),
		decks: make(map[string]game.Deck),
	}
}

// AddUser stores or replaces a user.
func (m *MemoryDirectory) AddUser(u game.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

// AddDeck stores or replaces a deck.
func (m *MemoryDirectory) AddDeck(d game.Deck) {
	d.Cards = append([]game.CardTemplate(nil), d.Cards...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decks[d.ID] = d
}

// FindUserByID returns the user with the given id.
func (m *MemoryDirectory) FindUserByID(_ context.Context, id string) (game.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return game.Identity{}, fmt.Errorf("%w: %s", game.ErrUserNotFound, id)
	}
	return u, nil
}

// FindDeckByID returns a copy of the deck with the given id.
func (m *MemoryDirectory) FindDeckByID(_ context.Context, id string) (game.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decks[id]
	if !ok {
		return game.Deck{}, fmt.Errorf("%w: %s", game.ErrDeckNotFound, id)
	}
	d.Cards = append([]game.CardTemplate(nil), d.Cards...)
	return d, nil
}

// ListDecksByUser returns the decks owned by userID, ordered by name.
func (m *MemoryDirectory) ListDecksByUser(_ context.Context, userID string) ([]game.DeckRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]game.DeckRef, 0)
	for _, d := range m.decks {
		if d.OwnerID == userID {
			refs = append(refs, game.DeckRef{ID: d.ID, Name: d.Name, Size: len(d.Cards)})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name == refs[j].Name {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Name < refs[j].Name
	})
	return refs, nil
}

// Seed is the on-disk form of a directory.
type Seed struct {
	Users []SeedUser `mapstructure:"users"`
	Decks []SeedDeck `mapstructure:"decks"`
}

// SeedUser is one user entry.
type SeedUser struct {
	ID       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
}

// SeedDeck is one deck entry. Each card line may carry a count.
type SeedDeck struct {
	ID    string     `mapstructure:"id"`
	Name  string     `mapstructure:"name"`
	Owner string     `mapstructure:"owner"`
	Cards []SeedCard `mapstructure:"cards"`
}

// SeedCard is a deck line.
type SeedCard struct {
	TemplateID string `mapstructure:"template_id"`
	Name       string `mapstructure:"name"`
	ImageURL   string `mapstructure:"image_url"`
	Count      int    `mapstructure:"count"`
}

// Deck expands the entry into a game.Deck.
func (sd SeedDeck) Deck() game.Deck {
	deck := game.Deck{ID: sd.ID, Name: sd.Name, OwnerID: sd.Owner}
	for _, c := range sd.Cards {
		n := c.Count
		if n <= 0 {
			n = 1
		}
		tmpl := game.CardTemplate{TemplateID: c.TemplateID, Name: c.Name, ImageURL: c.ImageURL}
		if tmpl.TemplateID == "" {
			tmpl.TemplateID = c.Name
		}
		for i := 0; i < n; i++ {
			deck.Cards = append(deck.Cards, tmpl)
		}
	}
	return deck
}

// ReadSeed parses a seed file in any format viper understands (YAML, JSON,
// TOML).
func ReadSeed(path string) (*Seed, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	seed := &Seed{}
	if err := v.Unmarshal(seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return seed, seed.Validate()
}

// Validate checks that every entry has an id and every deck an owner that
// exists in the seed.
func (s *Seed) Validate() error {
	users := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		if u.ID == "" || u.Username == "" {
			return fmt.Errorf("seed user %d: id and username are required", i)
		}
		users[u.ID] = true
	}
	for i, d := range s.Decks {
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("seed deck %d: id and name are required", i)
		}
		if !users[d.Owner] {
			return fmt.Errorf("seed deck %s: unknown owner %q", d.ID, d.Owner)
		}
	}
	return nil
}

// LoadSeed fills a new MemoryDirectory from the seed file at path.
func LoadSeed(path string) (*MemoryDirectory, error) {
	seed, err := ReadSeed(path)
	if err != nil {
		return nil, err
	}
	dir := NewMemoryDirectory()
	for _, u := range seed.Users {
		dir.AddUser(game.Identity{UserID: u.ID, Username: u.Username})
	}
	for _, d := range seed.Decks {
		dir.AddDeck(d.Deck())
	}
	return dir, nil
}
