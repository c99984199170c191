package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/magefree/mage-duel-server/internal/game"
)

// DeckRepository reads and writes deck lists in Postgres.
type DeckRepository struct {
	pool *pgxpool.Pool
	db   querier
}

// NewDeckRepository creates a DeckRepository on db.
func NewDeckRepository(db *DB) *DeckRepository {
	return &DeckRepository{pool: db.Pool, db: db.Pool}
}

// FindDeckByID returns a deck with its cards in list order.
func (r *DeckRepository) FindDeckByID(ctx context.Context, id string) (game.Deck, error) {
	deck := game.Deck{ID: id}
	err := r.db.QueryRow(ctx,
		`SELECT name, owner_id FROM decks WHERE id = $1`, id,
	).Scan(&deck.Name, &deck.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Deck{}, fmt.Errorf("%w: %s", game.ErrDeckNotFound, id)
	}
	if err != nil {
		return game.Deck{}, fmt.Errorf("%w: find deck %s: %w", game.ErrDependency, id, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT template_id, name, image_url
		FROM deck_cards
		WHERE deck_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return game.Deck{}, fmt.Errorf("%w: load cards of deck %s: %w", game.ErrDependency, id, err)
	}
	deck.Cards, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.CardTemplate, error) {
		var c game.CardTemplate
		err := row.Scan(&c.TemplateID, &c.Name, &c.ImageURL)
		return c, err
	})
	if err != nil {
		return game.Deck{}, fmt.Errorf("%w: scan cards of deck %s: %w", game.ErrDependency, id, err)
	}
	return deck, nil
}

// ListDecksByUser returns the decks owned by userID, ordered by name.
func (r *DeckRepository) ListDecksByUser(ctx context.Context, userID string) ([]game.DeckRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.id, d.name, COUNT(c.position)
		FROM decks d
		LEFT JOIN deck_cards c ON c.deck_id = d.id
		WHERE d.owner_id = $1
		GROUP BY d.id, d.name
		ORDER BY d.name, d.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list decks of %s: %w", game.ErrDependency, userID, err)
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.DeckRef, error) {
		var ref game.DeckRef
		err := row.Scan(&ref.ID, &ref.Name, &ref.Size)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan decks of %s: %w", game.ErrDependency, userID, err)
	}
	return refs, nil
}

// SaveDeck replaces the stored deck with deck, cards included, in one
// transaction.
func (r *DeckRepository) SaveDeck(ctx context.Context, deck game.Deck) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", game.ErrDependency, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO decks (id, owner_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name
	`, deck.ID, deck.OwnerID, deck.Name); err != nil {
		return fmt.Errorf("%w: upsert deck %s: %w", game.ErrDependency, deck.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM deck_cards WHERE deck_id = $1`, deck.ID); err != nil {
		return fmt.Errorf("%w: clear deck %s: %w", game.ErrDependency, deck.ID, err)
	}

	rows := make([][]any, len(deck.Cards))
	for i, c := range deck.Cards {
		rows[i] = []any{deck.ID, i, c.TemplateID, c.Name, c.ImageURL}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"deck_cards"},
		[]string{"deck_id", "position", "template_id", "name", "image_url"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("%w: copy cards of deck %s: %w", game.ErrDependency, deck.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit deck %s: %w", game.ErrDependency, deck.ID, err)
	}
	return nil
}
