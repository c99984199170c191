package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/magefree/mage-duel-server/internal/game"
)

// UserRepository reads users from Postgres.
type UserRepository struct {
	db querier
}

// NewUserRepository creates a UserRepository on db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db.Pool}
}

// FindUserByID returns the user with the given id.
func (r *UserRepository) FindUserByID(ctx context.Context, id string) (game.Identity, error) {
	var u game.Identity
	err := r.db.QueryRow(ctx,
		`SELECT id, username FROM users WHERE id = $1`, id,
	).Scan(&u.UserID, &u.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Identity{}, fmt.Errorf("%w: %s", game.ErrUserNotFound, id)
	}
	if err != nil {
		return game.Identity{}, fmt.Errorf("%w: find user %s: %w", game.ErrDependency, id, err)
	}
	return u, nil
}

// UpsertUser creates the user or renames an existing one.
func (r *UserRepository) UpsertUser(ctx context.Context, u game.Identity) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
	`, u.UserID, u.Username)
	if err != nil {
		return fmt.Errorf("%w: upsert user %s: %w", game.ErrDependency, u.UserID, err)
	}
	return nil
}
