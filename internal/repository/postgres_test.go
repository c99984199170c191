package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/magefree/mage-duel-server/internal/config"
	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// openTestDB connects to DUEL_TEST_DATABASE_URL or skips the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DUEL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DUEL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{URL: url, MaxConns: 4, ConnectTimeout: 5 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestPostgresUsersAndDecks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	decks := NewDeckRepository(db)

	owner := game.Identity{UserID: "u-" + uuid.NewString(), Username: "tester-" + uuid.NewString()}
	require.NoError(t, users.UpsertUser(ctx, owner))

	got, err := users.FindUserByID(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	_, err = users.FindUserByID(ctx, "u-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, game.ErrUserNotFound)

	deck := game.Deck{
		ID:      uuid.NewString(),
		Name:    "Burn",
		OwnerID: owner.UserID,
		Cards: []game.CardTemplate{
			{TemplateID: "bolt", Name: "Lightning Bolt"},
			{TemplateID: "mountain", Name: "Mountain", ImageURL: "https://img.example/m.jpg"},
		},
	}
	require.NoError(t, decks.SaveDeck(ctx, deck))

	loaded, err := decks.FindDeckByID(ctx, deck.ID)
	require.NoError(t, err)
	assert.Equal(t, deck, loaded)

	deck.Cards = deck.Cards[:1]
	require.NoError(t, decks.SaveDeck(ctx, deck))
	refs, err := decks.ListDecksByUser(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, []game.DeckRef{{ID: deck.ID, Name: "Burn", Size: 1}}, refs)

	_, err = decks.FindDeckByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, game.ErrDeckNotFound)
}
