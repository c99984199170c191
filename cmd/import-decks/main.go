package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/magefree/mage-duel-server/internal/config"
	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/magefree/mage-duel-server/internal/repository"
	"go.uber.org/zap"
)

var configPath = flag.String("config", "config/config.yaml", "path to configuration file")

// csvHeader is the column layout of a deck list export.
var csvHeader = []string{"deck_id", "deck_name", "owner_id", "owner_name", "count", "card_name", "image_url"}

func main() {
	flag.Parse()
	ctx := context.Background()

	path := "data/decks.yaml"
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Fatalf("Failed to get absolute path: %v", err)
	}

	fmt.Println("=== Deck Import ===")
	fmt.Printf("Source: %s\n", absPath)

	seed, err := readSource(absPath)
	if err != nil {
		log.Fatalf("Failed to read decks: %v", err)
	}
	fmt.Printf("Found %d users and %d decks\n", len(seed.Users), len(seed.Decks))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if cfg.Database.URL == "" {
		log.Fatal("No database configured; set database.url or DATABASE_URL")
	}

	fmt.Printf("Connecting to database...\n")
	db, err := repository.NewDB(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	fmt.Println("✓ Database connection established")

	users := repository.NewUserRepository(db)
	decks := repository.NewDeckRepository(db)
	startTime := time.Now()

	for _, u := range seed.Users {
		if err := users.UpsertUser(ctx, game.Identity{UserID: u.ID, Username: u.Username}); err != nil {
			log.Fatalf("Failed to save user %s: %v", u.ID, err)
		}
	}

	imported, failed, cards := 0, 0, 0
	for _, sd := range seed.Decks {
		deck := sd.Deck()
		if err := decks.SaveDeck(ctx, deck); err != nil {
			log.Printf("Failed to save deck %s: %v", deck.ID, err)
			failed++
			continue
		}
		imported++
		cards += len(deck.Cards)
	}

	fmt.Println("\n=== Import Complete ===")
	fmt.Printf("✓ Users: %d\n", len(seed.Users))
	fmt.Printf("✓ Decks: %d (%d cards)\n", imported, cards)
	if failed > 0 {
		fmt.Printf("✗ Failed decks: %d\n", failed)
	}
	fmt.Printf("Time taken: %s\n", time.Since(startTime))
}

// readSource reads a .csv deck list or any seed file format the server
// accepts.
func readSource(path string) (*repository.Seed, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return repository.ReadSeed(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	seed, err := parseDeckCSV(f)
	if err != nil {
		return nil, err
	}
	return seed, seed.Validate()
}

// parseDeckCSV reads one card line per row. Rows of the same deck must share
// deck_id; the first row names the deck and its owner.
func parseDeckCSV(r io.Reader) (*repository.Seed, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range csvHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i+1, col, header[i])
		}
	}

	seed := &repository.Seed{}
	users := map[string]bool{}
	deckIdx := map[string]int{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		deckID, ownerID := record[0], record[2]
		if !users[ownerID] {
			users[ownerID] = true
			seed.Users = append(seed.Users, repository.SeedUser{ID: ownerID, Username: record[3]})
		}
		idx, ok := deckIdx[deckID]
		if !ok {
			idx = len(seed.Decks)
			deckIdx[deckID] = idx
			seed.Decks = append(seed.Decks, repository.SeedDeck{ID: deckID, Name: record[1], Owner: ownerID})
		}

		count := 1
		if record[4] != "" {
			count, err = strconv.Atoi(record[4])
			if err != nil || count < 1 {
				return nil, fmt.Errorf("line %d: bad count %q", line, record[4])
			}
		}
		seed.Decks[idx].Cards = append(seed.Decks[idx].Cards, repository.SeedCard{
			Name:     record[5],
			ImageURL: record[6],
			Count:    count,
		})
	}
	return seed, nil
}
