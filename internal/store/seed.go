package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/haigui-labs/soupserver/internal/domain"
)

// seedFile mirrors the puzzle collection import format.
type seedFile struct {
	Puzzles []seedPuzzle `json:"puzzles"`
}

type seedPuzzle struct {
	Title      string   `json:"title"`
	SoupType   string   `json:"soup_type"`
	Difficulty int      `json:"difficulty"`
	Tags       []string `json:"tags"`
	Surface    string   `json:"surface"`
	Bottom     string   `json:"bottom"`
	HintList   []string `json:"hint_list"`
	Language   string   `json:"language"`
	Status     string   `json:"status"`
	Source     string   `json:"source"`
}

// legacy collection files use WHITE for the clear soup type
var soupTypeAliases = map[string]domain.SoupType{
	"WHITE": domain.SoupClear,
	"CLEAR": domain.SoupClear,
	"RED":   domain.SoupRed,
	"BLACK": domain.SoupBlack,
}

// SeedPuzzles imports puzzles from a JSON collection file, or from the
// built-in set when path is empty. Seeding only runs against an empty
// puzzle table so restarts do not duplicate rows.
func SeedPuzzles(ctx context.Context, repo Repository, path string) (int, error) {
	count, err := repo.CountPuzzles(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	puzzles := builtinPuzzles()
	if path != "" {
		puzzles, err = loadPuzzleCollection(path)
		if err != nil {
			return 0, err
		}
	}

	inserted := 0
	for _, p := range puzzles {
		if err := repo.CreatePuzzle(ctx, p); err != nil {
			return inserted, fmt.Errorf("seed puzzle %q: %w", p.Title, err)
		}
		inserted++
	}
	slog.Info("Puzzle table seeded", "count", inserted, "source", seedSource(path))
	return inserted, nil
}

func seedSource(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}

func loadPuzzleCollection(path string) ([]*domain.Puzzle, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read puzzle collection: %w", err)
	}

	var file seedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse puzzle collection: %w", err)
	}

	var puzzles []*domain.Puzzle
	for _, raw := range file.Puzzles {
		soupType, ok := soupTypeAliases[raw.SoupType]
		if !ok {
			slog.Warn("skipping puzzle with unknown soup type", "title", raw.Title, "soup_type", raw.SoupType)
			continue
		}
		p := &domain.Puzzle{
			Title:      raw.Title,
			SoupType:   soupType,
			Difficulty: raw.Difficulty,
			Tags:       raw.Tags,
			Surface:    raw.Surface,
			Bottom:     raw.Bottom,
			HintList:   raw.HintList,
			Language:   raw.Language,
			Status:     domain.PuzzleStatus(raw.Status),
			Source:     raw.Source,
		}
		if p.Difficulty == 0 {
			p.Difficulty = 3
		}
		if p.Language == "" {
			p.Language = "en"
		}
		if p.Status == "" {
			p.Status = domain.PuzzleActive
		}
		if p.Source == "" {
			p.Source = "OFFICIAL"
		}
		puzzles = append(puzzles, p)
	}
	return puzzles, nil
}

// builtinPuzzles returns a small default set so a fresh install can serve
// sessions before a collection is imported.
func builtinPuzzles() []*domain.Puzzle {
	return []*domain.Puzzle{
		{
			Title:      "Turtle Soup",
			SoupType:   domain.SoupRed,
			Difficulty: 3,
			Tags:       []string{"classic"},
			Surface:    "A man orders turtle soup at a restaurant, takes one bite, then goes home and takes his own life. Why?",
			Bottom:     "Years ago he was shipwrecked with his companions. Starving, he was fed what he was told was turtle soup; it was actually the flesh of those who had died. The real turtle soup tastes different, so he realizes what he ate back then.",
			HintList:   []string{"He had eaten turtle soup before.", "The two soups tasted different.", "He was once shipwrecked."},
			Language:   "en",
			Status:     domain.PuzzleActive,
			Source:     "OFFICIAL",
		},
		{
			Title:      "The Lighthouse Keeper",
			SoupType:   domain.SoupBlack,
			Difficulty: 2,
			Tags:       []string{"classic"},
			Surface:    "A man flips a switch and goes to sleep. The next morning he reads the news and jumps out of the window. Why?",
			Bottom:     "He is a lighthouse keeper who switched off the lamp for the night. A ship wrecked on the rocks in the dark, and the morning paper reports the disaster he caused.",
			HintList:   []string{"His job matters.", "The switch controlled a light."},
			Language:   "en",
			Status:     domain.PuzzleActive,
			Source:     "OFFICIAL",
		},
		{
			Title:      "The Elevator Ride",
			SoupType:   domain.SoupClear,
			Difficulty: 1,
			Tags:       []string{"classic", "easy"},
			Surface:    "A man who lives on the tenth floor takes the elevator down every morning, but on the way back he rides only to the seventh floor and walks the rest. On rainy days he rides all the way up. Why?",
			Bottom:     "He is short. He can only reach the seventh-floor button, unless he has his umbrella to press the tenth with.",
			HintList:   []string{"He would ride higher if he could.", "The umbrella is not for the rain inside the building."},
			Language:   "en",
			Status:     domain.PuzzleActive,
			Source:     "OFFICIAL",
		},
	}
}
