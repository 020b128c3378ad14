package game

import (
	"fmt"
	"time"
)

type ActionKind string

const (
	Reveal ActionKind = "reveal"
	Flag   ActionKind = "flag"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	Expert Difficulty = "expert"
)

// Config holds board dimensions and mine count for one game.
type Config struct{ Rows, Cols, Mines int }

// Preset returns the canonical board configuration for a difficulty tier.
func Preset(d Difficulty) (Config, bool) {
	switch d {
	case Easy:
		return Config{Rows: 9, Cols: 9, Mines: 10}, true
	case Medium:
		return Config{Rows: 16, Cols: 16, Mines: 40}, true
	case Hard:
		return Config{Rows: 16, Cols: 30, Mines: 99}, true
	case Expert:
		return Config{Rows: 20, Cols: 40, Mines: 180}, true
	default:
		return Config{}, false
	}
}

// Move is the immutable record produced by every action attempt.
// The board never keeps these; the caller owns the move log.
type Move struct {
	Seq     int        `json:"seq"`
	Kind    ActionKind `json:"action"`
	Row     int        `json:"row"`
	Col     int        `json:"col"`
	Valid   bool       `json:"valid"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// ConfigError reports unusable construction parameters. It is the only
// hard failure the engine produces; bad moves come back as invalid Moves.
type ConfigError struct {
	Rows, Cols, Mines int
	Reason            string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("board config %dx%d with %d mines: %s", e.Rows, e.Cols, e.Mines, e.Reason)
}

// Stats are the end-of-game counts the scorer consumes, derived from the
// board itself rather than trusted from the caller.
type Stats struct {
	MinesTotal    int
	MinesFlagged  int // flags sitting on actual mines
	FalseFlags    int // flags sitting on safe cells
	SafeTotal     int
	SafeRevealed  int
	CoverageRatio float64
}
