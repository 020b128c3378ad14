package agent

import (
	"fmt"
	"strings"

	"minebench/server/game"
)

// Observation is the JSON we send the model before each move. The grid is
// the board's visible-state projection: F flagged, ? hidden, * revealed
// mine, digit otherwise.
type Observation struct {
	GameID     string          `json:"game_id"`
	Difficulty game.Difficulty `json:"difficulty"`
	Rows       int             `json:"rows"`
	Cols       int             `json:"cols"`
	Mines      int             `json:"mines"`
	Grid       string          `json:"grid"`
	Flags      int             `json:"flags_placed"`
	Moves      int             `json:"moves_made"`
	Legal      []string        `json:"legal_actions"` // reveal | flag
	LastResult string          `json:"last_result,omitempty"`
}

// MoveOut is the model's answer: an action plus a target cell, optionally
// with a short line of reasoning.
type MoveOut struct {
	Action    string `json:"action"` // reveal|flag
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Reasoning string `json:"reasoning,omitempty"`
}

// BuildObservation converts board state into the JSON we send the model.
func BuildObservation(gameID string, d game.Difficulty, b *game.Board, moves int, lastResult string) Observation {
	return Observation{
		GameID:     gameID,
		Difficulty: d,
		Rows:       b.Rows,
		Cols:       b.Cols,
		Mines:      b.Mines,
		Grid:       b.Render(),
		Flags:      b.FlagCount(),
		Moves:      moves,
		Legal:      []string{string(game.Reveal), string(game.Flag)},
		LastResult: lastResult,
	}
}

// Validate checks the model's move against the observation: known action,
// target inside the board. Whether the cell is actually playable is the
// engine's call; here we only reject malformed output.
func Validate(o Observation, m MoveOut) error {
	act := strings.ToLower(strings.TrimSpace(m.Action))
	ok := false
	for _, la := range o.Legal {
		if la == act {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("illegal action %q (legals: %v)", m.Action, o.Legal)
	}
	if m.Row < 0 || m.Row >= o.Rows || m.Col < 0 || m.Col >= o.Cols {
		return fmt.Errorf("target (%d,%d) outside %dx%d board", m.Row, m.Col, o.Rows, o.Cols)
	}
	return nil
}

// Kind maps the model's action string onto the engine's action kind.
func Kind(action string) game.ActionKind {
	if strings.EqualFold(strings.TrimSpace(action), string(game.Flag)) {
		return game.Flag
	}
	return game.Reveal
}
