// Package judge grades the reasoning a model attached to its moves.
// It runs after a bench run completes, reads the move log back from the
// store, asks a judge model for a 0..1 grade per game, and writes the
// grade onto the game_results row so scoring can prefer it over the
// length heuristic.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"minebench/server/llm"
	"minebench/server/store"
)

const judgeSystem = `You grade the quality of minesweeper move explanations.

Scoring rubric:
- 1.0: the explanation cites concrete board evidence (adjacency digits,
  satisfied numbers, exhausted neighbor sets) that logically forces the move.
- 0.5: plausible but generic reasoning (probability talk without numbers,
  "safest looking corner").
- 0.0: no reasoning, restated coordinates, or reasoning contradicted by the
  stated board.

Return ONLY a JSON object {"score": <number between 0 and 1>}.`

// JudgeModel picks the grading model: MINEBENCH_JUDGE_MODEL, falling back
// to the primary OPENAI_MODEL. Empty means judging is disabled.
func JudgeModel() string {
	if v := strings.TrimSpace(os.Getenv("MINEBENCH_JUDGE_MODEL")); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
}

// EvaluateRunReasoning grades each game's accumulated reasoning text and
// persists the scores. Games without any reasoning are skipped (the
// heuristic already scores them 0).
func EvaluateRunReasoning(ctx context.Context, db *store.DB, runID int64, model string) error {
	if model == "" {
		return errors.New("judge model not configured")
	}
	games, err := db.RunReasoning(ctx, runID)
	if err != nil {
		return err
	}
	for _, g := range games {
		text := strings.TrimSpace(strings.Join(g.Texts, "\n"))
		if text == "" {
			continue
		}
		score, err := gradeOne(ctx, model, text)
		if err != nil {
			// Keep grading the rest; a missing grade just falls back
			// to the heuristic for that game.
			continue
		}
		if err := db.SetGameReasoningScore(ctx, runID, g.GameIndex, score); err != nil {
			return err
		}
	}
	return nil
}

func gradeOne(ctx context.Context, model, reasoning string) (float64, error) {
	user := fmt.Sprintf("Move explanations for one minesweeper game, in order:\n%s\n\nGrade them as a whole.", reasoning)
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []string{"score"},
	}
	text, err := llm.PingTextWithOpts(ctx, model, judgeSystem, user, llm.PingOptions{
		StructuredSchemaName: "reasoning_grade",
		StructuredSchema:     schema,
		StructuredStrict:     true,
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return 0, err
	}
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 1 {
		out.Score = 1
	}
	return out.Score, nil
}
