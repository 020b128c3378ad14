// Package scoring turns completed game records into MineBench scores.
// Everything here is a pure function over GameRecords: no I/O, no state,
// and no failures — empty or malformed input degrades to zeros.
package scoring

import (
	"math"
	"strings"

	"minebench/server/game"
)

// GameRecord is one finished game as the scorer sees it: the outcome, the
// full move log, and the board-derived identification/coverage counts.
type GameRecord struct {
	Won           bool            `json:"won"`
	Moves         []game.Move     `json:"moves"`
	MinesTotal    int             `json:"mines_total"`
	MinesFlagged  int             `json:"mines_flagged"`
	FalseFlags    int             `json:"false_flags"`
	CoverageRatio float64         `json:"coverage_ratio"`
	Difficulty    game.Difficulty `json:"difficulty"`

	// Reasoning carries the model's per-move explanations; JudgeScore is
	// set when an external judge graded them.
	Reasoning  []string `json:"reasoning,omitempty"`
	JudgeScore *float64 `json:"judge_score,omitempty"`
}

// Tier selects which difficulties feed a composite score.
type Tier string

const (
	Standard     Tier = "standard"     // easy + medium → MS-S
	Intermediate Tier = "intermediate" // hard + expert → MS-I
)

// Score is the composite bundle the leaderboard stores and serves.
type Score struct {
	Tier          Tier    `json:"tier"`
	Games         int     `json:"games"`
	WinRate       float64 `json:"win_rate"`
	WinRateLow    float64 `json:"win_rate_low"`
	WinRateHigh   float64 `json:"win_rate_high"`
	ValidMoveRate float64 `json:"valid_move_rate"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1"`
	Coverage      float64 `json:"coverage"`
	Composite     float64 `json:"composite"`
}

const wilsonZ = 1.96 // 95% confidence

// WinRate returns p-hat plus its Wilson score interval, clipped to [0,1].
// Zero games → (0,0,0).
func WinRate(games []GameRecord) (p, low, high float64) {
	n := float64(len(games))
	if n == 0 {
		return 0, 0, 0
	}
	wins := 0
	for _, g := range games {
		if g.Won {
			wins++
		}
	}
	p = float64(wins) / n
	z := wilsonZ
	den := 1 + z*z/n
	center := (p + z*z/(2*n)) / den
	margin := z * math.Sqrt((p*(1-p)+z*z/(4*n))/n) / den
	return p, clip01(center - margin), clip01(center + margin)
}

// ValidMoveRate is validMoves/totalMoves over all supplied games.
func ValidMoveRate(games []GameRecord) float64 {
	var valid, total int
	for _, g := range games {
		for _, m := range g.Moves {
			total++
			if m.Valid {
				valid++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(valid) / float64(total)
}

// MineIdentification computes precision/recall/F1 of flag placement.
// Each value is 0 when its denominator is 0.
func MineIdentification(games []GameRecord) (precision, recall, f1 float64) {
	var flagged, falseFlags, mines int
	for _, g := range games {
		flagged += g.MinesFlagged
		falseFlags += g.FalseFlags
		mines += g.MinesTotal
	}
	if flagged+falseFlags > 0 {
		precision = float64(flagged) / float64(flagged+falseFlags)
	}
	if mines > 0 {
		recall = float64(flagged) / float64(mines)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return
}

// BoardCoverage is the mean coverage ratio across all games. A game that
// revealed nothing counts as 0 rather than being dropped from the mean.
func BoardCoverage(games []GameRecord) float64 {
	if len(games) == 0 {
		return 0
	}
	sum := 0.0
	for _, g := range games {
		sum += g.CoverageRatio
	}
	return sum / float64(len(games))
}

// TierOf maps a difficulty to its composite tier.
func TierOf(d game.Difficulty) Tier {
	switch d {
	case game.Hard, game.Expert:
		return Intermediate
	default:
		return Standard
	}
}

// Composite computes the MS-S or MS-I bundle over the games matching the
// tier. An empty subset yields a zeroed Score. All fields are rounded to
// four decimals.
func Composite(games []GameRecord, tier Tier) Score {
	subset := games[:0:0]
	for _, g := range games {
		if TierOf(g.Difficulty) == tier {
			subset = append(subset, g)
		}
	}
	s := Score{Tier: tier, Games: len(subset)}
	if len(subset) == 0 {
		return s
	}

	win, lo, hi := WinRate(subset)
	valid := ValidMoveRate(subset)
	prec, rec, f1 := MineIdentification(subset)
	cov := BoardCoverage(subset)

	var composite float64
	switch tier {
	case Intermediate:
		composite = 0.3*win + 0.2*valid + 0.3*f1 + 0.2*cov
	default:
		composite = 0.4*win + 0.3*valid + 0.2*prec + 0.1*cov
	}

	s.WinRate = round4(win)
	s.WinRateLow = round4(lo)
	s.WinRateHigh = round4(hi)
	s.ValidMoveRate = round4(valid)
	s.Precision = round4(prec)
	s.Recall = round4(rec)
	s.F1 = round4(f1)
	s.Coverage = round4(cov)
	s.Composite = round4(composite)
	return s
}

var causalWords = []string{"because", "since", "therefore", "thus", "hence", "so that", "implies"}

// ReasoningScore averages external judge scores when any game carries one;
// otherwise it falls back to a length/keyword heuristic over the move
// reasoning text. No reasoning at all scores 0.
func ReasoningScore(games []GameRecord) float64 {
	var judged, judgeSum float64
	for _, g := range games {
		if g.JudgeScore != nil {
			judged++
			judgeSum += *g.JudgeScore
		}
	}
	if judged > 0 {
		return round4(judgeSum / judged)
	}

	var scored, sum float64
	for _, g := range games {
		for _, text := range g.Reasoning {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			scored++
			sum += heuristicReasoning(text)
		}
	}
	if scored == 0 {
		return 0
	}
	return round4(sum / scored)
}

func heuristicReasoning(text string) float64 {
	words := len(strings.Fields(text))
	score := math.Min(float64(words)/50.0, 0.8)
	lower := strings.ToLower(text)
	for _, w := range causalWords {
		if strings.Contains(lower, w) {
			score += 0.2
			break
		}
	}
	return math.Min(score, 1.0)
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
