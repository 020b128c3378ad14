package game

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const mineSentinel = -1

// Board owns the minefield and the visible state. It is mutated only
// through Apply and is owned by a single caller; once terminal it
// refuses further mutation.
type Board struct {
	Rows, Cols int
	Mines      int

	adjacent [][]int // -1 for mine cells
	revealed [][]bool
	flagged  [][]bool

	safeRevealed int
	seq          int
	terminal     bool
	won          bool
}

// NewBoard builds a board with mines placed by uniform sampling without
// replacement. seed=0 means "random" (wall clock), same as deck seeding.
func NewBoard(rows, cols, mines int, seed int64) (*Board, error) {
	if rows <= 0 || cols <= 0 {
		return nil, &ConfigError{Rows: rows, Cols: cols, Mines: mines, Reason: "dimensions must be positive"}
	}
	if mines < 0 || mines >= rows*cols {
		return nil, &ConfigError{Rows: rows, Cols: cols, Mines: mines, Reason: "mine count must be in [0, rows*cols)"}
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))

	b := &Board{
		Rows:     rows,
		Cols:     cols,
		Mines:    mines,
		adjacent: make([][]int, rows),
		revealed: make([][]bool, rows),
		flagged:  make([][]bool, rows),
	}
	for i := 0; i < rows; i++ {
		b.adjacent[i] = make([]int, cols)
		b.revealed[i] = make([]bool, cols)
		b.flagged[i] = make([]bool, cols)
	}

	for _, idx := range r.Perm(rows * cols)[:mines] {
		b.adjacent[idx/cols][idx%cols] = mineSentinel
	}
	b.countAdjacency()
	return b, nil
}

// NewBoardFor builds a board from a difficulty preset.
func NewBoardFor(d Difficulty, seed int64) (*Board, error) {
	cfg, ok := Preset(d)
	if !ok {
		return nil, &ConfigError{Reason: "unknown difficulty " + string(d)}
	}
	return NewBoard(cfg.Rows, cfg.Cols, cfg.Mines, seed)
}

func (b *Board) countAdjacency() {
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.adjacent[r][c] == mineSentinel {
				continue
			}
			n := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					rr, cc := r+dr, c+dc
					if b.inBounds(rr, cc) && b.adjacent[rr][cc] == mineSentinel {
						n++
					}
				}
			}
			b.adjacent[r][c] = n
		}
	}
}

func (b *Board) inBounds(r, c int) bool { return r >= 0 && r < b.Rows && c >= 0 && c < b.Cols }

func (b *Board) IsMine(r, c int) bool     { return b.adjacent[r][c] == mineSentinel }
func (b *Board) IsRevealed(r, c int) bool { return b.revealed[r][c] }
func (b *Board) IsFlagged(r, c int) bool  { return b.flagged[r][c] }
func (b *Board) Adjacent(r, c int) int    { return b.adjacent[r][c] }

func (b *Board) Terminal() bool { return b.terminal }
func (b *Board) Won() bool      { return b.won }

// Apply attempts one action and returns its Move record. Invalid moves
// leave the board untouched; the Move carries validity and a message.
func (b *Board) Apply(kind ActionKind, row, col int) Move {
	b.seq++
	mv := Move{Seq: b.seq, Kind: kind, Row: row, Col: col, At: time.Now()}
	switch kind {
	case Reveal:
		mv.Valid, mv.Message = b.reveal(row, col)
	case Flag:
		mv.Valid, mv.Message = b.flag(row, col)
	default:
		mv.Valid, mv.Message = false, "Invalid move"
	}
	return mv
}

func (b *Board) reveal(row, col int) (bool, string) {
	if b.terminal || !b.inBounds(row, col) || b.revealed[row][col] || b.flagged[row][col] {
		return false, "Invalid move"
	}

	b.revealed[row][col] = true
	if b.IsMine(row, col) {
		b.terminal = true
		b.won = false
		return true, "Hit mine - game over"
	}
	b.safeRevealed++

	// Flood-fill through the zero region with an explicit worklist so a
	// 20x40 board cannot blow the stack. Numbered cells are revealed but
	// never expanded past.
	if b.adjacent[row][col] == 0 {
		work := [][2]int{{row, col}}
		for len(work) > 0 {
			cur := work[len(work)-1]
			work = work[:len(work)-1]
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					rr, cc := cur[0]+dr, cur[1]+dc
					if !b.inBounds(rr, cc) || b.revealed[rr][cc] || b.flagged[rr][cc] {
						continue
					}
					b.revealed[rr][cc] = true
					b.safeRevealed++
					if b.adjacent[rr][cc] == 0 {
						work = append(work, [2]int{rr, cc})
					}
				}
			}
		}
	}

	if b.safeRevealed == b.Rows*b.Cols-b.Mines {
		b.terminal = true
		b.won = true
		return true, "All safe cells revealed - you won!"
	}
	return true, "Cell revealed"
}

func (b *Board) flag(row, col int) (bool, string) {
	if b.terminal || !b.inBounds(row, col) || b.revealed[row][col] {
		return false, "Cannot flag this cell"
	}
	b.flagged[row][col] = !b.flagged[row][col]
	if b.flagged[row][col] {
		return true, "Flag placed"
	}
	return true, "Flag removed"
}

// Render produces the visible-state grid handed to the model: 'F' for a
// flag, '?' for hidden, '*' for a revealed mine, the digit otherwise.
// Rows are newline-separated, cells space-separated.
func (b *Board) Render() string {
	var sb strings.Builder
	for r := 0; r < b.Rows; r++ {
		if r > 0 {
			sb.WriteByte('\n')
		}
		for c := 0; c < b.Cols; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			switch {
			case b.flagged[r][c]:
				sb.WriteByte('F')
			case !b.revealed[r][c]:
				sb.WriteByte('?')
			case b.IsMine(r, c):
				sb.WriteByte('*')
			default:
				sb.WriteString(strconv.Itoa(b.adjacent[r][c]))
			}
		}
	}
	return sb.String()
}

// FlagCount reports how many flags currently sit on the board.
func (b *Board) FlagCount() int {
	n := 0
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.flagged[r][c] {
				n++
			}
		}
	}
	return n
}

// Stats derives the scoring inputs from the board's own flag and reveal
// state, so mine-identification counts cannot drift from reality.
func (b *Board) Stats() Stats {
	st := Stats{MinesTotal: b.Mines, SafeTotal: b.Rows*b.Cols - b.Mines, SafeRevealed: b.safeRevealed}
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.flagged[r][c] {
				continue
			}
			if b.IsMine(r, c) {
				st.MinesFlagged++
			} else {
				st.FalseFlags++
			}
		}
	}
	if st.SafeTotal > 0 {
		st.CoverageRatio = float64(st.SafeRevealed) / float64(st.SafeTotal)
	}
	return st
}
