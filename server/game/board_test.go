package game

import (
	"strings"
	"testing"
)

func TestNewBoardRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name              string
		rows, cols, mines int
	}{
		{"zero rows", 0, 9, 5},
		{"zero cols", 9, 0, 5},
		{"negative rows", -1, 9, 5},
		{"negative mines", 9, 9, -1},
		{"mines fill board", 3, 3, 9},
		{"mines exceed board", 3, 3, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBoard(tc.rows, tc.cols, tc.mines, 1)
			if err == nil {
				t.Fatalf("NewBoard(%d,%d,%d) accepted bad config", tc.rows, tc.cols, tc.mines)
			}
			if _, ok := err.(*ConfigError); !ok {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestNewBoardMineCountAndAdjacency(t *testing.T) {
	cases := []struct {
		rows, cols, mines int
		seed              int64
	}{
		{9, 9, 10, 7},
		{16, 16, 40, 42},
		{16, 30, 99, 1},
		{20, 40, 180, 99},
		{5, 5, 0, 3},
	}
	for _, tc := range cases {
		b, err := NewBoard(tc.rows, tc.cols, tc.mines, tc.seed)
		if err != nil {
			t.Fatalf("NewBoard(%d,%d,%d): %v", tc.rows, tc.cols, tc.mines, err)
		}
		mines := 0
		for r := 0; r < b.Rows; r++ {
			for c := 0; c < b.Cols; c++ {
				if b.IsMine(r, c) {
					mines++
					continue
				}
				want := 0
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						if dr == 0 && dc == 0 {
							continue
						}
						rr, cc := r+dr, c+dc
						if rr >= 0 && rr < b.Rows && cc >= 0 && cc < b.Cols && b.IsMine(rr, cc) {
							want++
						}
					}
				}
				if got := b.Adjacent(r, c); got != want {
					t.Fatalf("board %dx%d seed %d: adjacency at (%d,%d) = %d, want %d",
						tc.rows, tc.cols, tc.seed, r, c, got, want)
				}
			}
		}
		if mines != tc.mines {
			t.Fatalf("board %dx%d: placed %d mines, want %d", tc.rows, tc.cols, mines, tc.mines)
		}
	}
}

// Revealing a zero cell must clear its whole zero-region plus the numbered
// border and stop there, terminating on a dense 20x30 board.
func TestFloodFillRevealsZeroRegionAndBorder(t *testing.T) {
	b, err := NewBoard(20, 30, 99, 12345)
	if err != nil {
		t.Fatal(err)
	}
	// Find any zero cell; with 99 mines in 600 cells one always exists.
	zr, zc := -1, -1
	for r := 0; r < b.Rows && zr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.IsMine(r, c) && b.Adjacent(r, c) == 0 {
				zr, zc = r, c
				break
			}
		}
	}
	if zr < 0 {
		t.Skip("no zero-adjacency cell on this layout")
	}

	mv := b.Apply(Reveal, zr, zc)
	if !mv.Valid || mv.Message == "Hit mine - game over" {
		t.Fatalf("unexpected reveal result: %+v", mv)
	}

	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.IsRevealed(r, c) {
				continue
			}
			if b.IsMine(r, c) {
				t.Fatalf("flood fill revealed a mine at (%d,%d)", r, c)
			}
			// Every revealed numbered cell must touch a revealed zero cell:
			// the fill stops at the border, it never jumps past it.
			if b.Adjacent(r, c) > 0 {
				touchesZero := false
				for dr := -1; dr <= 1 && !touchesZero; dr++ {
					for dc := -1; dc <= 1; dc++ {
						rr, cc := r+dr, c+dc
						if (dr != 0 || dc != 0) && rr >= 0 && rr < b.Rows && cc >= 0 && cc < b.Cols &&
							b.IsRevealed(rr, cc) && b.Adjacent(rr, cc) == 0 {
							touchesZero = true
							break
						}
					}
				}
				if !touchesZero && (r != zr || c != zc) {
					t.Fatalf("numbered cell (%d,%d) revealed without adjacent zero region", r, c)
				}
			}
			// Every revealed zero cell must have all its neighbors revealed.
			if b.Adjacent(r, c) == 0 {
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						rr, cc := r+dr, c+dc
						if (dr != 0 || dc != 0) && rr >= 0 && rr < b.Rows && cc >= 0 && cc < b.Cols && !b.IsRevealed(rr, cc) {
							t.Fatalf("zero cell (%d,%d) left neighbor (%d,%d) hidden", r, c, rr, cc)
						}
					}
				}
			}
		}
	}
}

func TestRevealMineEndsGame(t *testing.T) {
	b, err := NewBoard(9, 9, 10, 77)
	if err != nil {
		t.Fatal(err)
	}
	mr, mc := -1, -1
	for r := 0; r < b.Rows && mr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.IsMine(r, c) {
				mr, mc = r, c
				break
			}
		}
	}
	mv := b.Apply(Reveal, mr, mc)
	if !mv.Valid || mv.Message != "Hit mine - game over" {
		t.Fatalf("mine reveal: %+v", mv)
	}
	if !b.Terminal() || b.Won() {
		t.Fatalf("after mine: terminal=%v won=%v", b.Terminal(), b.Won())
	}
	if got := b.Apply(Reveal, 0, 0); got.Valid {
		t.Fatalf("reveal succeeded on terminal board: %+v", got)
	}
	if got := b.Apply(Flag, 0, 0); got.Valid {
		t.Fatalf("flag succeeded on terminal board: %+v", got)
	}
}

func TestRevealLastSafeCellWins(t *testing.T) {
	b, err := NewBoard(4, 4, 3, 9)
	if err != nil {
		t.Fatal(err)
	}
	var last Move
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.IsMine(r, c) || b.IsRevealed(r, c) {
				continue
			}
			last = b.Apply(Reveal, r, c)
			if !last.Valid {
				t.Fatalf("reveal (%d,%d) invalid: %+v", r, c, last)
			}
		}
	}
	if !b.Terminal() || !b.Won() {
		t.Fatalf("expected won board, terminal=%v won=%v", b.Terminal(), b.Won())
	}
	if last.Message != "All safe cells revealed - you won!" {
		t.Fatalf("final message = %q", last.Message)
	}
}

func TestFlagRules(t *testing.T) {
	b, err := NewBoard(9, 9, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	// find a safe, non-zero cell so the reveal doesn't cascade far
	sr, sc := -1, -1
	for r := 0; r < b.Rows && sr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.IsMine(r, c) && b.Adjacent(r, c) > 0 {
				sr, sc = r, c
				break
			}
		}
	}
	if mv := b.Apply(Reveal, sr, sc); !mv.Valid {
		t.Fatalf("reveal: %+v", mv)
	}
	if mv := b.Apply(Flag, sr, sc); mv.Valid || mv.Message != "Cannot flag this cell" {
		t.Fatalf("flag on revealed cell: %+v", mv)
	}

	// toggle round-trips on a hidden cell
	hr, hc := -1, -1
	for r := 0; r < b.Rows && hr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.IsRevealed(r, c) {
				hr, hc = r, c
				break
			}
		}
	}
	if mv := b.Apply(Flag, hr, hc); !mv.Valid || mv.Message != "Flag placed" {
		t.Fatalf("flag: %+v", mv)
	}
	if !b.IsFlagged(hr, hc) {
		t.Fatal("cell not flagged after Flag")
	}
	if mv := b.Apply(Reveal, hr, hc); mv.Valid {
		t.Fatalf("reveal succeeded on flagged cell: %+v", mv)
	}
	if mv := b.Apply(Flag, hr, hc); !mv.Valid || mv.Message != "Flag removed" {
		t.Fatalf("unflag: %+v", mv)
	}
	if b.IsFlagged(hr, hc) {
		t.Fatal("cell still flagged after toggle back")
	}
}

func TestRevealInvalidTargets(t *testing.T) {
	b, err := NewBoard(9, 9, 10, 11)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range [][2]int{{-1, 0}, {0, -1}, {9, 0}, {0, 9}} {
		if mv := b.Apply(Reveal, p[0], p[1]); mv.Valid || mv.Message != "Invalid move" {
			t.Fatalf("out-of-bounds reveal (%d,%d): %+v", p[0], p[1], mv)
		}
	}
	// double reveal
	sr, sc := -1, -1
	for r := 0; r < b.Rows && sr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.IsMine(r, c) && b.Adjacent(r, c) > 0 {
				sr, sc = r, c
				break
			}
		}
	}
	if mv := b.Apply(Reveal, sr, sc); !mv.Valid {
		t.Fatalf("first reveal: %+v", mv)
	}
	if mv := b.Apply(Reveal, sr, sc); mv.Valid || mv.Message != "Invalid move" {
		t.Fatalf("second reveal: %+v", mv)
	}
}

// The same seed must replay to the same (valid, message) sequence.
func TestDeterministicReplay(t *testing.T) {
	script := []struct {
		kind     ActionKind
		row, col int
	}{
		{Reveal, 4, 4}, {Reveal, 0, 0}, {Flag, 2, 3}, {Reveal, 6, 7}, {Reveal, 8, 8},
	}
	run := func() []string {
		b, err := NewBoard(9, 9, 10, 20240901)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, 0, len(script))
		for _, s := range script {
			mv := b.Apply(s.kind, s.row, s.col)
			out = append(out, mv.Message)
			if b.Terminal() {
				break
			}
		}
		return out
	}
	first := run()
	for i := 0; i < 5; i++ {
		again := run()
		if strings.Join(first, "|") != strings.Join(again, "|") {
			t.Fatalf("replay diverged:\n%v\n%v", first, again)
		}
	}
}

func TestRenderGlyphs(t *testing.T) {
	b, err := NewBoard(9, 9, 10, 31)
	if err != nil {
		t.Fatal(err)
	}
	rows := strings.Split(b.Render(), "\n")
	if len(rows) != 9 {
		t.Fatalf("render has %d rows, want 9", len(rows))
	}
	for _, row := range rows {
		if len(strings.Fields(row)) != 9 {
			t.Fatalf("render row %q has wrong width", row)
		}
		for _, tok := range strings.Fields(row) {
			if tok != "?" {
				t.Fatalf("fresh board shows %q, want all hidden", tok)
			}
		}
	}

	// flag one hidden cell, reveal one numbered cell, then check glyphs
	b.Apply(Flag, 0, 0)
	sr, sc := -1, -1
	for r := 0; r < b.Rows && sr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if !b.IsMine(r, c) && b.Adjacent(r, c) > 0 && !(r == 0 && c == 0) {
				sr, sc = r, c
				break
			}
		}
	}
	b.Apply(Reveal, sr, sc)
	grid := strings.Split(b.Render(), "\n")
	if got := strings.Fields(grid[0])[0]; got != "F" {
		t.Fatalf("flagged cell renders %q", got)
	}
	if got := strings.Fields(grid[sr])[sc]; got == "?" || got == "F" {
		t.Fatalf("revealed cell renders %q", got)
	}

	// losing reveal shows the mine
	mr, mc := -1, -1
	for r := 0; r < b.Rows && mr < 0; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.IsMine(r, c) {
				mr, mc = r, c
				break
			}
		}
	}
	b.Apply(Reveal, mr, mc)
	grid = strings.Split(b.Render(), "\n")
	if got := strings.Fields(grid[mr])[mc]; got != "*" {
		t.Fatalf("revealed mine renders %q", got)
	}
}

func TestStatsDerivedFromBoard(t *testing.T) {
	b, err := NewBoard(9, 9, 10, 61)
	if err != nil {
		t.Fatal(err)
	}
	var wantFlagged, wantFalse int
	seen := 0
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if seen >= 4 {
				break
			}
			if b.IsRevealed(r, c) {
				continue
			}
			if mv := b.Apply(Flag, r, c); mv.Valid {
				if b.IsMine(r, c) {
					wantFlagged++
				} else {
					wantFalse++
				}
				seen++
			}
		}
	}
	st := b.Stats()
	if st.MinesTotal != 10 || st.MinesFlagged != wantFlagged || st.FalseFlags != wantFalse {
		t.Fatalf("stats %+v, want flagged=%d false=%d", st, wantFlagged, wantFalse)
	}
	if st.SafeTotal != 71 {
		t.Fatalf("safe total = %d, want 71", st.SafeTotal)
	}
}
