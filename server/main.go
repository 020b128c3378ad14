package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"minebench/server/agent"
	"minebench/server/game"
	"minebench/server/judge"
	"minebench/server/llm"
	"minebench/server/scoring"
	"minebench/server/store"
)

/* -----------------------------
   Console color helpers
------------------------------*/

var colorOn = strings.TrimSpace(os.Getenv("NO_COLOR")) == ""

func paint(code, s string) string {
	if !colorOn {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
func green(s string) string  { return paint("32", s) }
func red(s string) string    { return paint("31", s) }
func yellow(s string) string { return paint("33", s) }
func cyan(s string) string   { return paint("36", s) }
func dim(s string) string    { return paint("2", s) }

/* -----------------------------
   Graceful stop
------------------------------*/

var stopFlag atomic.Bool

func watchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		log.Println(yellow("stop requested; finishing current game"))
		stopFlag.Store(true)
	}()
}

// checkStop returns true when the run should wind down: a signal arrived,
// the stop file appeared, or the wall-clock budget ran out.
func checkStop(cfg Config, started time.Time) bool {
	if stopFlag.Load() {
		return true
	}
	if cfg.StopFile != "" {
		if _, err := os.Stat(cfg.StopFile); err == nil {
			log.Println(yellow("stop file present: " + cfg.StopFile))
			stopFlag.Store(true)
			return true
		}
	}
	if cfg.MaxSeconds > 0 && time.Since(started) > time.Duration(cfg.MaxSeconds)*time.Second {
		log.Println(yellow("MAX_SECONDS reached"))
		stopFlag.Store(true)
		return true
	}
	return false
}

/* -----------------------------
   Seeds
------------------------------*/

// seedStream derives per-game seeds from one base seed (splitmix64) so a
// whole run can be replayed from the run row's seed_base.
func seedStream(base int64, i int) int64 {
	z := uint64(base) + uint64(i+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	if z == 0 {
		z = 1
	}
	return int64(z & 0x7FFFFFFFFFFFFFFF)
}

func secureBaseSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) & 0x7FFFFFFFFFFFFFFF)
}

/* -----------------------------
   The player
------------------------------*/

const benchSystem = `You are playing minesweeper on a zero-indexed grid.

Grid glyphs: "?" hidden, "F" your flag, "*" revealed mine, digits are the
count of adjacent mines (0-8). Revealing a 0 auto-reveals its neighbors.

Rules you must respect:
- "reveal" only hidden, unflagged cells. Revealing a mine loses the game.
- "flag" toggles a flag on a hidden cell. You cannot flag revealed cells.
- You win by revealing every safe cell. Flags are optional but flagging
  real mines (and only real mines) improves your score.

Think before you act: use the digit constraints to find forced safe cells
and forced mines. Respond with a single JSON object:
{"action":"reveal"|"flag","row":<int>,"col":<int>,"reasoning":"<one sentence>"}`

// askMove runs the fallback ladder: structured schema call, then a plain
// JSON-mode call with tolerant parsing, then a blind fallback move so a
// game never stalls on a misbehaving model.
func askMove(ctx context.Context, model string, obs agent.Observation) (agent.MoveOut, bool) {
	ob, _ := json.Marshal(obs)
	user := "Current game state:\n" + string(ob) + "\n\nYour move."

	act, row, col, reason, _, err := llm.PingChooseMove(ctx, model, benchSystem, user, obs.Legal, obs.Rows, obs.Cols, llm.PingOptions{})
	if err == nil {
		mv := agent.MoveOut{Action: act, Row: row, Col: col, Reasoning: reason}
		if agent.Validate(obs, mv) == nil {
			return mv, true
		}
	} else {
		log.Println(dim("structured move failed: " + err.Error()))
	}

	// Second rung: plain JSON mode, parse whatever comes back.
	text, err := llm.PingText(ctx, model, benchSystem, user)
	if err == nil {
		var mv agent.MoveOut
		if jerr := json.Unmarshal([]byte(strings.TrimSpace(text)), &mv); jerr == nil {
			if agent.Validate(obs, mv) == nil {
				return mv, true
			}
		}
	} else {
		log.Println(dim("json-mode move failed: " + err.Error()))
	}

	return fallbackMove(obs), false
}

// fallbackMove reveals the first hidden cell. Deliberately dumb: it keeps
// the game moving and its cost shows up in the valid-move rate.
func fallbackMove(obs agent.Observation) agent.MoveOut {
	for r, line := range strings.Split(obs.Grid, "\n") {
		for c, glyph := range strings.Fields(line) {
			if glyph == "?" {
				return agent.MoveOut{Action: string(game.Reveal), Row: r, Col: c, Reasoning: ""}
			}
		}
	}
	return agent.MoveOut{Action: string(game.Reveal), Row: 0, Col: 0}
}

// playGame runs one board to completion (or the move cap) and returns the
// scorer's record. Every attempted move is logged to move_logs.
func playGame(
	ctx context.Context,
	db *store.DB,
	cfg Config,
	runID int64,
	gameIndex int,
	model string,
	d game.Difficulty,
	seed int64,
) (scoring.GameRecord, error) {
	board, err := game.NewBoardFor(d, seed)
	if err != nil {
		return scoring.GameRecord{}, err
	}
	gameID := uuid.NewString()
	log.Printf("%s game %d (%s, seed %d)", cyan("▶"), gameIndex, d, seed)

	var moves []game.Move
	var reasons []string
	lastResult := ""
	started := time.Now()

	for !board.Terminal() && len(moves) < cfg.MaxMoves {
		if cfg.StopImmediate && checkStop(cfg, started) {
			break
		}
		obs := agent.BuildObservation(gameID, d, board, len(moves), lastResult)
		mv, fromModel := askMove(ctx, model, obs)

		m := board.Apply(agent.Kind(mv.Action), mv.Row, mv.Col)
		moves = append(moves, m)
		lastResult = m.Message
		if mv.Reasoning != "" {
			reasons = append(reasons, mv.Reasoning)
		}

		tag := green("ok")
		if !m.Valid {
			tag = red("invalid")
		}
		if !fromModel {
			tag += dim(" (fallback)")
		}
		log.Printf("  #%d %s (%d,%d) %s %s", m.Seq, m.Kind, m.Row, m.Col, tag, dim(m.Message))

		if db != nil {
			st := board.Stats()
			var rsn *string
			if mv.Reasoning != "" {
				rsn = &mv.Reasoning
			}
			if err := db.InsertMoveLog(ctx, runID, gameIndex, gameID, m.Seq,
				string(m.Kind), m.Row, m.Col, m.Valid, m.Message,
				st.SafeRevealed, board.FlagCount(), rsn); err != nil {
				log.Println(red("move log insert failed: " + err.Error()))
			}
		}
	}

	st := board.Stats()
	rec := scoring.GameRecord{
		Won:           board.Won(),
		Moves:         moves,
		MinesTotal:    st.MinesTotal,
		MinesFlagged:  st.MinesFlagged,
		FalseFlags:    st.FalseFlags,
		CoverageRatio: st.CoverageRatio,
		Difficulty:    d,
		Reasoning:     reasons,
	}

	if db != nil {
		valid := 0
		for _, m := range moves {
			if m.Valid {
				valid++
			}
		}
		if err := db.InsertGameResult(ctx, runID, gameIndex, gameID, seed,
			rec.Won, len(moves), valid,
			st.MinesTotal, st.MinesFlagged, st.FalseFlags,
			st.CoverageRatio, nil); err != nil {
			return rec, err
		}
	}

	outcome := red("lost")
	if rec.Won {
		outcome = green("WON")
	}
	log.Printf("%s game %d %s in %d moves, coverage %.2f", cyan("■"), gameIndex, outcome, len(moves), st.CoverageRatio)
	return rec, nil
}

/* -----------------------------
   Bench runs
------------------------------*/

func runBench(ctx context.Context, db *store.DB, cfg Config, model, company string) error {
	d := game.Difficulty(cfg.Difficulty)
	preset, ok := game.Preset(d)
	if !ok {
		return fmt.Errorf("unknown difficulty %q", cfg.Difficulty)
	}

	modelID, err := db.UpsertModel(ctx, model, company, nil)
	if err != nil {
		return err
	}
	priorS, priorI, _, _, _, err := db.GetOrInitScores(ctx, modelID)
	if err != nil {
		return err
	}

	baseSeed := cfg.BoardSeed
	if baseSeed == 0 {
		baseSeed = secureBaseSeed()
	}
	runID, err := db.CreateRun(ctx, modelID, model, company, string(d),
		preset.Rows, preset.Cols, preset.Mines, cfg.Games, baseSeed)
	if err != nil {
		return err
	}
	log.Printf("%s run %d: %s on %s, %d games, seed base %d",
		cyan("==="), runID, model, d, cfg.Games, baseSeed)

	started := time.Now()
	var recs []scoring.GameRecord
	for i := 0; i < cfg.Games; i++ {
		if checkStop(cfg, started) {
			log.Printf(yellow("stopping after %d of %d games"), i, cfg.Games)
			break
		}
		rec, err := playGame(ctx, db, cfg, runID, i, model, d, seedStream(baseSeed, i))
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	// Optional external grading of the move reasoning. Failures degrade to
	// the heuristic, never fail the run.
	if jm := judge.JudgeModel(); jm != "" && jm != model {
		if err := judge.EvaluateRunReasoning(ctx, db, runID, jm); err != nil {
			log.Println(yellow("judge pass skipped: " + err.Error()))
		} else {
			for i := range recs {
				var rs *float64
				if err := db.QueryRow(ctx,
					`SELECT reasoning_score FROM game_results WHERE run_id=$1 AND game_index=$2`,
					runID, i).Scan(&rs); err == nil {
					recs[i].JudgeScore = rs
				}
			}
		}
	}

	tier := scoring.TierOf(d)
	sc := scoring.Composite(recs, tier)
	reasoning := scoring.ReasoningScore(recs)

	msS, msI := priorS, priorI
	if tier == scoring.Intermediate {
		msI = sc.Composite
	} else {
		msS = sc.Composite
	}

	wins, totalMoves := 0, 0
	for _, r := range recs {
		if r.Won {
			wins++
		}
		totalMoves += len(r.Moves)
	}
	if err := db.UpdateModelScores(ctx, modelID,
		msS, msI, sc.WinRate, sc.ValidMoveRate, reasoning,
		1, len(recs), wins, totalMoves); err != nil {
		return err
	}
	if err := db.CompleteRun(ctx, runID); err != nil {
		return err
	}

	log.Printf("%s %s [%s]", cyan("==="), model, tier)
	log.Printf("  games %d  wins %d  win rate %.4f (95%% CI %.4f-%.4f)",
		len(recs), wins, sc.WinRate, sc.WinRateLow, sc.WinRateHigh)
	log.Printf("  valid-move %.4f  precision %.4f  recall %.4f  f1 %.4f  coverage %.4f",
		sc.ValidMoveRate, sc.Precision, sc.Recall, sc.F1, sc.Coverage)
	log.Printf("  composite %.4f  reasoning %.4f", sc.Composite, reasoning)
	return nil
}

// runBenchSuite runs the bench for each model in OPENAI_MODELS (comma
// separated "model" or "model=Company" entries).
func runBenchSuite(ctx context.Context, db *store.DB, cfg Config) error {
	raw := mustEnv("OPENAI_MODELS")
	var firstErr error
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		model, company := entry, cfg.Company
		if i := strings.IndexByte(entry, '='); i > 0 {
			model, company = strings.TrimSpace(entry[:i]), strings.TrimSpace(entry[i+1:])
		}
		if err := runBench(ctx, db, cfg, model, company); err != nil {
			log.Println(red("bench failed for " + model + ": " + err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
		if stopFlag.Load() {
			break
		}
	}
	return firstErr
}

/* -----------------------------
   Entry point
------------------------------*/

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	migrateFlag := flag.Bool("migrate", false, "apply schema.sql and exit")
	benchFlag := flag.Bool("bench", false, "run the benchmark for OPENAI_MODEL")
	suiteFlag := flag.Bool("bench-suite", false, "run the benchmark for every model in OPENAI_MODELS")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchSignals()

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = mustEnv("DATABASE_URL")
	}
	db, err := store.Open(dsn)
	if err != nil {
		log.Fatal("db open: ", err)
	}
	defer db.Close(ctx)
	if err := db.Ping(ctx); err != nil {
		log.Fatal("db ping: ", err)
	}

	if *migrateFlag || cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			log.Fatal("migrate: ", err)
		}
		log.Println(green("schema applied"))
		if *migrateFlag {
			return
		}
	}

	switch {
	case *benchFlag:
		model := cfg.Model
		if model == "" {
			model = mustEnv("OPENAI_MODEL")
		}
		if err := runBench(ctx, db, cfg, model, cfg.Company); err != nil {
			log.Fatal(err)
		}
	case *suiteFlag:
		if err := runBenchSuite(ctx, db, cfg); err != nil {
			log.Fatal(err)
		}
	default:
		addr := ":" + cfg.Port
		log.Println(green("MineBench API listening on " + addr))
		srv := &http.Server{Addr: addr, Handler: Router(db)}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}
}
