package store

import (
	"context"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Minimal write helpers
------------------------------*/

// Upsert a model and return its id.
func (db *DB) UpsertModel(ctx context.Context, name, company string, reasoningEffort *string) (int64, error) {
	var id int64
	var re any
	if reasoningEffort != nil {
		v := strings.TrimSpace(*reasoningEffort)
		if v != "" {
			re = v
		}
	}
	err := db.QueryRow(ctx, `
        INSERT INTO models(name, company, reasoning_effort)
        VALUES ($1,$2,$3)
        ON CONFLICT (name) DO UPDATE
          SET company = EXCLUDED.company,
              reasoning_effort = EXCLUDED.reasoning_effort
        RETURNING id
    `, name, company, re).Scan(&id)
	return id, err
}

// Ensure a model_scores row exists and fetch its composites.
func (db *DB) GetOrInitScores(ctx context.Context, modelID int64) (msS, msI, winRate float64, runs, games int, err error) {
	if _, e := db.Exec(ctx, `INSERT INTO model_scores(model_id) VALUES ($1) ON CONFLICT (model_id) DO NOTHING`, modelID); e != nil {
		return 0, 0, 0, 0, 0, e
	}
	err = db.QueryRow(ctx, `
		SELECT ms_s, ms_i, win_rate, runs, games
		  FROM model_scores WHERE model_id = $1
	`, modelID).Scan(&msS, &msI, &winRate, &runs, &games)
	return
}

// Persist composite scores and increment career counters.
func (db *DB) UpdateModelScores(
	ctx context.Context,
	modelID int64,
	msS, msI, winRate, validMoveRate, reasoningScore float64,
	runsInc, gamesInc, winsInc, movesInc int,
) error {
	_, err := db.Exec(ctx, `
		UPDATE model_scores
		   SET ms_s = $2,
		       ms_i = $3,
		       win_rate = $4,
		       valid_move_rate = $5,
		       reasoning_score = $6,
		       runs = runs + $7,
		       games = games + $8,
		       wins = wins + $9,
		       moves = moves + $10,
		       updated_at = now()
		 WHERE model_id = $1
	`, modelID, msS, msI, winRate, validMoveRate, reasoningScore, runsInc, gamesInc, winsInc, movesInc)
	return err
}

// Create a run row and return the id.
func (db *DB) CreateRun(
	ctx context.Context,
	modelID int64,
	name, company, difficulty string,
	rows, cols, mines, games int,
	seedBase int64,
) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO runs(model_id, name_snapshot, company_snapshot, difficulty,
		                 board_rows, board_cols, mines, games, seed_base)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, modelID, name, company, difficulty, rows, cols, mines, games, seedBase).Scan(&id)
	return id, err
}

// InsertMoveLog records one move step for live viewers and replay.
func (db *DB) InsertMoveLog(
	ctx context.Context,
	runID int64,
	gameIndex int,
	gameID string,
	seq int,
	action string,
	row, col int,
	valid bool,
	message string,
	revealed, flags int,
	reasoning *string,
) error {
	var rsn any
	if reasoning != nil && strings.TrimSpace(*reasoning) != "" {
		rsn = strings.TrimSpace(*reasoning)
	}
	_, err := db.Exec(ctx, `
        INSERT INTO move_logs(
            run_id, game_index, game_id, seq,
            action, target_row, target_col,
            valid, message, revealed, flags, reasoning
        ) VALUES (
            $1,$2,$3,$4,
            $5,$6,$7,
            $8,$9,$10,$11,$12
        )
    `, runID, gameIndex, gameID, seq, action, row, col, valid, message, revealed, flags, rsn)
	return err
}

// InsertGameResult records one finished game.
func (db *DB) InsertGameResult(
	ctx context.Context,
	runID int64,
	gameIndex int,
	gameID string,
	boardSeed int64,
	won bool,
	movesTotal, movesValid int,
	minesTotal, minesFlagged, falseFlags int,
	coverageRatio float64,
	reasoningScore *float64,
) error {
	var rs any
	if reasoningScore != nil {
		rs = *reasoningScore
	}
	_, err := db.Exec(ctx, `
        INSERT INTO game_results(
            run_id, game_index, game_id, board_seed, won,
            moves_total, moves_valid,
            mines_total, mines_flagged, false_flags,
            coverage_ratio, reasoning_score
        ) VALUES (
            $1,$2,$3,$4,$5,
            $6,$7,
            $8,$9,$10,
            $11,$12
        )
        ON CONFLICT (run_id, game_index) DO UPDATE SET
            won = EXCLUDED.won,
            moves_total = EXCLUDED.moves_total,
            moves_valid = EXCLUDED.moves_valid,
            mines_total = EXCLUDED.mines_total,
            mines_flagged = EXCLUDED.mines_flagged,
            false_flags = EXCLUDED.false_flags,
            coverage_ratio = EXCLUDED.coverage_ratio,
            reasoning_score = EXCLUDED.reasoning_score
    `, runID, gameIndex, gameID, boardSeed, won,
		movesTotal, movesValid,
		minesTotal, minesFlagged, falseFlags,
		coverageRatio, rs)
	return err
}

// SetGameReasoningScore writes a judge grade onto an existing game row.
func (db *DB) SetGameReasoningScore(ctx context.Context, runID int64, gameIndex int, score float64) error {
	_, err := db.Exec(ctx, `
		UPDATE game_results SET reasoning_score = $3
		 WHERE run_id = $1 AND game_index = $2
	`, runID, gameIndex, score)
	return err
}

func (db *DB) CompleteRun(ctx context.Context, runID int64) error {
	_, err := db.Exec(ctx, `UPDATE runs SET ended_at = now() WHERE id = $1`, runID)
	return err
}

// GameReasoning is one game's concatenated move reasoning, used by the judge.
type GameReasoning struct {
	GameIndex int
	Texts     []string
}

// RunReasoning fetches per-game reasoning text for a run, in game order.
func (db *DB) RunReasoning(ctx context.Context, runID int64) ([]GameReasoning, error) {
	rows, err := db.Query(ctx, `
		SELECT game_index, reasoning
		  FROM move_logs
		 WHERE run_id = $1 AND reasoning IS NOT NULL
		 ORDER BY game_index, seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byGame := map[int]*GameReasoning{}
	order := []int{}
	for rows.Next() {
		var idx int
		var text string
		if err := rows.Scan(&idx, &text); err != nil {
			return nil, err
		}
		g, ok := byGame[idx]
		if !ok {
			g = &GameReasoning{GameIndex: idx}
			byGame[idx] = g
			order = append(order, idx)
		}
		g.Texts = append(g.Texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]GameReasoning, 0, len(order))
	for _, idx := range order {
		out = append(out, *byGame[idx])
	}
	return out, nil
}

// RunSummary is the per-run aggregate the history endpoints serve.
type RunSummary struct {
	ID         int64
	Model      string
	Company    string
	Difficulty string
	Games      int
	Wins       int
	CreatedAt  time.Time
	EndedAt    *time.Time
}

// RecentRuns lists the newest runs with their win counts.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(ctx, `
        SELECT r.id, r.name_snapshot, r.company_snapshot, r.difficulty, r.games,
               COALESCE(SUM(CASE WHEN g.won THEN 1 ELSE 0 END), 0)::int AS wins,
               r.created_at, r.ended_at
          FROM runs r
          LEFT JOIN game_results g ON g.run_id = r.id
         GROUP BY r.id
         ORDER BY r.id DESC
         LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.Model, &s.Company, &s.Difficulty, &s.Games, &s.Wins, &s.CreatedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestRunID returns the newest run id, or 0 when no runs exist yet.
func (db *DB) LatestRunID(ctx context.Context) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}
