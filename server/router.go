package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"minebench/server/store"
)

func Router(db *store.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health
	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		ok := db.Ping(req.Context()) == nil
		writeJSON(w, map[string]any{"ok": ok})
	})

	// Leaderboard: models ranked by MS-S composite, with career aggregates.
	r.Get("/api/leaderboard", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		type Row struct {
			ModelID       int64     `json:"model_id"`
			Model         string    `json:"model"`
			Company       string    `json:"company"`
			MSS           float64   `json:"ms_s"`
			MSI           float64   `json:"ms_i"`
			WinRate       float64   `json:"win_rate"`
			ValidMoveRate float64   `json:"valid_move_rate"`
			Reasoning     float64   `json:"reasoning_score"`
			Runs          int       `json:"runs"`
			Games         int       `json:"games"`
			Wins          int       `json:"wins"`
			Moves         int       `json:"moves"`
			Updated       time.Time `json:"updated_at"`
		}
		rows, err := db.Query(ctx, `
            SELECT id, name, company,
                   COALESCE(ms_s, 0), COALESCE(ms_i, 0),
                   COALESCE(win_rate, 0), COALESCE(valid_move_rate, 0),
                   COALESCE(reasoning_score, 0),
                   COALESCE(runs, 0), COALESCE(games, 0), COALESCE(wins, 0), COALESCE(moves, 0),
                   COALESCE(updated_at, now())
              FROM v_model_career
             ORDER BY COALESCE(ms_s, 0) DESC, COALESCE(ms_i, 0) DESC, games DESC
        `)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		defer rows.Close()
		out := []Row{}
		for rows.Next() {
			var x Row
			if err := rows.Scan(&x.ModelID, &x.Model, &x.Company, &x.MSS, &x.MSI,
				&x.WinRate, &x.ValidMoveRate, &x.Reasoning,
				&x.Runs, &x.Games, &x.Wins, &x.Moves, &x.Updated); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			out = append(out, x)
		}
		writeJSON(w, map[string]any{"rows": out})
	})

	// Recent runs for the history page.
	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := db.RecentRuns(req.Context(), 200)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		type Row struct {
			ID         int64      `json:"id"`
			Model      string     `json:"model"`
			Company    string     `json:"company"`
			Difficulty string     `json:"difficulty"`
			Games      int        `json:"games"`
			Wins       int        `json:"wins"`
			CreatedAt  time.Time  `json:"created_at"`
			EndedAt    *time.Time `json:"ended_at"`
		}
		out := make([]Row, 0, len(runs))
		for _, s := range runs {
			out = append(out, Row{s.ID, s.Model, s.Company, s.Difficulty, s.Games, s.Wins, s.CreatedAt, s.EndedAt})
		}
		writeJSON(w, map[string]any{"rows": out})
	})

	// Latest run bundle: run header plus per-game results.
	r.Get("/api/last-run", func(w http.ResponseWriter, req *http.Request) {
		id, err := db.LatestRunID(req.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if id == 0 {
			http.Error(w, "no runs yet", http.StatusNotFound)
			return
		}
		serveRunBundle(db, w, req, id)
	})

	// A specific run bundle.
	r.Get("/api/run", func(w http.ResponseWriter, req *http.Request) {
		id, ok := queryID(w, req, "id")
		if !ok {
			return
		}
		serveRunBundle(db, w, req, id)
	})

	// Model details: career row + recent runs for a given model id.
	r.Get("/api/model", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		modelID, ok := queryID(w, req, "id")
		if !ok {
			return
		}

		var career struct {
			ModelID       int64     `json:"model_id"`
			Model         string    `json:"model"`
			Company       string    `json:"company"`
			MSS           float64   `json:"ms_s"`
			MSI           float64   `json:"ms_i"`
			WinRate       float64   `json:"win_rate"`
			ValidMoveRate float64   `json:"valid_move_rate"`
			Reasoning     float64   `json:"reasoning_score"`
			Runs          int       `json:"runs"`
			Games         int       `json:"games"`
			Updated       time.Time `json:"updated_at"`
		}
		err := db.QueryRow(ctx, `
            SELECT id, name, company,
                   COALESCE(ms_s,0), COALESCE(ms_i,0),
                   COALESCE(win_rate,0), COALESCE(valid_move_rate,0), COALESCE(reasoning_score,0),
                   COALESCE(runs,0), COALESCE(games,0), COALESCE(updated_at, now())
              FROM v_model_career WHERE id = $1
        `, modelID).Scan(&career.ModelID, &career.Model, &career.Company,
			&career.MSS, &career.MSI, &career.WinRate, &career.ValidMoveRate, &career.Reasoning,
			&career.Runs, &career.Games, &career.Updated)
		if err != nil {
			http.Error(w, err.Error(), 404)
			return
		}

		type R struct {
			RunID      int64      `json:"run_id"`
			Difficulty string     `json:"difficulty"`
			Games      int        `json:"games"`
			Wins       int        `json:"wins"`
			Coverage   float64    `json:"avg_coverage"`
			CreatedAt  time.Time  `json:"created_at"`
			EndedAt    *time.Time `json:"ended_at"`
		}
		rows, err := db.Query(ctx, `
            SELECT r.id, r.difficulty, r.games,
                   COALESCE(SUM(CASE WHEN g.won THEN 1 ELSE 0 END), 0)::int AS wins,
                   COALESCE(AVG(g.coverage_ratio), 0) AS avg_coverage,
                   r.created_at, r.ended_at
              FROM runs r
              LEFT JOIN game_results g ON g.run_id = r.id
             WHERE r.model_id = $1
             GROUP BY r.id
             ORDER BY r.id DESC
             LIMIT 100
        `, modelID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		defer rows.Close()
		var list []R
		for rows.Next() {
			var x R
			if err := rows.Scan(&x.RunID, &x.Difficulty, &x.Games, &x.Wins, &x.Coverage, &x.CreatedAt, &x.EndedAt); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			list = append(list, x)
		}
		writeJSON(w, map[string]any{"career": career, "runs": list})
	})

	// Full move log for a past run (replay).
	r.Get("/api/run-moves", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		runID, ok := queryID(w, req, "run_id")
		if !ok {
			return
		}
		rows, err := db.Query(ctx, `
            SELECT id, game_index, game_id, seq, action, target_row, target_col,
                   valid, message, revealed, flags, reasoning, created_at
              FROM move_logs
             WHERE run_id = $1
             ORDER BY id
        `, runID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		defer rows.Close()
		out := []moveRow{}
		for rows.Next() {
			var m moveRow
			if err := rows.Scan(&m.ID, &m.GameIndex, &m.GameID, &m.Seq, &m.Action, &m.Row, &m.Col,
				&m.Valid, &m.Message, &m.Revealed, &m.Flags, &m.Reasoning, &m.CreatedAt); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			out = append(out, m)
		}
		writeJSON(w, map[string]any{"rows": out})
	})

	// Live SSE stream of move logs for a given run_id.
	r.Get("/api/live", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		runID, ok := queryID(w, req, "run_id")
		if !ok {
			return
		}
		var sinceID int64
		if s := req.URL.Query().Get("since"); s != "" {
			if _, e := fmt.Sscan(s, &sinceID); e != nil {
				sinceID = 0
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, okF := w.(http.Flusher)
		if !okF {
			http.Error(w, "stream unsupported", 500)
			return
		}

		enc := json.NewEncoder(w)
		send := func(rows []moveRow) {
			for _, m := range rows {
				w.Write([]byte("event: move\n"))
				w.Write([]byte("data: "))
				_ = enc.Encode(m)
				w.Write([]byte("\n"))
			}
			flusher.Flush()
		}

		// tail loop
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := db.Query(ctx, `
                    SELECT id, game_index, game_id, seq, action, target_row, target_col,
                           valid, message, revealed, flags, reasoning, created_at
                      FROM move_logs
                     WHERE run_id = $1 AND id > $2
                     ORDER BY id
                `, runID, sinceID)
				if err != nil {
					return
				}
				var batch []moveRow
				for rows.Next() {
					var m moveRow
					if err := rows.Scan(&m.ID, &m.GameIndex, &m.GameID, &m.Seq, &m.Action, &m.Row, &m.Col,
						&m.Valid, &m.Message, &m.Revealed, &m.Flags, &m.Reasoning, &m.CreatedAt); err != nil {
						rows.Close()
						return
					}
					batch = append(batch, m)
					sinceID = m.ID
				}
				rows.Close()
				if len(batch) > 0 {
					send(batch)
				}
			}
		}
	})

	return r
}

type moveRow struct {
	ID        int64     `json:"id"`
	GameIndex int       `json:"game_index"`
	GameID    string    `json:"game_id"`
	Seq       int       `json:"seq"`
	Action    string    `json:"action"`
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Valid     bool      `json:"valid"`
	Message   string    `json:"message"`
	Revealed  int       `json:"revealed"`
	Flags     int       `json:"flags"`
	Reasoning *string   `json:"reasoning"`
	CreatedAt time.Time `json:"created_at"`
}

func serveRunBundle(db *store.DB, w http.ResponseWriter, req *http.Request, runID int64) {
	ctx := req.Context()

	type Run struct {
		ID         int64      `json:"id"`
		Model      string     `json:"model"`
		Company    string     `json:"company"`
		Difficulty string     `json:"difficulty"`
		Rows       int        `json:"rows"`
		Cols       int        `json:"cols"`
		Mines      int        `json:"mines"`
		Games      int        `json:"games"`
		SeedBase   int64      `json:"seed_base"`
		CreatedAt  time.Time  `json:"created_at"`
		EndedAt    *time.Time `json:"ended_at"`
	}
	type Game struct {
		GameIndex     int      `json:"game_index"`
		GameID        string   `json:"game_id"`
		BoardSeed     int64    `json:"board_seed"`
		Won           bool     `json:"won"`
		MovesTotal    int      `json:"moves_total"`
		MovesValid    int      `json:"moves_valid"`
		MinesTotal    int      `json:"mines_total"`
		MinesFlagged  int      `json:"mines_flagged"`
		FalseFlags    int      `json:"false_flags"`
		Coverage      float64  `json:"coverage_ratio"`
		Reasoning     *float64 `json:"reasoning_score"`
	}

	var run Run
	err := db.QueryRow(ctx, `
        SELECT id, name_snapshot, company_snapshot, difficulty,
               board_rows, board_cols, mines, games, seed_base, created_at, ended_at
          FROM runs WHERE id = $1
    `, runID).Scan(&run.ID, &run.Model, &run.Company, &run.Difficulty,
		&run.Rows, &run.Cols, &run.Mines, &run.Games, &run.SeedBase, &run.CreatedAt, &run.EndedAt)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	rows, err := db.Query(ctx, `
        SELECT game_index, game_id, board_seed, won,
               moves_total, moves_valid,
               mines_total, mines_flagged, false_flags,
               coverage_ratio, reasoning_score
          FROM game_results
         WHERE run_id = $1
         ORDER BY game_index
    `, runID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	games := []Game{}
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.GameIndex, &g.GameID, &g.BoardSeed, &g.Won,
			&g.MovesTotal, &g.MovesValid,
			&g.MinesTotal, &g.MinesFlagged, &g.FalseFlags,
			&g.Coverage, &g.Reasoning); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		games = append(games, g)
	}
	writeJSON(w, map[string]any{"run": run, "games": games})
}

func queryID(w http.ResponseWriter, req *http.Request, key string) (int64, bool) {
	s := req.URL.Query().Get(key)
	if s == "" {
		http.Error(w, "missing "+key, 400)
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscan(s, &id); err != nil || id <= 0 {
		http.Error(w, "bad "+key, 400)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
