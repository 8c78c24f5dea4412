package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS client_game_results (
    game_id      TEXT        NOT NULL,
    viewer       TEXT        NOT NULL,
    white_name   TEXT        NOT NULL DEFAULT '',
    black_name   TEXT        NOT NULL DEFAULT '',
    result       TEXT        NOT NULL,
    status       TEXT        NOT NULL,
    outcome      TEXT        NOT NULL,
    final_fen    TEXT        NOT NULL DEFAULT '',
    last_move    TEXT        NOT NULL DEFAULT '',
    last_move_at TEXT        NOT NULL DEFAULT '',
    pgn          TEXT        NOT NULL DEFAULT '',
    finished_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (game_id, viewer)
)`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens DATABASE_URL, pings it and creates the table if needed.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create client_game_results: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) SaveResult(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	q := `INSERT INTO client_game_results (
        game_id, viewer, white_name, black_name, result, status, outcome,
        final_fen, last_move, last_move_at, pgn, finished_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
      ON CONFLICT (game_id, viewer) DO UPDATE SET
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        result=EXCLUDED.result,
        status=EXCLUDED.status,
        outcome=EXCLUDED.outcome,
        final_fen=EXCLUDED.final_fen,
        last_move=EXCLUDED.last_move,
        last_move_at=EXCLUDED.last_move_at,
        pgn=EXCLUDED.pgn,
        finished_at=EXCLUDED.finished_at`
	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.Viewer, rec.White, rec.Black,
		rec.Result, rec.Status, string(rec.Outcome),
		rec.FinalFEN, rec.LastMove, rec.LastMoveAt, rec.PGN, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", rec.GameID, err)
	}
	return nil
}

func (r *PostgresRepository) Recent(ctx context.Context, viewer string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
        game_id, viewer, white_name, black_name, result, status, outcome,
        final_fen, last_move, last_move_at, pgn, finished_at
      FROM client_game_results
      WHERE viewer = $1
      ORDER BY finished_at DESC, game_id DESC
      LIMIT $2`, viewer, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			outcome string
		)
		if err := rows.Scan(
			&rec.GameID, &rec.Viewer, &rec.White, &rec.Black, &rec.Result, &rec.Status, &outcome,
			&rec.FinalFEN, &rec.LastMove, &rec.LastMoveAt, &rec.PGN, &rec.FinishedAt,
		); err != nil {
			return nil, err
		}
		rec.Outcome = chessdto.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}
