package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS players (
	seq           INTEGER     NOT NULL PRIMARY KEY,
	name          TEXT        NOT NULL UNIQUE,
	registered_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS games (
	seq     INTEGER     NOT NULL PRIMARY KEY,
	id      TEXT        NOT NULL UNIQUE,
	ts      TIMESTAMPTZ NOT NULL,
	player1 TEXT        NOT NULL,
	score1  INTEGER     NOT NULL,
	player2 TEXT        NOT NULL,
	score2  INTEGER     NOT NULL
);
CREATE TABLE IF NOT EXISTS leaderboard (
	position              INTEGER          NOT NULL PRIMARY KEY,
	player                TEXT             NOT NULL,
	rank                  INTEGER          NOT NULL,
	composite             DOUBLE PRECISION NOT NULL,
	rating                INTEGER          NOT NULL,
	z_rating              DOUBLE PRECISION NOT NULL,
	avg_opponent_rating   DOUBLE PRECISION NOT NULL,
	z_avg_opponent_rating DOUBLE PRECISION NOT NULL,
	win_pct               DOUBLE PRECISION NOT NULL,
	z_win_pct             DOUBLE PRECISION NOT NULL,
	wins                  INTEGER          NOT NULL,
	losses                INTEGER          NOT NULL,
	games                 INTEGER          NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	id       INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
	revision BIGINT  NOT NULL
);
INSERT INTO meta (id, revision) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`

// PostgresStore keeps the ledger in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects with dsn and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only

	l := ledger.New()
	var rev int64
	if err := tx.QueryRow(ctx, `SELECT revision FROM meta WHERE id = 1`).Scan(&rev); err != nil {
		return nil, fmt.Errorf("read revision: %w", err)
	}
	l.Revision = uint64(rev)

	rows, err := tx.Query(ctx, `SELECT name, registered_at FROM players ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var r playerRow
		if err := rows.Scan(&r.Name, &r.RegisteredAt); err != nil {
			rows.Close()
			return nil, err
		}
		l.Players = append(l.Players, r.player())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT id, ts, player1, score1, player2, score2 FROM games ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r gameRow
		if err := rows.Scan(&r.ID, &r.Ts, &r.Player1, &r.Score1, &r.Player2, &r.Score2); err != nil {
			return nil, err
		}
		l.Games = append(l.Games, r.game())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `UPDATE meta SET revision = $1 WHERE id = 1 AND revision = $2`, int64(l.Revision+1), int64(l.Revision))
	if err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `TRUNCATE players, games, leaderboard`); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}

	players := playerRows(l)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"players"}, []string{"seq", "name", "registered_at"},
		pgx.CopyFromSlice(len(players), func(i int) ([]any, error) {
			p := players[i]
			return []any{p.Seq, p.Name, p.RegisteredAt}, nil
		})); err != nil {
		return fmt.Errorf("copy players: %w", err)
	}

	games := gameRows(l)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"games"}, []string{"seq", "id", "ts", "player1", "score1", "player2", "score2"},
		pgx.CopyFromSlice(len(games), func(i int) ([]any, error) {
			g := games[i]
			return []any{g.Seq, g.ID, g.Ts, g.Player1, g.Score1, g.Player2, g.Score2}, nil
		})); err != nil {
		return fmt.Errorf("copy games: %w", err)
	}

	entries := entryRows(board)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"leaderboard"},
		[]string{"position", "player", "rank", "composite", "rating", "z_rating", "avg_opponent_rating",
			"z_avg_opponent_rating", "win_pct", "z_win_pct", "wins", "losses", "games"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{e.Position, e.Player, e.Rank, e.Composite, e.Rating, e.ZRating, e.AvgOpponentRating,
				e.ZAvgOpponentRating, e.WinPct, e.ZWinPct, e.Wins, e.Losses, e.Games}, nil
		})); err != nil {
		return fmt.Errorf("copy leaderboard: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.Revision++
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
