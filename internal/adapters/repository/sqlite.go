package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS players (
	seq           INTEGER NOT NULL PRIMARY KEY,
	name          TEXT    NOT NULL UNIQUE,
	registered_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS games (
	seq     INTEGER NOT NULL PRIMARY KEY,
	id      TEXT    NOT NULL UNIQUE,
	ts      DATETIME NOT NULL,
	player1 TEXT    NOT NULL,
	score1  INTEGER NOT NULL,
	player2 TEXT    NOT NULL,
	score2  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS leaderboard (
	position              INTEGER NOT NULL PRIMARY KEY,
	player                TEXT    NOT NULL,
	rank                  INTEGER NOT NULL,
	composite             REAL    NOT NULL,
	rating                INTEGER NOT NULL,
	z_rating              REAL    NOT NULL,
	avg_opponent_rating   REAL    NOT NULL,
	z_avg_opponent_rating REAL    NOT NULL,
	win_pct               REAL    NOT NULL,
	z_win_pct             REAL    NOT NULL,
	wins                  INTEGER NOT NULL,
	losses                INTEGER NOT NULL,
	games                 INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	id       INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
	revision INTEGER NOT NULL
);
INSERT OR IGNORE INTO meta (id, revision) VALUES (1, 0);
`

func init() { //nolint:gochecknoinits // named queries need the driver's bind style
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteStore keeps the ledger in a SQLite file through sqlx and the pure-Go
// modernc driver.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to set pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	l := ledger.New()
	if err := tx.GetContext(ctx, &l.Revision, `SELECT revision FROM meta WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("unable to read revision: %w", err)
	}
	var players []playerRow
	if err := tx.SelectContext(ctx, &players, `SELECT seq, name, registered_at FROM players ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("unable to select players: %w", err)
	}
	var games []gameRow
	if err := tx.SelectContext(ctx, &games, `SELECT seq, id, ts, player1, score1, player2, score2 FROM games ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("unable to select games: %w", err)
	}
	for _, p := range players {
		l.Players = append(l.Players, p.player())
	}
	for _, g := range games {
		l.Games = append(l.Games, g.game())
	}
	return l, nil
}

func (s *SQLiteStore) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `UPDATE meta SET revision = ? WHERE id = 1 AND revision = ?`, l.Revision+1, l.Revision)
	if err != nil {
		return fmt.Errorf("unable to bump revision: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConflict
	}

	for _, q := range []string{`DELETE FROM players`, `DELETE FROM games`, `DELETE FROM leaderboard`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("unable to clear tables: %w", err)
		}
	}
	for _, p := range playerRows(l) {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO players (seq, name, registered_at) VALUES (:seq, :name, :registered_at)`, p); err != nil {
			return fmt.Errorf("unable to insert player: %w", err)
		}
	}
	for _, g := range gameRows(l) {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO games (seq, id, ts, player1, score1, player2, score2)
			VALUES (:seq, :id, :ts, :player1, :score1, :player2, :score2)`, g); err != nil {
			return fmt.Errorf("unable to insert game: %w", err)
		}
	}
	for _, e := range entryRows(board) {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO leaderboard (position, player, rank, composite, rating, z_rating,
			avg_opponent_rating, z_avg_opponent_rating, win_pct, z_win_pct, wins, losses, games)
			VALUES (:position, :player, :rank, :composite, :rating, :z_rating,
			:avg_opponent_rating, :z_avg_opponent_rating, :win_pct, :z_win_pct, :wins, :losses, :games)`, e); err != nil {
			return fmt.Errorf("unable to insert leaderboard entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit transaction: %w", err)
	}
	l.Revision++
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("unable to close database: %w", err)
	}
	return nil
}
