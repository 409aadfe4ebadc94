package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
	"github.com/okian/paddle/internal/domain/replay"
)

// File names inside a CSV store directory.
const (
	csvGameLog     = "game_log.csv"
	csvGameIDs     = "game_ids.csv"
	csvPlayers     = "players.csv"
	csvLeaderboard = "leaderboard.csv"
	csvRevision    = "revision"
	csvRevPrefix   = "rev-"
)

var (
	gameLogHeader     = []string{"Timestamp", "P1_Name", "P1_Score", "P2_Name", "P2_Score"}
	leaderboardHeader = []string{"Rank", "Player", "Composite Z-Score", "ELO Rating", "Z(ELO Rating)",
		"Avg Opp ELO", "Z(Avg Opp ELO)", "Win %", "Z(Win %)", "Wins", "Losses"}
)

// CSVStore keeps the ledger as a spreadsheet-style game log: one row per
// game followed by every player's rating after it, headed by an initial
// baseline row. Revision N lives in its own rev-N directory; the revision
// file names the live one and is swapped by rename only after every file of
// the next revision is written, so a failed save leaves N readable.
type CSVStore struct {
	mu  sync.Mutex
	dir string

	// beforeWrite, when set, runs before each staged file is written.
	beforeWrite func(name string) error
}

// NewCSVStore uses dir, creating it if needed.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *CSVStore) load() (*ledger.Ledger, error) {
	rev, err := s.revision()
	if err != nil {
		return nil, err
	}
	l := ledger.New()
	l.Revision = rev
	if rev == 0 {
		return l, nil
	}
	data := s.revDir(rev)
	if _, err := os.Stat(data); err != nil {
		return nil, fmt.Errorf("%w: revision %d: %v", ErrCorrupt, rev, err)
	}

	players, err := read(data, csvPlayers)
	if err != nil {
		return nil, err
	}
	for i, rec := range skipHeader(players) {
		if len(rec) != 2 {
			return nil, fmt.Errorf("%w: %s line %d", ErrCorrupt, csvPlayers, i+2)
		}
		at, err := time.Parse(time.RFC3339Nano, rec[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, csvPlayers, i+2, err)
		}
		l.Players = append(l.Players, ledger.Player{Name: rec[0], RegisteredAt: at})
	}

	log, err := read(data, csvGameLog)
	if err != nil {
		return nil, err
	}
	if len(log) == 0 {
		return l, nil
	}
	if len(log[0]) < len(gameLogHeader) || !slices.Equal(log[0][len(gameLogHeader):], l.PlayerNames()) {
		return nil, fmt.Errorf("%w: %s columns do not match %s", ErrCorrupt, csvGameLog, csvPlayers)
	}
	ids, err := read(data, csvGameIDs)
	if err != nil {
		return nil, err
	}
	ids = skipHeader(ids)

	// The first data row is the baseline row and carries no game.
	rows := log[1:]
	if len(rows) > 0 && len(rows[0]) > 1 && rows[0][1] == "" {
		rows = rows[1:]
	}
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("%w: %d game ids for %d games", ErrCorrupt, len(ids), len(rows))
	}
	for i, rec := range rows {
		g, err := parseGameRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s game %d: %v", ErrCorrupt, csvGameLog, i+1, err)
		}
		g.ID = ids[i][0]
		l.Games = append(l.Games, g)
	}
	return l, nil
}

func parseGameRow(rec []string) (ledger.GameRecord, error) {
	if len(rec) < len(gameLogHeader) {
		return ledger.GameRecord{}, errors.New("short row")
	}
	ts, err := time.Parse(time.RFC3339Nano, rec[0])
	if err != nil {
		return ledger.GameRecord{}, err
	}
	s1, err := strconv.Atoi(rec[2])
	if err != nil {
		return ledger.GameRecord{}, err
	}
	s2, err := strconv.Atoi(rec[4])
	if err != nil {
		return ledger.GameRecord{}, err
	}
	return ledger.GameRecord{Timestamp: ts, Player1: rec[1], Score1: s1, Player2: rec[3], Score2: s2}, nil
}

func (s *CSVStore) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := replay.Replay(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rev, err := s.revision()
	if err != nil {
		return err
	}
	if rev != l.Revision {
		return ErrConflict
	}

	players := [][]string{{"Player", "Registered_At"}}
	for _, p := range l.Players {
		players = append(players, []string{p.Name, p.RegisteredAt.Format(time.RFC3339Nano)})
	}

	names := l.PlayerNames()
	header := append(slices.Clone(gameLogHeader), names...)
	log := [][]string{header}
	ids := [][]string{{"Game_ID"}}
	for row := range snap.Rows() {
		rec := make([]string, len(header))
		if row > 0 {
			g := l.Games[row-1]
			rec[0] = g.Timestamp.Format(time.RFC3339Nano)
			rec[1], rec[2] = g.Player1, strconv.Itoa(g.Score1)
			rec[3], rec[4] = g.Player2, strconv.Itoa(g.Score2)
			ids = append(ids, []string{g.ID})
		}
		for i, p := range names {
			r, _ := snap.Rating(p, row)
			rec[len(gameLogHeader)+i] = strconv.Itoa(r)
		}
		log = append(log, rec)
	}

	lb := [][]string{leaderboardHeader}
	for _, e := range board.Entries {
		lb = append(lb, []string{
			strconv.Itoa(e.Rank), e.Player, fmtFloat(e.Composite),
			strconv.Itoa(e.Rating), fmtFloat(e.ZRating),
			fmtFloat(e.AvgOpponentRating), fmtFloat(e.ZAvgOpponentRating),
			fmtFloat(e.WinPct), fmtFloat(e.ZWinPct),
			strconv.Itoa(e.Wins), strconv.Itoa(e.Losses),
		})
	}

	next := rev + 1
	stage := s.revDir(next)
	// A leftover directory for next belongs to a save that never committed.
	if err := os.RemoveAll(stage); err != nil {
		return err
	}
	if err := os.Mkdir(stage, 0o755); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(stage)
		}
	}()

	for _, f := range []struct {
		name string
		recs [][]string
	}{
		{csvPlayers, players},
		{csvGameIDs, ids},
		{csvGameLog, log},
		{csvLeaderboard, lb},
	} {
		if err := s.write(stage, f.name, f.recs); err != nil {
			return err
		}
	}
	if err := syncDir(stage); err != nil {
		return err
	}
	// Swapping the revision file is the commit point.
	if err := replace(s.dir, csvRevision, []byte(strconv.FormatUint(next, 10)+"\n")); err != nil {
		return err
	}
	committed = true
	l.Revision = next
	if rev > 0 {
		_ = os.RemoveAll(s.revDir(rev))
	}
	return nil
}

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) revision() (uint64, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, csvRevision))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	rev, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: revision: %v", ErrCorrupt, err)
	}
	return rev, nil
}

func (s *CSVStore) revDir(rev uint64) string {
	return filepath.Join(s.dir, csvRevPrefix+strconv.FormatUint(rev, 10))
}

func read(dir, name string) ([][]string, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return recs, nil
}

func (s *CSVStore) write(dir, name string, recs [][]string) error {
	if s.beforeWrite != nil {
		if err := s.beforeWrite(name); err != nil {
			return err
		}
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.WriteAll(recs); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return replace(dir, name, []byte(b.String()))
}

func replace(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func skipHeader(recs [][]string) [][]string {
	if len(recs) == 0 {
		return nil
	}
	return recs[1:]
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
