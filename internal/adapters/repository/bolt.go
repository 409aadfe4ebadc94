package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

var (
	boltPlayers     = []byte("players")
	boltGames       = []byte("games")
	boltLeaderboard = []byte("leaderboard")
	boltMeta        = []byte("meta")
	boltRevision    = []byte("revision")
)

// BoltStore keeps the ledger in a bolt file. Players, games and leaderboard
// entries are JSON values under big-endian sequence keys, so a cursor walk
// returns them in ledger order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{boltPlayers, boltGames, boltLeaderboard, boltMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("unable to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := ledger.New()
	err := s.db.View(func(tx *bolt.Tx) error {
		l.Revision = boltReadRevision(tx)
		err := tx.Bucket(boltPlayers).ForEach(func(_, v []byte) error {
			var p ledger.Player
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("%w: player: %v", ErrCorrupt, err)
			}
			l.Players = append(l.Players, p)
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(boltGames).ForEach(func(_, v []byte) error {
			var g ledger.GameRecord
			if err := json.Unmarshal(v, &g); err != nil {
				return fmt.Errorf("%w: game: %v", ErrCorrupt, err)
			}
			l.Games = append(l.Games, g)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *BoltStore) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		rev := boltReadRevision(tx)
		if rev != l.Revision {
			return ErrConflict
		}
		if err := boltRewrite(tx, boltPlayers, len(l.Players), func(i int) any { return l.Players[i] }); err != nil {
			return err
		}
		if err := boltRewrite(tx, boltGames, len(l.Games), func(i int) any { return l.Games[i] }); err != nil {
			return err
		}
		if err := boltRewrite(tx, boltLeaderboard, len(board.Entries), func(i int) any { return board.Entries[i] }); err != nil {
			return err
		}
		next = rev + 1
		return tx.Bucket(boltMeta).Put(boltRevision, itob(next))
	})
	if err != nil {
		return err
	}
	l.Revision = next
	return nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("unable to close database: %w", err)
	}
	return nil
}

func boltReadRevision(tx *bolt.Tx) uint64 {
	v := tx.Bucket(boltMeta).Get(boltRevision)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

// boltRewrite replaces bucket name with n JSON values keyed 1..n.
func boltRewrite(tx *bolt.Tx, name []byte, n int, at func(int) any) error {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return fmt.Errorf("unable to clear bucket %s: %w", name, err)
	}
	b, err := tx.CreateBucket(name)
	if err != nil {
		return fmt.Errorf("unable to create bucket %s: %w", name, err)
	}
	for i := range n {
		data, err := json.Marshal(at(i))
		if err != nil {
			return fmt.Errorf("unable to marshal %s value: %w", name, err)
		}
		if err := b.Put(itob(uint64(i+1)), data); err != nil {
			return fmt.Errorf("unable to put %s value: %w", name, err)
		}
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
