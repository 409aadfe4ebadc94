package repository

import (
	"context"
	"sync"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

// MemoryStore keeps the ledger in process. Values are deep-copied in and
// out, so callers never share slices with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	ledger   *ledger.Ledger
	board    ranking.Board
	revision uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledger: ledger.New()}
}

func (s *MemoryStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.ledger.Clone()
	l.Revision = s.revision
	return l, nil
}

func (s *MemoryStore) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Revision != s.revision {
		return ErrConflict
	}
	s.revision++
	s.ledger = l.Clone()
	s.board = board.Clone()
	l.Revision = s.revision
	return nil
}

// Board returns the last saved leaderboard.
func (s *MemoryStore) Board() ranking.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board.Clone()
}

func (s *MemoryStore) Close() error { return nil }
