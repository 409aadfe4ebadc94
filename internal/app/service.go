// Package service wires the ledger store, the write queue and the rating
// core into the operations served by the HTTP, site and MCP adapters.
//
// Writes become commands applied by the worker pool: load, apply, replay,
// project, save. Reads load the ledger and compute on the caller's goroutine.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/paddle/internal/adapters/mq/queue"
	workerpool "github.com/okian/paddle/internal/adapters/mq/worker"
	"github.com/okian/paddle/internal/adapters/repository"
	"github.com/okian/paddle/internal/domain/dedupe"
	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/model"
	"github.com/okian/paddle/internal/domain/ranking"
	"github.com/okian/paddle/internal/domain/replay"
	"github.com/okian/paddle/internal/domain/types"
	"github.com/okian/paddle/internal/domain/whatif"
	"github.com/okian/paddle/pkg/logger"
	"github.com/okian/paddle/pkg/metrics"
)

// Service implements the ledger operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	projector *ranking.Projector
	simulator *whatif.Simulator
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool

	// Configuration
	storeDriver string
	storeOpts   []repository.Option
	ownsStore   bool
	workerCount int
	queueSize   int
	dedupeSize  int
	saveRetries int
	metrics     []ranking.Metric
	now         func() time.Time

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc

	// inflight holds submission ids claimed but not yet applied; the
	// channel closes once the worker is done with the submission.
	inflightMu sync.Mutex
	inflight   map[string]chan struct{}

	processed  atomic.Int64
	conflicts  atomic.Int64
	duplicates atomic.Int64

	logger logger.Logger
}

// New constructs a Service. Without a store option it keeps the ledger in
// memory.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver: repository.DriverMemory,
		ownsStore:   true,
		workerCount: 1,
		queueSize:   1024,
		dedupeSize:  50_000,
		saveRetries: 3,
		metrics:     ranking.AllMetrics,
		now:         time.Now,
		inflight:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.projector = ranking.New(ranking.WithMetrics(s.metrics...))
	s.simulator = whatif.New(whatif.WithProjector(s.projector))
	return s
}

// Start opens the store, seeds submission ids from the ledger and starts the
// worker pool. Workers outlive ctx; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting ledger service...", logger.String("store", s.storeDriver))

	if s.store == nil {
		store, err := repository.Open(ctx, s.storeDriver, s.storeOpts...)
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.storeDriver, err)
		}
		s.store = store
	}

	l, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("stored ledger: %w", err)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	ids := make([]string, 0, len(l.Games))
	for _, g := range l.Games {
		ids = append(ids, g.ID)
	}
	s.deduper.Seed(ctx, ids...)
	metrics.UpdateLedgerSize(len(l.Players), len(l.Games))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, applier{s})
	s.pool.Start(runCtx)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "ledger service started",
		logger.Int("players", len(l.Players)),
		logger.Int("games", len(l.Games)),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains pending writes and shuts the service down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ledger service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()

	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing store", logger.Error(err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "ledger service stopped")
}

// components returns the running store and queue.
func (s *Service) components() (repository.Store, *eventqueue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.queue, nil
}

// RegisterPlayer adds name to the ledger.
func (s *Service) RegisterPlayer(ctx context.Context, name string) error {
	cmd := model.NewRegisterPlayer(name, s.now().UTC())
	_, err := s.submit(ctx, cmd)
	return err
}

// SubmitGame records a game. A game whose ID was already submitted is not
// applied again; duplicate is then true. A blank ID gets a fresh one. While
// an earlier submission of the same ID is still being applied, SubmitGame
// waits for its outcome, so a rejected first attempt is never reported as a
// recorded duplicate.
func (s *Service) SubmitGame(ctx context.Context, g ledger.GameRecord) (game types.Game, duplicate bool, err error) {
	_, _, err = s.components()
	if err != nil {
		return types.Game{}, false, err
	}
	g.Player1, g.Player2 = ledger.CleanName(g.Player1), ledger.CleanName(g.Player2)
	cmd := model.NewSubmitGame(g, s.now().UTC())
	id := cmd.Game.ID

	for {
		dup, pending := s.claim(ctx, id)
		if !dup {
			break
		}
		if pending == nil {
			s.duplicates.Add(1)
			metrics.RecordSubmission(metrics.SubmissionDuplicate)
			s.logger.Debug(ctx, "duplicate submission detected, skipping", logger.String("game", id))
			return types.NewGame(cmd.Game), true, nil
		}
		select {
		case <-pending:
		case <-ctx.Done():
			return types.Game{}, false, ctx.Err()
		}
	}

	if err := s.enqueue(ctx, cmd); err != nil {
		s.settle(ctx, id, true)
		metrics.RecordSubmission(metrics.SubmissionRejected)
		return types.Game{}, false, err
	}
	reply, err := cmd.Wait(ctx)
	if err != nil {
		metrics.RecordSubmission(metrics.SubmissionRejected)
		return types.Game{}, false, err
	}
	if reply.Duplicate {
		s.duplicates.Add(1)
		metrics.RecordSubmission(metrics.SubmissionDuplicate)
		return types.NewGame(cmd.Game), true, nil
	}
	metrics.RecordSubmission(metrics.SubmissionAccepted)
	return types.NewGame(reply.Game), false, nil
}

// claim reserves id for the caller. When id is already taken, pending is
// the completion channel of the submission still applying it, or nil when
// it is settled.
func (s *Service) claim(ctx context.Context, id string) (duplicate bool, pending <-chan struct{}) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if !s.deduper.Claim(ctx, id) {
		s.inflight[id] = make(chan struct{})
		return false, nil
	}
	if ch, ok := s.inflight[id]; ok {
		return true, ch
	}
	return true, nil
}

// settle wakes every caller waiting on id. release also forgets id so the
// next caller may apply it; both happen under one lock so a new claim never
// overlaps the old one.
func (s *Service) settle(ctx context.Context, id string, release bool) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if release {
		s.deduper.Release(ctx, id)
	}
	if ch, ok := s.inflight[id]; ok {
		close(ch)
		delete(s.inflight, id)
	}
}

// submit enqueues cmd and waits for its reply.
func (s *Service) submit(ctx context.Context, cmd model.Command) (model.Reply, error) { //nolint:gocritic // hugeParam: commands travel by value
	if err := s.enqueue(ctx, cmd); err != nil {
		return model.Reply{}, err
	}
	return cmd.Wait(ctx)
}

func (s *Service) enqueue(ctx context.Context, cmd model.Command) error { //nolint:gocritic // hugeParam: commands travel by value
	_, q, err := s.components()
	if err != nil {
		return err
	}
	switch err := q.Enqueue(ctx, cmd); {
	case errors.Is(err, eventqueue.ErrFull):
		return ErrBackpressure
	case errors.Is(err, eventqueue.ErrClosed):
		return ErrNotStarted
	case err != nil:
		return err
	}
	return nil
}

// applier runs commands for the worker pool.
type applier struct{ s *Service }

// Apply performs load, apply, replay, project and save for one command,
// reloading and retrying when the save hits a revision conflict.
func (a applier) Apply(ctx context.Context, cmd model.Command) model.Reply { //nolint:gocritic // hugeParam: commands travel by value
	s := a.s
	reply := s.apply(ctx, cmd)
	if cmd.Kind == model.KindSubmitGame {
		s.settle(ctx, cmd.Game.ID, reply.Err != nil)
	}
	return reply
}

func (s *Service) apply(ctx context.Context, cmd model.Command) model.Reply { //nolint:gocritic // hugeParam: commands travel by value
	for attempt := 1; ; attempt++ {
		l, err := s.store.Load(ctx)
		if err != nil {
			return model.Reply{Err: fmt.Errorf("load ledger: %w", err), Attempts: attempt}
		}
		next, duplicate, err := cmd.Apply(l)
		if err != nil {
			return model.Reply{Err: err, Attempts: attempt}
		}
		if duplicate {
			return model.Reply{Ledger: l, Duplicate: true, Game: cmd.Game, Attempts: attempt}
		}

		_, board, err := s.compute(ctx, next)
		if err != nil {
			return model.Reply{Err: err, Attempts: attempt}
		}

		err = s.store.Save(ctx, next, board)
		if errors.Is(err, repository.ErrConflict) {
			s.conflicts.Add(1)
			if attempt <= s.saveRetries {
				metrics.RecordCommandRetry()
				s.logger.Warn(ctx, "revision conflict, retrying",
					logger.String("command", cmd.ID),
					logger.Int("attempt", attempt),
				)
				continue
			}
			s.logger.Warn(ctx, "revision conflict, giving up",
				logger.String("command", cmd.ID),
				logger.Int("attempts", attempt),
			)
			return model.Reply{Err: err, Attempts: attempt}
		}
		if err != nil {
			return model.Reply{Err: fmt.Errorf("save ledger: %w", err), Attempts: attempt}
		}

		s.processed.Add(1)
		metrics.UpdateLedgerSize(len(next.Players), len(next.Games))
		reply := model.Reply{Ledger: next, Board: board, Attempts: attempt}
		if cmd.Kind == model.KindSubmitGame {
			reply.Game = next.Games[len(next.Games)-1]
		}
		return reply
	}
}

// compute replays l and projects the leaderboard.
func (s *Service) compute(ctx context.Context, l *ledger.Ledger) (*replay.Snapshot, ranking.Board, error) {
	start := time.Now()
	snap, err := s.projector.Engine().Replay(l)
	if err != nil {
		return nil, ranking.Board{}, err
	}
	metrics.RecordReplay(time.Since(start))

	start = time.Now()
	board, err := s.projector.Project(l, snap)
	if err != nil {
		return nil, ranking.Board{}, err
	}
	metrics.RecordProjection(time.Since(start))

	for _, m := range board.Degenerate {
		metrics.RecordDegenerateMetric(string(m))
		s.logger.Debug(ctx, "metric z-scores zeroed",
			logger.String("metric", string(m)),
			logger.Error(ranking.ErrDegenerateStatistics),
		)
	}
	return snap, board, nil
}

// state loads the ledger and derives its snapshot and board.
func (s *Service) state(ctx context.Context) (*ledger.Ledger, *replay.Snapshot, ranking.Board, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, nil, ranking.Board{}, err
	}
	l, err := store.Load(ctx)
	if err != nil {
		return nil, nil, ranking.Board{}, fmt.Errorf("load ledger: %w", err)
	}
	snap, board, err := s.compute(ctx, l)
	if err != nil {
		return nil, nil, ranking.Board{}, err
	}
	return l, snap, board, nil
}

// Leaderboard returns up to limit ranked entries; limit <= 0 returns all.
func (s *Service) Leaderboard(ctx context.Context, limit int) (types.Leaderboard, error) {
	_, _, board, err := s.state(ctx)
	if err != nil {
		return types.Leaderboard{}, err
	}
	return types.NewLeaderboard(board, limit), nil
}

// Rank returns the leaderboard entry for player.
func (s *Service) Rank(ctx context.Context, player string) (types.Entry, error) {
	_, _, board, err := s.state(ctx)
	if err != nil {
		return types.Entry{}, err
	}
	player = ledger.CleanName(player)
	e, ok := board.Find(player)
	if !ok {
		return types.Entry{}, fmt.Errorf("%w: %q", ledger.ErrUnknownPlayer, player)
	}
	return types.NewEntry(e), nil
}

// Player returns player's entry, rating history and games.
func (s *Service) Player(ctx context.Context, player string) (types.Player, error) {
	l, snap, board, err := s.state(ctx)
	if err != nil {
		return types.Player{}, err
	}
	player = ledger.CleanName(player)
	p, ok := types.NewPlayer(l, snap, board, player)
	if !ok {
		return types.Player{}, fmt.Errorf("%w: %q", ledger.ErrUnknownPlayer, player)
	}
	return p, nil
}

// Players returns registered names, sorted.
func (s *Service) Players(ctx context.Context) ([]string, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	l, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	names := l.PlayerNames()
	slices.Sort(names)
	return names, nil
}

// RecentGames returns up to n games, most recent first.
func (s *Service) RecentGames(ctx context.Context, n int) ([]types.Game, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	l, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return types.NewGames(l.Recent(n)), nil
}

// Snapshot returns the full rating table.
func (s *Service) Snapshot(ctx context.Context) (types.Snapshot, error) {
	_, snap, _, err := s.state(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}
	return types.NewSnapshot(snap), nil
}

// Simulate projects both outcomes of a game between a and b. Nothing is
// written.
func (s *Service) Simulate(ctx context.Context, a, b string) (types.WhatIf, error) {
	start := time.Now()
	l, _, board, err := s.state(ctx)
	if err != nil {
		return types.WhatIf{}, err
	}
	res, err := s.simulator.Simulate(ctx, l, board, a, b)
	if err != nil {
		return types.WhatIf{}, err
	}
	metrics.RecordWhatIf(time.Since(start))
	return types.NewWhatIf(res), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	started, store, q := s.started, s.store, s.queue
	stats := types.Stats{
		Workers:     s.workerCount,
		StoreDriver: s.storeDriver,
		Processed:   s.processed.Load(),
		Conflicts:   s.conflicts.Load(),
		Duplicates:  s.duplicates.Load(),
	}
	if started {
		stats.UptimeSeconds = s.now().Sub(s.startedAt).Seconds()
		stats.Dedupe = s.deduper.Size()
	}
	s.mu.RUnlock()

	if !started {
		return stats
	}
	stats.Started = true
	stats.QueueSize = q.Len()
	stats.QueueCapacity = q.Cap()
	if l, err := store.Load(ctx); err == nil {
		stats.Players = len(l.Players)
		stats.Games = len(l.Games)
		stats.Revision = l.Revision
	} else {
		s.logger.Warn(ctx, "stats: load ledger", logger.Error(err))
	}
	metrics.UpdateQueueSize(stats.QueueSize)
	return stats
}

// Health reports whether the service can read its store.
func (s *Service) Health(ctx context.Context) error {
	store, _, err := s.components()
	if err != nil {
		return err
	}
	_, err = store.Load(ctx)
	return err
}
