package service

import (
	"fmt"
	"time"

	"github.com/okian/paddle/internal/adapters/repository"
	"github.com/okian/paddle/internal/config"
	"github.com/okian/paddle/internal/domain/ranking"
	"github.com/okian/paddle/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ledger writers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending write commands.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSaveRetries sets how many times a conflicted write is retried.
func WithSaveRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.saveRetries = n
		}
	}
}

// WithStore uses an already opened store. The service does not close it.
func WithStore(driver string, store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.storeDriver = driver
			s.ownsStore = false
		}
	}
}

// WithStoreDriver makes Start open the named store with opts. The service
// closes it on Stop.
func WithStoreDriver(driver string, opts ...repository.Option) Option {
	return func(s *Service) {
		if driver != "" {
			s.store = nil
			s.storeDriver = driver
			s.storeOpts = opts
			s.ownsStore = true
		}
	}
}

// WithMetrics sets the metrics averaged into the composite score.
func WithMetrics(metrics ...ranking.Metric) Option {
	return func(s *Service) {
		if len(metrics) > 0 {
			s.metrics = metrics
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for registration and submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// OptionsFromConfig maps cfg onto service options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	metrics, err := ranking.ParseMetrics(cfg.Metrics())
	if err != nil {
		return nil, fmt.Errorf("leaderboard metrics: %w", err)
	}

	var storeOpts []repository.Option
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		storeOpts = append(storeOpts, repository.WithDSN(cfg.StoreDSN))
	case config.DriverRedis:
		storeOpts = append(storeOpts, repository.WithRedis(cfg.RedisAddr, cfg.RedisKey))
	default:
		storeOpts = append(storeOpts, repository.WithPath(cfg.StorePath))
	}

	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.CommandQueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithSaveRetries(cfg.SaveRetries),
		WithMetrics(metrics...),
		WithStoreDriver(cfg.StoreDriver, storeOpts...),
	}, nil
}
