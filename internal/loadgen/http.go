package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/paddle/pkg/logger"
)

// HTTPClient talks to the league API.
type HTTPClient struct {
	client *http.Client
	base   string
}

func newHTTPClient(base string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimRight(base, "/"),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// getJSON decodes a 200 response from path into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	status, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: GET %s: %d %s", ErrUnexpectedStatus, path, status, bytes.TrimSpace(raw))
	}
	return json.Unmarshal(raw, v)
}

// postWithRetry posts body, backing off while the server reports backpressure.
// It returns the final status and the number of 429 responses seen.
func (c *HTTPClient) postWithRetry(ctx context.Context, path string, body any) (status int, raw []byte, throttled int, err error) {
	backoff := backpressureBackoff
	for attempt := 0; ; attempt++ {
		status, raw, err = c.do(ctx, http.MethodPost, path, body)
		if err != nil || status != http.StatusTooManyRequests || attempt == maxBackpressureRetries {
			return status, raw, throttled, err
		}
		throttled++
		select {
		case <-ctx.Done():
			return status, raw, throttled, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// registerPlayers registers names with up to workers requests in flight.
func registerPlayers(ctx context.Context, c *HTTPClient, names []string, workers int, stats *Stats) error {
	logger.Get().Info(ctx, "registering players", logger.Int("players", len(names)))
	var throttled atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range names {
		g.Go(func() error {
			status, raw, n, err := c.postWithRetry(ctx, "/players", map[string]string{"name": name})
			throttled.Add(int64(n))
			if err != nil {
				return fmt.Errorf("register %s: %w", name, err)
			}
			if status != http.StatusCreated {
				return fmt.Errorf("%w: register %s: %d %s", ErrUnexpectedStatus, name, status, bytes.TrimSpace(raw))
			}
			return nil
		})
	}
	err := g.Wait()
	stats.Backpressured += int(throttled.Load())
	if err != nil {
		return err
	}
	stats.PlayersRegistered = len(names)
	return nil
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// submitGames submits games through a pool of workers.
func submitGames(ctx context.Context, c *HTTPClient, config *Config, games []Game, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting games", logger.Int("games", len(games)), logger.Int("workers", config.Workers))

	var accepted, duplicate, failed, submitted, throttled atomic.Int64
	gameChan := make(chan Game, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for range config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for game := range gameChan {
				res, n, err := submitSingleGame(ctx, c, game)
				submitted.Add(1)
				throttled.Add(int64(n))
				switch res {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
					if config.Verbose {
						log.Warn(ctx, "submission failed", logger.String("submission_id", game.SubmissionID), logger.Error(err))
					}
				}
			}
		}()
	}

	go func() {
		defer close(gameChan)
		for _, game := range games {
			select {
			case <-ctx.Done():
				return
			case gameChan <- game:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(accepted.Load())
	stats.Duplicates = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	stats.Backpressured += int(throttled.Load())

	log.Info(ctx, "game submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicates),
		logger.Int("failed", stats.Failed))
}

func submitSingleGame(ctx context.Context, c *HTTPClient, game Game) (outcome, int, error) {
	status, raw, throttled, err := c.postWithRetry(ctx, "/games", game)
	if err != nil {
		return outcomeFailed, throttled, err
	}
	var ack AckResponse
	switch status {
	case http.StatusCreated, http.StatusOK:
		if err := json.Unmarshal(raw, &ack); err != nil {
			return outcomeFailed, throttled, fmt.Errorf("decode ack: %w", err)
		}
		if ack.Duplicate {
			return outcomeDuplicate, throttled, nil
		}
		return outcomeAccepted, throttled, nil
	default:
		return outcomeFailed, throttled, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, status, bytes.TrimSpace(raw))
	}
}

// playerPath escapes name into a path segment.
func playerPath(prefix, name string) string {
	return prefix + url.PathEscape(name)
}
