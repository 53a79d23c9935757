package pipeline

import (
	"context"
	"sync"
	"time"

	"convertd/internal/config"
	"convertd/internal/identity"
)

const defaultDurationRounding = 100 * time.Millisecond

// ProcessBatch filters the candidates through eligibility and dispatches
// what remains to a bounded worker pool. One candidate's failure never
// cancels its siblings; every result is collected and logged.
func (c *Converter) ProcessBatch(ctx context.Context, candidates []string) []Result {
	eligible := make([]string, 0, len(candidates))
	seen := make(map[identity.Identity]struct{}, len(candidates))
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		id := identity.ForPath(candidate)
		if _, dup := seen[id]; dup {
			continue
		}
		if c.Eligible(ctx, candidate) {
			seen[id] = struct{}{}
			eligible = append(eligible, candidate)
		}
	}
	if len(eligible) == 0 {
		c.logger.Debug("no new candidates to process")
		return nil
	}

	workers := c.cfg.Daemon.MaxWorkers
	if workers > config.MaxWorkersLimit {
		workers = config.MaxWorkersLimit
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(eligible) {
		workers = len(eligible)
	}
	c.logger.Info("processing batch", "candidates", len(eligible), "workers", workers)

	jobs := make(chan string)
	resultCh := make(chan Result)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for candidate := range jobs {
				resultCh <- c.Convert(ctx, candidate)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, candidate := range eligible {
			select {
			case jobs <- candidate:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(eligible))
	for result := range resultCh {
		switch result.Outcome {
		case OutcomeSucceeded:
			c.logger.Info("completed", "path", result.Path, "duration", result.Duration.Round(defaultDurationRounding))
		case OutcomeSkipped:
			c.logger.Debug("skipped", "path", result.Path, "reason", result.Reason)
		default:
			c.logger.Warn("failed", "path", result.Path, "reason", result.Reason)
		}
		results = append(results, result)
	}
	return results
}
