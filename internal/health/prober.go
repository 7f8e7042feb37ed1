package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config is the readiness configuration carried by a spec.Readiness
// block, translated into the prober's vocabulary.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

// Probe runs checker up to config.Retries attempts, each racing against
// the remaining portion of config.Timeout, sleeping config.Interval
// between failed attempts. It returns true on the first success and
// false once retries or the deadline are exhausted.
func Probe(ctx context.Context, checker Checker, config Config, logger zerolog.Logger) bool {
	deadline := time.Now().Add(config.Timeout)

	retries := config.Retries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 1; attempt <= retries; attempt++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			logger.Error().Int("attempt", attempt).Msg("readiness probe deadline exhausted")
			return false
		}

		attemptCtx, cancel := context.WithTimeout(ctx, remaining)
		result := checker.Check(attemptCtx)
		cancel()

		if result.Healthy {
			logger.Info().Int("attempt", attempt).Dur("duration", result.Duration).Msg("readiness probe succeeded")
			return true
		}

		logger.Info().Int("attempt", attempt).Str("reason", result.Message).Msg("readiness probe attempt failed")

		if attempt == retries {
			break
		}
		if time.Until(deadline) <= 0 {
			break
		}

		select {
		case <-ctx.Done():
			logger.Error().Msg("readiness probe cancelled")
			return false
		case <-time.After(config.Interval):
		}
	}

	logger.Error().Msg("readiness probe exhausted all retries")
	return false
}
