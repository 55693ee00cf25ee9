// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package xbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
)

// BreakerClient wraps Client with a circuit breaker so a degraded Xbox
// service cannot pile up blocked workers. The breaker uses real time
// for its window and recovery timers; unit tests exercise the wrapped
// Client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewBreakerClient wraps client. The breaker opens after a 60% failure
// rate over at least 10 requests, waits 2 minutes before probing, and
// admits 3 requests while half-open.
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "xbox-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("opening xbox api circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", breakerStateString(from)).Str("to", breakerStateString(to)).Msg("xbox api circuit state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, breakerStateString(from), breakerStateString(to)).Inc()
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		logging.Warn().Err(err).Msg("xbox api request rejected by circuit breaker")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return result, err
}

func breakerCast[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// FetchGamerscore calls Client.FetchGamerscore under the breaker.
func (b *BreakerClient) FetchGamerscore(ctx context.Context) (int64, error) {
	return breakerCast[int64](b.execute(func() (any, error) {
		return b.client.FetchGamerscore(ctx)
	}))
}

// FetchGamerpic calls Client.FetchGamerpic under the breaker.
func (b *BreakerClient) FetchGamerpic(ctx context.Context) (string, error) {
	return breakerCast[string](b.execute(func() (any, error) {
		return b.client.FetchGamerpic(ctx)
	}))
}

// CurrentGame calls Client.CurrentGame under the breaker.
func (b *BreakerClient) CurrentGame(ctx context.Context) (*models.Game, error) {
	return breakerCast[*models.Game](b.execute(func() (any, error) {
		return b.client.CurrentGame(ctx)
	}))
}

// GameCover calls Client.GameCover under the breaker.
func (b *BreakerClient) GameCover(ctx context.Context, game models.Game) (string, error) {
	return breakerCast[string](b.execute(func() (any, error) {
		return b.client.GameCover(ctx, game)
	}))
}

// GameAchievements calls Client.GameAchievements under the breaker.
func (b *BreakerClient) GameAchievements(ctx context.Context, game models.Game) ([]models.Achievement, error) {
	return breakerCast[[]models.Achievement](b.execute(func() (any, error) {
		return b.client.GameAchievements(ctx, game)
	}))
}
