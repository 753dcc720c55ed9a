package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/infra"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает провайдера исполнения тремя защитами:
// лимитер скорости, предохранитель и повтор транзиентных сбоев.
type ReliabilityWrapper struct {
	next     connectors.ExecutionProvider
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
}

func NewReliabilityWrapper(next connectors.ExecutionProvider, cfg infra.EngineConfig) *ReliabilityWrapper {
	// Настройка предохранителя
	threshold := uint32(cfg.CBConsecutiveFailures)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "atlas-connector",
		MaxRequests: uint32(cfg.CBMaxRequests),
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	attempts := uint(cfg.RetryAttempts)
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  limiter,
		attempts: attempts,
		timeout:  cfg.CallTimeout,
	}
}

func (w *ReliabilityWrapper) Call(ctx context.Context, op string, payload []byte) (res []byte, err error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.LastErrorOnly(true),
			// Повторяем только транзиентные сбои: not-found, permission-denied
			// и malformed детерминированы, второй заход их не исправит
			retry.RetryIf(connectors.IsRetryable),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если коннектор вернул ThrottleError (например, считал Retry-After)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, op, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.([]byte), nil
}
