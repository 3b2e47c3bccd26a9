// Package worker contains background loops that run alongside the API server.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/clock"
)

// Engine is the slice of the hold engine the sweeper needs.
type Engine interface {
	ExpireHold(ctx context.Context, holdID string) error
}

// ExpirySweeper periodically releases holds whose deadline passed without a
// resolution: authorized holds that were never captured, and pending holds
// whose create outcome was lost. Running more than one instance is safe: the
// engine treats a hold already resolved by someone else as a no-op.
type ExpirySweeper struct {
	holds     application.HoldRepository
	engine    Engine
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewExpirySweeper(
	holds application.HoldRepository,
	engine Engine,
	clk clock.Clock,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		holds:     holds,
		engine:    engine,
		clock:     clk,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info("expiry sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.sweep(ctx); err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) error {
	expired, err := s.holds.FindExpired(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return err
	}

	if len(expired) == 0 {
		return nil
	}

	var released int
	for _, hold := range expired {
		if err := s.engine.ExpireHold(ctx, hold.ID); err != nil {
			// Transient processor failures stay AUTHORIZED and come back on
			// the next tick with the same idempotency key.
			s.logger.Error("failed to expire hold",
				"hold_id", hold.ID,
				"order_id", hold.OrderID,
				"error", err)
			continue
		}
		released++
	}

	s.logger.Info("expiry sweep complete",
		"candidates", len(expired),
		"released", released)

	return nil
}
