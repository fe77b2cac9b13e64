package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"sessions_accepted", snap.SessionsAccepted,
					"bets_stored", snap.BetsStored,
					"batches_received", snap.BatchesReceived,
					"batches_failed", snap.BatchesFailed,
					"malformed", snap.Malformed,
					"raffle_runs", snap.RaffleRuns,
					"winners_sent", snap.WinnersSent,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
