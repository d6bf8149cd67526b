package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type datastorePinger interface {
	Ping(ctx context.Context) error
}

type healthReporter interface {
	SetDatastoreHealth(healthy bool)
}

type monitorTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) monitorTicker

func startDatastoreMonitor(ctx context.Context, logger *slog.Logger, store datastorePinger, health healthReporter, interval time.Duration) func() {
	return startDatastoreMonitorWithTicker(ctx, logger, store, health, interval, func(d time.Duration) monitorTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

// startDatastoreMonitorWithTicker pings store on every tick and publishes the
// result as the datastore health gauge. Only transitions are logged.
func startDatastoreMonitorWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	store datastorePinger,
	health healthReporter,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if store == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		healthy := true
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				pingCtx, pingCancel := context.WithTimeout(workerCtx, interval)
				err := store.Ping(pingCtx)
				pingCancel()
				if health != nil {
					health.SetDatastoreHealth(err == nil)
				}
				if logger != nil {
					switch {
					case err != nil && healthy:
						logger.Error("datastore unreachable", "error", err)
					case err == nil && !healthy:
						logger.Info("datastore recovered")
					}
				}
				healthy = err == nil
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
