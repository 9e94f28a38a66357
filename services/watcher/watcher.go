// Package watchersvc polls the daily report table for fresh integrations and
// tells connected dashboards to refetch when one lands.
package watchersvc

import (
	"context"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
)

const DefaultInterval = 10 * time.Second

type (
	// Source exposes the latest integration timestamp of the daily report.
	Source interface {
		LatestIntegration(ctx context.Context) (null.String, error)
	}

	// Watcher broadcasts a refresh event whenever the integration timestamp
	// changes. The first observed value is only recorded.
	Watcher struct {
		source   Source
		bcast    notification.Broadcaster
		logger   core.Logger
		interval time.Duration

		last   null.String
		primed bool

		startOnce sync.Once
		stopOnce  sync.Once
		stop      chan struct{}
		wg        sync.WaitGroup
	}
)

func New(source Source, bcast notification.Broadcaster, logger core.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		source:   source,
		bcast:    bcast,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		w.logger.Info("starting daily report watcher", map[string]interface{}{"interval": w.interval.String()})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()

			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					w.check(context.Background())
				case <-w.stop:
					return
				}
			}
		}()
	})
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

// check compares the current integration timestamp against the last observed
// one. Poll errors are logged and the loop carries on; the next tick retries.
func (w *Watcher) check(ctx context.Context) {
	current, err := w.source.LatestIntegration(ctx)
	if err != nil {
		w.logger.Error("checking daily report integration", err)
		return
	}

	if !w.primed {
		w.last = current
		w.primed = true
		w.logger.Debug("initial integration timestamp", map[string]interface{}{"value": current.String})
		return
	}

	if current.Valid && current != w.last {
		w.logger.Info("daily report change detected", map[string]interface{}{
			"from": w.last.String,
			"to":   current.String,
		})
		w.last = current
		w.bcast.Broadcast(notification.NewRefreshEvent(notification.TargetDailyMonitor))
	}
}
