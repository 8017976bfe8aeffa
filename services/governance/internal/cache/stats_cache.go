package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type StatsSource interface {
	EnabledCount(ctx context.Context) (int, error)
}

type RefreshMetrics interface {
	ObserveRefresh(duration time.Duration)
	SetEnabled(count int)
	IncRefreshError()
}

// StatsCache holds the enabled masternode count used by the pass threshold.
type StatsCache struct {
	mu          sync.RWMutex
	enabled     int
	loaded      bool
	lastRefresh time.Time
	now         func() time.Time
}

func NewStatsCache() *StatsCache {
	return &StatsCache{now: time.Now}
}

func (c *StatsCache) Load(ctx context.Context, source StatsSource) error {
	enabled, err := source.EnabledCount(ctx)
	if err != nil {
		return err
	}
	c.Set(enabled)
	return nil
}

func (c *StatsCache) Refresh(ctx context.Context, source StatsSource) error {
	return c.Load(ctx, source)
}

func (c *StatsCache) Set(enabled int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	c.loaded = true
	c.lastRefresh = c.now()
}

// Enabled reports false until the first successful load.
func (c *StatsCache) Enabled() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled, c.loaded
}

func (c *StatsCache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

func (c *StatsCache) StartAutoRefresh(ctx context.Context, source StatsSource, interval time.Duration, metrics RefreshMetrics, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		logger.Warn("masternode stats refresh disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				start := time.Now()
				err := c.Refresh(refreshCtx, source)
				cancel()
				if err != nil {
					logger.Error("masternode stats refresh failed", "error", err)
					if metrics != nil {
						metrics.IncRefreshError()
					}
					continue
				}
				enabled, _ := c.Enabled()
				if metrics != nil {
					metrics.ObserveRefresh(time.Since(start))
					metrics.SetEnabled(enabled)
				}
				logger.Debug("masternode stats refreshed", "enabled", enabled)
			}
		}
	}()
}
