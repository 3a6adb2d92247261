package index

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/filebox/internal/logger"
)

// Policy selects when the index is rebuilt.
type Policy string

const (
	// PolicyOnConnect rebuilds when a client connects.
	PolicyOnConnect Policy = "on_connect"
	// PolicyWatch rebuilds after filesystem change notifications settle.
	PolicyWatch Policy = "watch"
	// PolicyInterval rebuilds on a fixed period.
	PolicyInterval Policy = "interval"
	// PolicyManual builds once at startup; later rebuilds are explicit.
	PolicyManual Policy = "manual"
)

// Policies lists the valid policies.
var Policies = []Policy{PolicyOnConnect, PolicyWatch, PolicyInterval, PolicyManual}

// ParsePolicy validates s.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown index refresh policy %q", s)
}

// RunInterval refreshes every period until ctx is cancelled. Failed
// refreshes are logged and retried on the next tick.
func (ix *Indexer) RunInterval(ctx context.Context, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ix.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Periodic index refresh failed", logger.KeyError, err)
			}
		}
	}
}

// Start launches the background refresher for policy. on_connect and manual
// need no background work. It returns immediately; the goroutine stops when
// ctx is cancelled.
func (ix *Indexer) Start(ctx context.Context, policy Policy, interval time.Duration) error {
	switch policy {
	case PolicyInterval:
		go ix.RunInterval(ctx, interval)
	case PolicyWatch:
		w, err := NewWatcher(ix, DefaultDebounce)
		if err != nil {
			return err
		}
		go w.Run(ctx)
	case PolicyOnConnect, PolicyManual:
	default:
		return fmt.Errorf("unknown index refresh policy %q", policy)
	}
	logger.Info("Index refresher started", logger.KeyRefresh, string(policy), logger.KeyRoot, ix.root)
	return nil
}
