package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/progress"
)

type progressSyncer interface {
	SyncActive(ctx context.Context, moduleIDs ...int) (progress.Summary, error)
}

type worker struct {
	syncer  progressSyncer
	logger  core.Logger
	timeout time.Duration
}

// syncProgress runs one progress sync of every active enrollment.
func (w *worker) syncProgress() {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	summary, err := w.syncer.SyncActive(ctx)
	if err != nil {
		w.logger.Error(fmt.Sprintf("syncing progress: %v", err), err)
		return
	}
	w.logger.Info(fmt.Sprintf(
		"progress synced in %v : updated: %d, skipped: %d, remote errors: %d, failed: %d",
		time.Since(start), summary.Updated, summary.Skipped, summary.Remote, summary.Failed,
	))
}

// schedule registers the progress sync on `spec`. A run still going when the next one is due is skipped.
func (w *worker) schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, w.syncProgress); err != nil {
		return nil, errors.Wrapf(err, "invalid progress sync schedule %q", spec)
	}
	return c, nil
}
