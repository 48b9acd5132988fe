package main

import (
	"context"
	"fmt"
)

// syncProgress pulls the progress of every active enrollment, of the module `code` only when set.
func (cli *commandLine) syncProgress(code string) error {
	ctx := context.Background()

	var moduleIDs []int
	if code != "" {
		m, err := cli.modSvc.Get(ctx, code)
		if err != nil {
			return err
		}
		moduleIDs = append(moduleIDs, m.ID)
	}

	summary, err := cli.syncer.SyncActive(ctx, moduleIDs...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated: %d, skipped: %d, remote errors: %d, failed: %d\n",
		summary.Updated, summary.Skipped, summary.Remote, summary.Failed)
	return nil
}
